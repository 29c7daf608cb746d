// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package seeding keeps a seed file trustworthy before its records may be
// loaded into an empty table.
//
// A pass runs once per entity at database initialization:
//
//	NeedCheck -> NotNeeded
//	          -> CountCheck -> Secure | Disarmed | Recovered
//
// The file is left untouched when it already holds a trusted set. An
// untrusted set that still meets the minimum is disarmed in memory only. A
// set below the minimum, before or after disarming, is replaced on disk by
// the canonical records.
package seeding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cardinalhq/celestus/internal/logctx"
	"github.com/cardinalhq/celestus/internal/seedpolicy"
)

var (
	// ErrSeedCheck wraps failures deciding whether seeding is needed.
	ErrSeedCheck = errors.New("seed check failed")
	// ErrSeedRecovery wraps failures rewriting the seed file.
	ErrSeedRecovery = errors.New("seed recovery failed")
)

// Lister reads every stored row of a model.
type Lister[M any] interface {
	GetAll(ctx context.Context) ([]M, error)
}

// Props names one seedable entity and where its seed file lives.
type Props struct {
	Name     string
	FilePath string
	// MinimumRequired is the smallest acceptable candidate count. Zero means
	// the number of canonical records.
	MinimumRequired int
}

// Outcome is how a seeding pass ended.
type Outcome string

const (
	OutcomeNotNeeded Outcome = "not_needed"
	OutcomeSecure    Outcome = "secure"
	OutcomeDisarmed  Outcome = "disarmed"
	OutcomeRecovered Outcome = "recovered"
)

// Result reports a seeding pass. Seeds holds the records that would be
// loaded: the file's own records, their disarmed form, or the canonical set
// after recovery. It is empty for OutcomeNotNeeded.
type Result[S seedpolicy.Record] struct {
	Outcome    Outcome
	Seeds      []S
	Violations []seedpolicy.Violation
}

// Seeder runs seeding passes for one entity. M is the stored row type and S
// the seed record type.
type Seeder[M any, S seedpolicy.Record] struct {
	Props      Props
	Rows       Lister[M]
	Predefined func() []S
	Exceptions func() []S
}

// IsSeedNeeded reports whether the entity's table is empty.
func (s *Seeder[M, S]) IsSeedNeeded(ctx context.Context) (bool, error) {
	rows, err := s.Rows.GetAll(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrSeedCheck, s.Props.Name, err)
	}
	return len(rows) == 0, nil
}

// TryToSeed runs a full pass: the storage check, then CheckFile.
func (s *Seeder[M, S]) TryToSeed(ctx context.Context) (Result[S], error) {
	ctx = logctx.With(ctx, slog.String("entity", s.Props.Name))
	ctx, span := tracer.Start(ctx, "seeding.try_to_seed")
	defer span.End()
	span.SetAttributes(attribute.String("entity", s.Props.Name))

	logger := logctx.FromContext(ctx)
	logger.Info("Seeding")

	needed, err := s.IsSeedNeeded(ctx)
	if err != nil {
		recordFailure(ctx, s.Props.Name, "need_check")
		span.RecordError(err)
		span.SetStatus(codes.Error, "seed check failed")
		return Result[S]{}, err
	}
	if !needed {
		logger.Info("Rows already present, seeding not needed")
		recordOutcome(ctx, s.Props.Name, OutcomeNotNeeded)
		return Result[S]{Outcome: OutcomeNotNeeded}, nil
	}

	res, err := s.checkFile(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "seed file check failed")
		return res, err
	}
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
	logger.Info("Seeding complete", slog.String("outcome", string(res.Outcome)), slog.Int("seeds", len(res.Seeds)))
	return res, nil
}

// CheckFile validates the seed file and recovers it when needed, without
// consulting storage.
func (s *Seeder[M, S]) CheckFile(ctx context.Context) (Result[S], error) {
	ctx = logctx.With(ctx, slog.String("entity", s.Props.Name))
	return s.checkFile(ctx)
}

func (s *Seeder[M, S]) checkFile(ctx context.Context) (Result[S], error) {
	logger := logctx.FromContext(ctx).With(slog.String("path", s.Props.FilePath))

	predefined := s.Predefined()
	policy, err := seedpolicy.NewPolicy(s.Exceptions())
	if err != nil {
		recordFailure(ctx, s.Props.Name, "policy")
		return Result[S]{}, fmt.Errorf("%w: %s: %w", ErrSeedCheck, s.Props.Name, err)
	}

	minimum := s.Props.MinimumRequired
	if minimum <= 0 {
		minimum = len(predefined)
	}

	candidates := readSeeds[S](ctx, s.Props.FilePath)
	logger.Info("Read seed file", slog.Int("seeds", len(candidates)), slog.Int("minimum", minimum))

	res := Result[S]{Seeds: candidates}
	if len(candidates) >= minimum {
		res.Violations = policy.Check(candidates)
		if len(res.Violations) == 0 {
			res.Outcome = OutcomeSecure
			recordOutcome(ctx, s.Props.Name, res.Outcome)
			return res, nil
		}

		for _, v := range res.Violations {
			logger.Warn("Untrusted seed record",
				slog.Int("index", v.Index),
				slog.String("name", v.Name),
				slog.String("reason", string(v.Reason)),
				slog.String("detail", v.Detail))
		}
		logger.Warn("Seed file is not secure, disarming", slog.Int("violations", len(res.Violations)))
		res.Seeds = policy.SetDataSecure(candidates, false)
		res.Outcome = OutcomeDisarmed
	} else {
		logger.Warn("Too few seeds", slog.Int("found", len(candidates)), slog.Int("minimum", minimum))
	}

	if len(res.Seeds) >= minimum {
		recordOutcome(ctx, s.Props.Name, res.Outcome)
		return res, nil
	}

	logger.Warn("Missing or corrupt seed file, recovering canonical records")
	if err := writeSeeds(s.Props.FilePath, predefined); err != nil {
		recordFailure(ctx, s.Props.Name, "recovery")
		logger.Error("Seed recovery failed", slog.Any("error", err))
		return res, fmt.Errorf("%w: %s: %w", ErrSeedRecovery, s.Props.Name, err)
	}

	res.Seeds = predefined
	res.Outcome = OutcomeRecovered
	recordOutcome(ctx, s.Props.Name, res.Outcome)
	return res, nil
}
