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

// Package bootstrap runs the seeding pass for every seedable entity at
// database initialization.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"

	"github.com/cardinalhq/celestus/internal/logctx"
	"github.com/cardinalhq/celestus/internal/rolegroups"
	"github.com/cardinalhq/celestus/internal/seeding"
	"github.com/cardinalhq/celestus/internal/seedpolicy"
	"github.com/cardinalhq/celestus/internal/store"
)

// Target is one seedable entity.
type Target struct {
	Name string
	Seed func(ctx context.Context) (seeding.Outcome, error)
}

// SeederTarget adapts a Seeder to a Target.
func SeederTarget[M any, S seedpolicy.Record](s *seeding.Seeder[M, S]) Target {
	return Target{
		Name: s.Props.Name,
		Seed: func(ctx context.Context) (seeding.Outcome, error) {
			res, err := s.TryToSeed(ctx)
			return res.Outcome, err
		},
	}
}

// RoleGroupsTarget seeds role groups from <seedDir>/role_groups.json.
func RoleGroupsTarget(q store.Querier, seedDir string) Target {
	return SeederTarget(&seeding.Seeder[rolegroups.RoleGroup, *rolegroups.Seed]{
		Props: seeding.Props{
			Name:     rolegroups.Entity,
			FilePath: filepath.Join(seedDir, rolegroups.SeedFile),
		},
		Rows:       store.NewRoleGroups(q),
		Predefined: rolegroups.Predefined,
		Exceptions: rolegroups.Exceptions,
	})
}

// Summary maps each target that completed to its outcome.
type Summary map[string]seeding.Outcome

// RunTargets seeds every target in order. A failing target does not stop
// the rest; all failures are returned together.
func RunTargets(ctx context.Context, targets []Target) (Summary, error) {
	ll := logctx.FromContext(ctx)
	summary := Summary{}

	var errs *multierror.Error
	for _, t := range targets {
		outcome, err := t.Seed(ctx)
		if err != nil {
			ll.Error("Seeding failed", slog.String("entity", t.Name), slog.Any("error", err))
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		summary[t.Name] = outcome
	}

	if err := errs.ErrorOrNil(); err != nil {
		return summary, err
	}
	ll.Info("Seeding completed", slog.Int("entities", len(summary)))
	return summary, nil
}

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Run seeds every built-in entity. Storage checks share one read-only
// transaction so they see a single snapshot.
func Run(ctx context.Context, db TxBeginner, seedDir string) (Summary, error) {
	ll := logctx.FromContext(ctx)
	ll.Info("Starting seeding", slog.String("seedDirectory", seedDir))

	tx, err := db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rolling back a read-only transaction is how it ends.
		rbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tx.Rollback(rbCtx); err != nil {
			ll.Warn("Failed to rollback transaction", slog.Any("error", err))
		}
	}()

	return RunTargets(ctx, []Target{
		RoleGroupsTarget(tx, seedDir),
	})
}
