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

package seeding

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentation = "github.com/cardinalhq/celestus/internal/seeding"

var (
	tracer = otel.Tracer(instrumentation)

	seedOutcomes metric.Int64Counter
	seedFailures metric.Int64Counter
)

func init() {
	meter := otel.Meter(instrumentation)

	var err error

	seedOutcomes, err = meter.Int64Counter(
		"celestus.seed.outcomes",
		metric.WithDescription("Seeding passes by entity and outcome"),
	)
	if err != nil {
		log.Fatalf("failed to create seed.outcomes counter: %v", err)
	}

	seedFailures, err = meter.Int64Counter(
		"celestus.seed.failures",
		metric.WithDescription("Seeding passes that ended in an error"),
	)
	if err != nil {
		log.Fatalf("failed to create seed.failures counter: %v", err)
	}
}

func recordOutcome(ctx context.Context, entity string, outcome Outcome) {
	seedOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("outcome", string(outcome)),
	))
}

func recordFailure(ctx context.Context, entity, stage string) {
	seedFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("stage", stage),
	))
}
