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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/celestus/internal/dbopen"
	"github.com/cardinalhq/celestus/internal/store/migrations"
)

func init() {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			doneCtx, doneFx, err := setupTelemetry("celestus-migrate", nil)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}

			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			start := time.Now()
			err = runMigrate(doneCtx)
			recordCommand(doneCtx, "migrate", start, err)
			return err
		},
	}

	rootCmd.AddCommand(cmd)
}

func runMigrate(ctx context.Context) error {
	reg, err := loadSettings(ctx)
	if err != nil {
		return err
	}
	pool, err := dbopen.Open(ctx, reg)
	if err != nil {
		return err
	}
	defer pool.Close()

	return migrations.RunMigrationsUp(ctx, pool)
}
