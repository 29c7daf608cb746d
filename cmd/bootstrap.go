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

	"github.com/cardinalhq/celestus/internal/bootstrap"
	"github.com/cardinalhq/celestus/internal/dbopen"
	"github.com/cardinalhq/celestus/internal/logctx"
	"github.com/cardinalhq/celestus/internal/settings"
	"github.com/cardinalhq/celestus/internal/store/migrations"
)

func init() {
	var (
		runMigrations bool
		skipCheck     bool
	)
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Load settings and seed trusted configuration records",
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := "celestus-bootstrap"
			doneCtx, doneFx, err := setupTelemetry(servicename, nil)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}

			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			start := time.Now()
			err = runBootstrap(doneCtx, runMigrations, skipCheck)
			recordCommand(doneCtx, "bootstrap", start, err)
			return err
		},
	}

	cmd.Flags().BoolVar(&runMigrations, "migrate", false, "apply schema migrations before seeding")
	cmd.Flags().BoolVar(&skipCheck, "skip-migration-check", false, "do not wait for the schema to reach the expected version")

	rootCmd.AddCommand(cmd)
}

func loadSettings(ctx context.Context) (*settings.Registry, error) {
	src, err := settingsSource()
	if err != nil {
		return nil, err
	}
	if f := src.ConfigFileUsed(); f != "" {
		logctx.FromContext(ctx).Info("Loaded env file", slog.String("path", f))
	}
	return settings.New(ctx, settings.WithSource(src))
}

func runBootstrap(ctx context.Context, runMigrations, skipCheck bool) error {
	ll := logctx.FromContext(ctx)

	reg, err := loadSettings(ctx)
	if err != nil {
		return err
	}

	pool, err := dbopen.Open(ctx, reg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if runMigrations {
		if err := migrations.RunMigrationsUp(ctx, pool); err != nil {
			return err
		}
	}
	mode := migrations.CheckModeWait
	if skipCheck {
		mode = migrations.CheckModeSkip
	}
	if err := migrations.CheckExpectedVersion(ctx, pool, migrations.WithCheckMode(mode)); err != nil {
		return err
	}

	seedDir, _ := reg.GetString(settings.KeySeedDirectory)
	summary, err := bootstrap.Run(ctx, pool, seedDir)
	for entity, outcome := range summary {
		ll.Info("Seeded", slog.String("entity", entity), slog.String("outcome", string(outcome)))
	}
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	return nil
}
