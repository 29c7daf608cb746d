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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/celestus/internal/envvar"
	"github.com/cardinalhq/celestus/internal/rolegroups"
	"github.com/cardinalhq/celestus/internal/seeding"
	"github.com/cardinalhq/celestus/internal/seedpolicy"
	"github.com/cardinalhq/celestus/internal/settings"
)

var (
	// errUntrustedSeeds is returned by `seed check` when the file holds
	// violations and was not recovered.
	errUntrustedSeeds = errors.New("seed file holds untrusted records")
	// errTooFewSeeds is returned by `seed check` when a seeding pass would
	// recover the file.
	errTooFewSeeds = errors.New("seed file holds too few records")
)

func init() {
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Inspect seed files",
	}

	var (
		file        string
		recoverFile bool
	)
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a role groups seed file",
		Long: `Validate a role groups seed file against the trusted exception list.
With --recover the file is rewritten with the canonical records when it is
missing, corrupt or left with too few records after disarming.`,
		RunE: func(c *cobra.Command, _ []string) error {
			servicename := "celestus-seed-check"
			doneCtx, doneFx, err := setupTelemetry(servicename, nil)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}

			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			path := file
			if path == "" {
				if path, err = defaultSeedFile(doneCtx); err != nil {
					return err
				}
			}
			return checkSeedFile(doneCtx, c.OutOrStdout(), path, recoverFile)
		},
	}
	checkCmd.Flags().StringVar(&file, "file", "", "seed file to check (defaults to role_groups.json under SEED_DIRECTORY)")
	checkCmd.Flags().BoolVar(&recoverFile, "recover", false, "rewrite the file with canonical records when it cannot be used")

	seedCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(seedCmd)
}

func checkSeedFile(ctx context.Context, w io.Writer, path string, recoverFile bool) error {
	if recoverFile {
		s := &seeding.Seeder[rolegroups.RoleGroup, *rolegroups.Seed]{
			Props: seeding.Props{
				Name:     rolegroups.Entity,
				FilePath: path,
			},
			Predefined: rolegroups.Predefined,
			Exceptions: rolegroups.Exceptions,
		}
		res, err := s.CheckFile(ctx)
		printViolations(w, res.Violations)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %s (%d records)\n", path, res.Outcome, len(res.Seeds))
		return nil
	}

	seeds := seeding.ReadFile[*rolegroups.Seed](ctx, path)
	violations, err := seedpolicy.Check(seeds, rolegroups.Exceptions())
	if err != nil {
		return err
	}
	printViolations(w, violations)
	if minimum := len(rolegroups.Predefined()); len(seeds) < minimum {
		return fmt.Errorf("%s: %w: found %d, need %d", path, errTooFewSeeds, len(seeds), minimum)
	}
	if len(violations) > 0 {
		return fmt.Errorf("%s: %w (%d)", path, errUntrustedSeeds, len(violations))
	}
	fmt.Fprintf(w, "%s: secure (%d records)\n", path, len(seeds))
	return nil
}

func printViolations(w io.Writer, violations []seedpolicy.Violation) {
	for _, v := range violations {
		fmt.Fprintln(w, v.String())
	}
}

// defaultSeedFile resolves the role groups seed file under the
// seed_directory setting, the same place bootstrap reads it from.
func defaultSeedFile(ctx context.Context) (string, error) {
	src, err := settingsSource()
	if err != nil {
		return "", err
	}
	return seedFileFrom(ctx, envvar.New(src))
}

func seedFileFrom(ctx context.Context, r *envvar.Resolver) (string, error) {
	for _, d := range settings.DefaultDeclarations().Strings {
		if d.Key != settings.KeySeedDirectory {
			continue
		}
		dir, err := envvar.Get(ctx, r, d.EnvVar, d.Default)
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, rolegroups.SeedFile), nil
	}
	return "", fmt.Errorf("setting %s is not declared", settings.KeySeedDirectory)
}
