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
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/celestus/internal/settings"
)

func init() {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Print the resolved settings as YAML with secrets masked",
		RunE: func(c *cobra.Command, _ []string) error {
			doneCtx, doneFx, err := setupTelemetry("celestus-settings", nil)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}

			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			reg, err := loadSettings(doneCtx)
			if err != nil {
				return err
			}
			return writeSnapshot(c.OutOrStdout(), reg.Snapshot())
		},
	}

	rootCmd.AddCommand(cmd)
}

func writeSnapshot(w io.Writer, snap settings.Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return enc.Close()
}
