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
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/celestus/internal/envvar"
)

const developmentEnvFile = ".env"

var envFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "celestus",
	Short: "Bootstrap trusted configuration",
	Long:  `Resolve settings and secrets providers, then seed the database with trusted configuration records.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "",
		"dotenv file overlaid on the process environment (defaults to .env when HOST_ENVIRONMENT=development)")
}

// settingsSource picks the environment source for this invocation.
func settingsSource() (*envvar.ViperSource, error) {
	path := envFile
	if path == "" {
		if env, ok := envvar.New(nil).Lookup("HOST_ENVIRONMENT"); ok && env == "development" {
			path = developmentEnvFile
		}
	}
	return envvar.NewViperSource(path)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
