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

package envvar

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/viper"
)

// Source looks up raw variable values.
type Source interface {
	Lookup(name string) (string, bool)
}

// OSSource reads the process environment.
type OSSource struct{}

func (OSSource) Lookup(name string) (string, bool) {
	return os.LookupEnv(name)
}

// MapSource serves variables from a map.
type MapSource map[string]string

func (m MapSource) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// ViperSource reads the process environment with an optional dotenv file
// underneath it: a variable set in the environment wins over the file.
type ViperSource struct {
	v *viper.Viper
}

var _ Source = (*ViperSource)(nil)

// NewViperSource builds a ViperSource. A missing envFile is not an error;
// an unreadable or unparsable one is.
func NewViperSource(envFile string) (*ViperSource, error) {
	v := viper.New()
	v.AutomaticEnv()

	if envFile != "" {
		_, err := os.Stat(envFile)
		switch {
		case err == nil:
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to stat env file %s: %w", envFile, err)
		}
	}

	return &ViperSource{v: v}, nil
}

// ConfigFileUsed returns the dotenv file that was loaded, if any.
func (s *ViperSource) ConfigFileUsed() string {
	return s.v.ConfigFileUsed()
}

func (s *ViperSource) Lookup(name string) (string, bool) {
	if !s.v.IsSet(name) {
		return "", false
	}
	return s.v.GetString(name), true
}
