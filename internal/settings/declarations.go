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

package settings

import (
	"errors"
	"fmt"

	"github.com/cardinalhq/celestus/internal/envvar"
)

const (
	KeyUseSecretsProvider     = "use_secrets_provider"
	KeySecretsProviderDevMode = "secrets_provider_dev_mode"

	KeyDatabasePort           = "database_port"
	KeyDatabaseMaxConnections = "database_max_connections"

	KeyHostEnvironment   = "host_environment"
	KeyDatabaseURLPrefix = "database_url_prefix"
	KeyDatabaseHost      = "database_host"
	KeyDatabaseUser      = "database_user"
	KeyDatabasePassword  = "database_password"
	KeyDatabaseName      = "database_name"
	KeyDatabaseSSLMode   = "database_sslmode"
	KeySeedDirectory     = "seed_directory"

	// MapSecretsProviders holds the discovered secrets providers.
	MapSecretsProviders = "secrets_providers"
)

// ErrDuplicateKey marks two declarations of one kind sharing a key.
var ErrDuplicateKey = errors.New("duplicate setting key")

// Declaration binds a setting key to its environment variable. A nil
// Default makes the setting required.
type Declaration[T any] struct {
	Key     string
	EnvVar  string
	Default *T
	// Secret hides the value from Snapshot.
	Secret bool
}

// Declarations is the full compiled-in table, one list per kind.
type Declarations struct {
	Bools   []Declaration[bool]
	Ints    []Declaration[int32]
	Strings []Declaration[string]
}

func def[T any](v T) *T {
	return &v
}

// DefaultDeclarations returns the settings every celestus process loads.
func DefaultDeclarations() Declarations {
	return Declarations{
		Bools: []Declaration[bool]{
			{Key: KeyUseSecretsProvider, EnvVar: "USE_SECRETS_PROVIDER", Default: def(false)},
			{Key: KeySecretsProviderDevMode, EnvVar: "SECRETS_PROVIDER_DEV_MODE", Default: def(false)},
		},
		Ints: []Declaration[int32]{
			{Key: KeyDatabasePort, EnvVar: "DATABASE_PORT", Default: def(int32(5432))},
			{Key: KeyDatabaseMaxConnections, EnvVar: "DATABASE_MAX_CONNECTIONS", Default: def(int32(4))},
		},
		Strings: []Declaration[string]{
			{Key: KeyHostEnvironment, EnvVar: "HOST_ENVIRONMENT", Default: def("production")},
			{Key: KeyDatabaseURLPrefix, EnvVar: "DATABASE_URL_PREFIX", Default: def("postgres")},
			{Key: KeyDatabaseHost, EnvVar: "DATABASE_HOST"},
			{Key: KeyDatabaseUser, EnvVar: "DATABASE_USER"},
			{Key: KeyDatabasePassword, EnvVar: "DATABASE_PASSWORD", Secret: true},
			{Key: KeyDatabaseName, EnvVar: "DATABASE_NAME"},
			{Key: KeyDatabaseSSLMode, EnvVar: "DATABASE_SSLMODE", Default: def("disable")},
			{Key: KeySeedDirectory, EnvVar: "SEED_DIRECTORY", Default: def("./data/seed")},
		},
	}
}

func (d Declarations) validate() error {
	if err := uniqueKeys(d.Bools); err != nil {
		return err
	}
	if err := uniqueKeys(d.Ints); err != nil {
		return err
	}
	return uniqueKeys(d.Strings)
}

func uniqueKeys[T any](decls []Declaration[T]) error {
	seen := make(map[string]struct{}, len(decls))
	for _, d := range decls {
		if _, dup := seen[d.Key]; dup {
			return &envvar.ConfigError{Var: d.EnvVar, Err: fmt.Errorf("%w: %q", ErrDuplicateKey, d.Key)}
		}
		seen[d.Key] = struct{}{}
	}
	return nil
}
