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

// Package vault implements a secrets provider backed by HashiCorp Vault,
// authenticating with AppRole and reading from a KV version 2 engine.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cardinalhq/celestus/internal/logctx"
	"github.com/cardinalhq/celestus/internal/providers"
)

// KindName is the fragment a declared provider name must contain.
const KindName = "VAULT"

const (
	DefaultPort   = 8200
	DefaultEngine = "kv2"
	DefaultMount  = "kv"
)

// Config is the parameter set read under a provider's prefix.
type Config struct {
	Connection providers.ConnectionInfo
	Address    string
	Engine     string
	Mount      string
	Token      string
	RoleID     string
	LoginPass  string
	SecretPath string
	Provision  providers.Provision
	DevMode    bool
}

// LoadConfig reads a Vault provider's parameters.
func LoadConfig(ctx context.Context, p providers.Params) (Config, error) {
	cfg := Config{DevMode: p.DevMode}
	var err error

	if cfg.Connection, err = p.Connection(ctx, DefaultPort); err != nil {
		return cfg, err
	}
	if cfg.Address, err = cfg.Connection.Address(); err != nil {
		return cfg, fmt.Errorf("%sURL/%sHOST: %w", p.Prefix, p.Prefix, err)
	}
	if cfg.Engine, err = p.Optional(ctx, "ENGINE", DefaultEngine); err != nil {
		return cfg, err
	}
	if !strings.EqualFold(cfg.Engine, DefaultEngine) {
		return cfg, fmt.Errorf("%sENGINE: unsupported secrets engine %q, only %s is supported", p.Prefix, cfg.Engine, DefaultEngine)
	}
	if cfg.Mount, err = p.Optional(ctx, "MOUNT", DefaultMount); err != nil {
		return cfg, err
	}
	if cfg.Token, err = p.Optional(ctx, "TOKEN", ""); err != nil {
		return cfg, err
	}
	if cfg.RoleID, err = p.Require(ctx, "LOGIN_ID"); err != nil {
		return cfg, err
	}
	if cfg.LoginPass, err = p.Require(ctx, "LOGIN_PASS"); err != nil {
		return cfg, err
	}
	if cfg.SecretPath, err = p.Require(ctx, "SECRET_PATH"); err != nil {
		return cfg, err
	}
	if cfg.Provision, err = p.Provision(ctx); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Kind registers Vault with provider discovery.
func Kind() providers.Kind {
	return providers.Kind{Match: KindName, Build: Build}
}

// Build constructs an unauthenticated Vault provider.
func Build(ctx context.Context, p providers.Params) (*providers.SecretsProvider, error) {
	cfg, err := LoadConfig(ctx, p)
	if err != nil {
		return nil, err
	}
	c, err := newAPIClient(cfg.Address, cfg.Token)
	if err != nil {
		return nil, err
	}

	sp := &providers.SecretsProvider{}
	sp.ConnectionInfo = cfg.Connection
	sp.ProvisionType = cfg.Provision
	sp.Connectivity = providers.SingleConnection
	sp.Implementation = NewStore(cfg, c)
	return sp, nil
}

// Store is a providers.SecretStore over a Vault client.
type Store struct {
	cfg    Config
	client Client
}

var _ providers.SecretStore = (*Store)(nil)

// NewStore wraps c with the settings in cfg.
func NewStore(cfg Config, c Client) *Store {
	return &Store{cfg: cfg, client: c}
}

// Authenticate logs in with AppRole. Outside dev mode LOGIN_PASS is a
// response-wrapping token that is unwrapped to obtain the secret_id.
func (s *Store) Authenticate(ctx context.Context) error {
	secretID := s.cfg.LoginPass
	if !s.cfg.DevMode {
		unwrapped, err := s.client.Unwrap(ctx, s.cfg.LoginPass)
		if err != nil {
			return fmt.Errorf("unwrap secret_id: %w", err)
		}
		secretID = unwrapped
	}
	if err := s.client.Login(ctx, s.cfg.RoleID, secretID); err != nil {
		return fmt.Errorf("approle login: %w", err)
	}
	logctx.FromContext(ctx).Debug("Authenticated with Vault",
		slog.String("address", s.cfg.Address),
		slog.Bool("devMode", s.cfg.DevMode))
	return nil
}

// ErrSecretNotFound is returned when the configured path holds no data.
var ErrSecretNotFound = errors.New("secret not found")

// Fetch reads the configured KV v2 secret.
func (s *Store) Fetch(ctx context.Context) (map[string]any, error) {
	data, err := s.client.ReadKV2(ctx, s.cfg.Mount, s.cfg.SecretPath)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", s.cfg.Mount, s.cfg.SecretPath, err)
	}
	if data == nil {
		return nil, fmt.Errorf("read %s/%s: %w", s.cfg.Mount, s.cfg.SecretPath, ErrSecretNotFound)
	}
	return data, nil
}
