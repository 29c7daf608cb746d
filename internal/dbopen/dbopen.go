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

// Package dbopen turns settings (and secrets provider data, when enabled)
// into a Postgres connection URL and pool.
package dbopen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgx-contrib/pgxotel"

	"github.com/cardinalhq/celestus/internal/logctx"
	"github.com/cardinalhq/celestus/internal/providers"
	"github.com/cardinalhq/celestus/internal/settings"
)

var ErrDatabaseNotConfigured = errors.New("database connection configuration is unavailable")

// Secret keys read from provider data by ApplySecrets.
const (
	SecretHost      = "PG_HOST"
	SecretPort      = "PG_PORT"
	SecretUser      = "PG_USER"
	SecretPassword  = "PG_PASSWORD"
	SecretName      = "PG_DATABASE_NAME"
	SecretURLPrefix = "PG_URL_PREFIX"
)

// Credentials are the pieces of a Postgres connection URL.
type Credentials struct {
	URLPrefix string
	Host      string
	Port      int32
	User      string
	Password  string
	Name      string
	SSLMode   string
}

// FromSettings reads the database_* settings.
func FromSettings(reg *settings.Registry) (Credentials, error) {
	var c Credentials
	var missing []string

	str := func(key string, dst *string) {
		v, ok := reg.GetString(key)
		if !ok {
			missing = append(missing, key)
			return
		}
		*dst = v
	}
	str(settings.KeyDatabaseURLPrefix, &c.URLPrefix)
	str(settings.KeyDatabaseHost, &c.Host)
	str(settings.KeyDatabaseUser, &c.User)
	str(settings.KeyDatabasePassword, &c.Password)
	str(settings.KeyDatabaseName, &c.Name)
	str(settings.KeyDatabaseSSLMode, &c.SSLMode)

	port, ok := reg.GetInt(settings.KeyDatabasePort)
	if !ok {
		missing = append(missing, settings.KeyDatabasePort)
	}
	c.Port = port

	if len(missing) > 0 {
		return c, fmt.Errorf("%w: missing setting(s): %s", ErrDatabaseNotConfigured, strings.Join(missing, ", "))
	}
	return c, nil
}

// ApplySecrets overlays PG_* values found in the providers' data, in order,
// so a later provider wins over an earlier one.
func ApplySecrets(ctx context.Context, c Credentials, provs []*providers.SecretsProvider) (Credentials, error) {
	for _, p := range provs {
		data, err := p.Data(ctx)
		if err != nil {
			return c, fmt.Errorf("reading database secrets from %s: %w", p.Name, err)
		}

		applied := 0
		for key, dst := range map[string]*string{
			SecretHost:      &c.Host,
			SecretUser:      &c.User,
			SecretPassword:  &c.Password,
			SecretName:      &c.Name,
			SecretURLPrefix: &c.URLPrefix,
		} {
			if v, ok := data[key].(string); ok && v != "" {
				*dst = v
				applied++
			}
		}
		if raw, ok := data[SecretPort]; ok {
			port, err := toPort(raw)
			if err != nil {
				return c, fmt.Errorf("provider %s: %s: %w", p.Name, SecretPort, err)
			}
			c.Port = port
			applied++
		}

		logctx.FromContext(ctx).Debug("Applied database secrets",
			slog.String("provider", p.Name),
			slog.Int("fields", applied))
	}
	return c, nil
}

func toPort(v any) (int32, error) {
	var s string
	switch n := v.(type) {
	case string:
		s = n
	case json.Number:
		s = n.String()
	case float64:
		s = strconv.FormatFloat(n, 'f', -1, 64)
	case int:
		s = strconv.Itoa(n)
	default:
		return 0, fmt.Errorf("unsupported port type %T", v)
	}
	p, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil || p <= 0 || p > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return int32(p), nil
}

// URL renders the connection URL. When OTEL_SERVICE_NAME is set it becomes
// the application_name, limited to letters, digits, '-' and '_'.
func (c Credentials) URL() (string, error) {
	if c.Host == "" || c.Name == "" {
		return "", fmt.Errorf("%w: host and database name are required", ErrDatabaseNotConfigured)
	}
	scheme := c.URLPrefix
	if scheme == "" {
		scheme = "postgres"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}

	u := &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(int(port))),
		Path:   c.Name,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}

	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if appName := os.Getenv("OTEL_SERVICE_NAME"); appName != "" {
		q.Set("application_name", applicationName(appName))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Redacted renders the URL with the password hidden, for logs.
func (c Credentials) Redacted() string {
	s, err := c.URL()
	if err != nil {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return u.Redacted()
}

func applicationName(name string) string {
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// NewConnectionPool opens a pgx pool with OpenTelemetry query tracing.
// maxConns <= 0 keeps the pgx default.
func NewConnectionPool(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	cfg.ConnConfig.Tracer = &pgxotel.QueryTracer{
		Name: "celestus",
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}

// Open resolves the connection URL from reg, overlaying provider secrets
// when any were discovered, and opens a pool.
func Open(ctx context.Context, reg *settings.Registry) (*pgxpool.Pool, error) {
	creds, err := FromSettings(reg)
	if err != nil {
		return nil, err
	}
	if provs := reg.SecretsProviders(); len(provs) > 0 {
		if creds, err = ApplySecrets(ctx, creds, provs); err != nil {
			return nil, err
		}
	}
	dsn, err := creds.URL()
	if err != nil {
		return nil, err
	}

	maxConns, _ := reg.GetInt(settings.KeyDatabaseMaxConnections)
	logctx.FromContext(ctx).Info("Opening database pool",
		slog.String("url", creds.Redacted()),
		slog.Int("maxConns", int(maxConns)))

	pool, err := NewConnectionPool(ctx, dsn, maxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	return pool, nil
}
