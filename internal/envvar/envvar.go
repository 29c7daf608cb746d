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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cardinalhq/celestus/internal/logctx"
)

var (
	// ErrMissing is reported when a variable is unset or empty.
	ErrMissing = errors.New("missing value")
	// ErrMalformed is reported when a variable cannot be parsed into the requested type.
	ErrMalformed = errors.New("malformed value")
)

// ConfigError names the environment variable that could not be resolved.
type ConfigError struct {
	Var string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("environment variable %s: %v", e.Var, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Value is the set of types Get can produce.
type Value interface {
	bool | int32 | string | []string
}

// Resolver reads variables from a Source, optionally under a name prefix.
type Resolver struct {
	src    Source
	prefix string
}

// New returns a Resolver reading from src. A nil src reads the process environment.
func New(src Source) *Resolver {
	if src == nil {
		src = OSSource{}
	}
	return &Resolver{src: src}
}

// WithPrefix returns a Resolver that prepends prefix to every name it looks
// up. Prefixes stack, so WithPrefix("A_").WithPrefix("B_") reads "A_B_NAME".
func (r *Resolver) WithPrefix(prefix string) *Resolver {
	return &Resolver{src: r.src, prefix: r.prefix + prefix}
}

// Prefix returns the prefix applied to every lookup.
func (r *Resolver) Prefix() string {
	return r.prefix
}

// Lookup returns the raw, whitespace-trimmed value of name (after prefixing).
// A set but blank variable is reported as unset.
func (r *Resolver) Lookup(name string) (string, bool) {
	raw, ok := r.src.Lookup(r.prefix + name)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}

// Get resolves name into a T.
//
// With def != nil, an unset or unparsable variable yields *def and a logged
// warning. With def == nil the same conditions yield a *ConfigError.
func Get[T Value](ctx context.Context, r *Resolver, name string, def *T) (T, error) {
	var zero T
	full := r.prefix + name

	value, err := resolve[T](r, name)
	if err == nil {
		return value, nil
	}

	cfgErr := &ConfigError{Var: full, Err: err}
	if def == nil {
		return zero, cfgErr
	}

	logctx.FromContext(ctx).Warn("Using default for environment variable",
		slog.String("var", full),
		slog.Any("default", *def),
		slog.String("reason", err.Error()))
	return *def, nil
}

func resolve[T Value](r *Resolver, name string) (T, error) {
	var zero T
	raw, ok := r.Lookup(name)
	if !ok {
		return zero, ErrMissing
	}
	return parse[T](raw)
}
