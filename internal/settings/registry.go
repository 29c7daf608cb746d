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

// Package settings holds the process-wide typed settings, loaded once from
// the environment at startup, together with the secrets providers they
// enable.
package settings

import (
	"context"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/celestus/internal/envvar"
	"github.com/cardinalhq/celestus/internal/logctx"
	"github.com/cardinalhq/celestus/internal/providers"
	"github.com/cardinalhq/celestus/internal/providers/awssm"
	"github.com/cardinalhq/celestus/internal/providers/vault"
)

// Masked replaces secret values in a Snapshot.
const Masked = "********"

// Registry is the settings store. Scalar settings live in one bounded cache
// per kind; provider collections live in a map that is read-only after New.
type Registry struct {
	bools   *kindCache[bool]
	ints    *kindCache[int32]
	strings *kindCache[string]
	maps    map[string]*providers.SecretsProviders
	secrets mapset.Set[string]
}

type options struct {
	source envvar.Source
	decls  Declarations
	kinds  []providers.Kind
}

// Option configures New.
type Option func(*options)

// WithSource reads variables from src instead of the process environment.
func WithSource(src envvar.Source) Option {
	return func(o *options) { o.source = src }
}

// WithDeclarations replaces the compiled-in declaration table.
func WithDeclarations(d Declarations) Option {
	return func(o *options) { o.decls = d }
}

// WithProviderKinds replaces the secrets provider kinds discovery knows about.
func WithProviderKinds(kinds ...providers.Kind) Option {
	return func(o *options) { o.kinds = kinds }
}

// DefaultProviderKinds returns the built-in secrets provider kinds.
func DefaultProviderKinds() []providers.Kind {
	return []providers.Kind{vault.Kind(), awssm.Kind()}
}

// New loads every declared setting. Optional settings that are unset or
// malformed fall back to their defaults with a warning. Required settings
// that fail are all collected and returned together after the full pass.
// When use_secrets_provider is true the secrets providers are discovered
// before New returns; a discovery failure is returned as is.
func New(ctx context.Context, opts ...Option) (*Registry, error) {
	o := options{
		source: envvar.OSSource{},
		decls:  DefaultDeclarations(),
		kinds:  DefaultProviderKinds(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.decls.validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		bools:   newKindCache[bool](len(o.decls.Bools)),
		ints:    newKindCache[int32](len(o.decls.Ints)),
		strings: newKindCache[string](len(o.decls.Strings)),
		maps:    map[string]*providers.SecretsProviders{},
		secrets: mapset.NewThreadUnsafeSet[string](),
	}
	for _, d := range o.decls.Strings {
		if d.Secret {
			r.secrets.Add(d.Key)
		}
	}

	resolver := envvar.New(o.source)
	var errs *multierror.Error
	errs = load(ctx, resolver, o.decls.Bools, r.bools, errs)
	errs = load(ctx, resolver, o.decls.Ints, r.ints, errs)
	errs = load(ctx, resolver, o.decls.Strings, r.strings, errs)
	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if use, _ := r.GetBool(KeyUseSecretsProvider); use {
		dev, _ := r.GetBool(KeySecretsProviderDevMode)
		coll, err := providers.Discover(ctx, resolver, o.kinds, providers.WithDevMode(dev))
		if err != nil {
			return nil, err
		}
		r.maps[MapSecretsProviders] = coll
	}

	logctx.FromContext(ctx).Info("Settings loaded",
		slog.Int("bools", len(o.decls.Bools)),
		slog.Int("ints", len(o.decls.Ints)),
		slog.Int("strings", len(o.decls.Strings)),
		slog.Int("secretsProviders", r.SecretsProviderCount()))
	return r, nil
}

func load[V envvar.Value](ctx context.Context, res *envvar.Resolver, decls []Declaration[V], cache *kindCache[V], errs *multierror.Error) *multierror.Error {
	for _, d := range decls {
		v, err := envvar.Get(ctx, res, d.EnvVar, d.Default)
		if err != nil {
			logctx.FromContext(ctx).Error("Failed to load required setting",
				slog.String("key", d.Key),
				slog.String("var", d.EnvVar),
				slog.Any("error", err))
			errs = multierror.Append(errs, err)
			continue
		}
		cache.set(d.Key, v)
	}
	return errs
}

func (r *Registry) GetBool(key string) (bool, bool) {
	return r.bools.get(key)
}

func (r *Registry) GetInt(key string) (int32, bool) {
	return r.ints.get(key)
}

func (r *Registry) GetString(key string) (string, bool) {
	return r.strings.get(key)
}

// GetMap returns a provider collection stored under key.
func (r *Registry) GetMap(key string) (*providers.SecretsProviders, bool) {
	c, ok := r.maps[key]
	return c, ok
}

// SetBool stores value under key, returning the previous value if any.
func (r *Registry) SetBool(key string, value bool) (bool, bool) {
	return r.bools.set(key, value)
}

func (r *Registry) SetInt(key string, value int32) (int32, bool) {
	return r.ints.set(key, value)
}

func (r *Registry) SetString(key string, value string) (string, bool) {
	return r.strings.set(key, value)
}

// SecretsProviders returns every discovered secrets provider ordered by name.
func (r *Registry) SecretsProviders() []*providers.SecretsProvider {
	c, ok := r.GetMap(MapSecretsProviders)
	if !ok {
		return nil
	}
	return c.All()
}

// SecretsProvider looks a secrets provider up by name.
func (r *Registry) SecretsProvider(name string) (*providers.SecretsProvider, bool) {
	c, ok := r.GetMap(MapSecretsProviders)
	if !ok {
		return nil, false
	}
	return c.Get(name)
}

func (r *Registry) SecretsProviderCount() int {
	c, _ := r.GetMap(MapSecretsProviders)
	return c.Len()
}

// ProviderSummary describes a secrets provider without its data.
type ProviderSummary struct {
	Name         string `json:"name" yaml:"name"`
	Provision    string `json:"provision" yaml:"provision"`
	Connectivity string `json:"connectivity" yaml:"connectivity"`
	Address      string `json:"address,omitempty" yaml:"address,omitempty"`
}

// Snapshot is a point-in-time copy of the registry with secrets masked.
type Snapshot struct {
	Bools            map[string]bool   `json:"bools" yaml:"bools"`
	Ints             map[string]int32  `json:"ints" yaml:"ints"`
	Strings          map[string]string `json:"strings" yaml:"strings"`
	SecretsProviders []ProviderSummary `json:"secrets_providers,omitempty" yaml:"secrets_providers,omitempty"`
}

// Snapshot copies the current values. Reading it does not affect recency.
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		Bools:   r.bools.snapshot(),
		Ints:    r.ints.snapshot(),
		Strings: r.strings.snapshot(),
	}
	for key, v := range s.Strings {
		if v != "" && r.secrets.Contains(key) {
			s.Strings[key] = Masked
		}
	}
	for _, p := range r.SecretsProviders() {
		addr, _ := p.ConnectionInfo.Address()
		s.SecretsProviders = append(s.SecretsProviders, ProviderSummary{
			Name:         p.Name,
			Provision:    p.ProvisionType.String(),
			Connectivity: p.Connectivity.String(),
			Address:      addr,
		})
	}
	return s
}
