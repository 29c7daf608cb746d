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

package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/celestus/internal/envvar"
	"github.com/cardinalhq/celestus/internal/logctx"
)

const (
	// EnvSecretsProviders lists the configured provider names.
	EnvSecretsProviders = "SECRETS_PROVIDERS"

	envSingleUse = "SINGLE_USE"
	envScheme    = "SCHEME"
	envHost      = "HOST"
	envPort      = "PORT"
	envURL       = "URL"
)

// ErrProviderDiscovery marks a fatal failure while discovering providers.
var ErrProviderDiscovery = errors.New("secrets provider discovery failed")

var tracer = otel.Tracer("github.com/cardinalhq/celestus/internal/providers")

// Params is what a Kind gets to build one provider.
type Params struct {
	// Name is the lowercase provider name, used as the collection key.
	Name string
	// Prefix is the uppercase environment prefix, e.g. "VAULT_MAIN_".
	Prefix string
	// Env resolves variables under Prefix.
	Env *envvar.Resolver
	// DevMode relaxes handshakes meant for production deployments.
	DevMode bool
}

// Connection reads SCHEME, HOST, PORT and URL. Every field is optional here;
// stores decide which ones they require.
func (p Params) Connection(ctx context.Context, defaultPort int32) (ConnectionInfo, error) {
	var info ConnectionInfo
	var err error

	if info.URL, err = p.Optional(ctx, envURL, ""); err != nil {
		return info, err
	}
	if info.Host, err = p.Optional(ctx, envHost, ""); err != nil {
		return info, err
	}
	if info.Scheme, err = p.Optional(ctx, envScheme, "https"); err != nil {
		return info, err
	}

	// PORT is strict: a malformed value is a broken declaration, not a fallback.
	if _, set := p.Env.Lookup(envPort); set {
		if info.Port, err = envvar.Get[int32](ctx, p.Env, envPort, nil); err != nil {
			return info, err
		}
		if info.Port <= 0 || info.Port > 65535 {
			return info, &envvar.ConfigError{
				Var: p.Prefix + envPort,
				Err: fmt.Errorf("%w: port %d out of range", envvar.ErrMalformed, info.Port),
			}
		}
	} else {
		info.Port = defaultPort
	}
	return info, nil
}

// Provision reads SINGLE_USE: true (the default) means OneTime.
func (p Params) Provision(ctx context.Context) (Provision, error) {
	if _, set := p.Env.Lookup(envSingleUse); !set {
		return OneTime, nil
	}
	single, err := envvar.Get[bool](ctx, p.Env, envSingleUse, nil)
	if err != nil {
		return OneTime, err
	}
	if single {
		return OneTime, nil
	}
	return OnDemand, nil
}

// Require resolves a mandatory string parameter.
func (p Params) Require(ctx context.Context, name string) (string, error) {
	return envvar.Get[string](ctx, p.Env, name, nil)
}

// Optional resolves a string parameter, falling back to def.
func (p Params) Optional(ctx context.Context, name, def string) (string, error) {
	if _, set := p.Env.Lookup(name); !set {
		return def, nil
	}
	return envvar.Get[string](ctx, p.Env, name, nil)
}

// BuildFunc constructs an unauthenticated provider from its parameters.
type BuildFunc func(ctx context.Context, p Params) (*SecretsProvider, error)

// Kind binds a name fragment to a provider constructor. A declared provider
// name containing Match (uppercase) is built by Build.
type Kind struct {
	Match string
	Build BuildFunc
}

type discoverOptions struct {
	devMode bool
}

// DiscoverOption configures Discover.
type DiscoverOption func(*discoverOptions)

// WithDevMode passes the development-mode flag to every Kind.
func WithDevMode(dev bool) DiscoverOption {
	return func(o *discoverOptions) { o.devMode = dev }
}

// Discover reads SECRETS_PROVIDERS, builds every provider whose name matches
// one of kinds, authenticates it and, for OneTime providers, fetches its
// data. Names matching no kind are skipped with a warning.
func Discover(ctx context.Context, r *envvar.Resolver, kinds []Kind, opts ...DiscoverOption) (*SecretsProviders, error) {
	var o discoverOptions
	for _, opt := range opts {
		opt(&o)
	}

	names, err := envvar.Get[[]string](ctx, r, EnvSecretsProviders, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderDiscovery, err)
	}

	ctx, span := tracer.Start(ctx, "providers.discover",
		trace.WithAttributes(attribute.StringSlice("providers.declared", names)))
	defer span.End()

	collection := newCollection[*SecretsProvider]()
	err = runToCompletion(ctx, func(ctx context.Context) error {
		for _, declared := range names {
			if err := discoverOne(ctx, r, kinds, o, collection, declared); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider discovery failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("providers.loaded", collection.Len()))
	return collection, nil
}

func discoverOne(ctx context.Context, r *envvar.Resolver, kinds []Kind, o discoverOptions, collection *SecretsProviders, declared string) error {
	upper := strings.ToUpper(strings.TrimSpace(declared))
	name := strings.ToLower(upper)
	logger := logctx.FromContext(ctx).With(slog.String("provider", name))

	kind, ok := matchKind(kinds, upper)
	if !ok {
		logger.Warn("Declared secrets provider matches no supported kind, skipping",
			slog.Any("supported", kindNames(kinds)))
		return nil
	}
	if _, exists := collection.Get(name); exists {
		return fmt.Errorf("%w: duplicate provider name %q", ErrProviderDiscovery, name)
	}

	params := Params{
		Name:    name,
		Prefix:  upper + "_",
		Env:     r.WithPrefix(upper + "_"),
		DevMode: o.devMode,
	}
	provider, err := kind.Build(ctx, params)
	if err != nil {
		return fmt.Errorf("%w: provider %s: %w", ErrProviderDiscovery, name, err)
	}
	provider.Name = name
	provider.Prefix = params.Prefix

	if err := provider.bringUp(ctx); err != nil {
		return fmt.Errorf("%w: provider %s: %w", ErrProviderDiscovery, name, err)
	}
	if err := collection.add(name, provider); err != nil {
		return fmt.Errorf("%w: %w", ErrProviderDiscovery, err)
	}

	logger.Info("Secrets provider ready",
		slog.String("kind", kind.Match),
		slog.String("provision", provider.ProvisionType.String()))
	return nil
}

func matchKind(kinds []Kind, upper string) (Kind, bool) {
	for _, k := range kinds {
		if k.Match != "" && strings.Contains(upper, strings.ToUpper(k.Match)) {
			return k, true
		}
	}
	return Kind{}, false
}

func kindNames(kinds []Kind) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k.Match)
	}
	return out
}

// runToCompletion runs fn on a scoped worker and waits for it, so callers
// see provider bring-up as one blocking call.
func runToCompletion(ctx context.Context, fn func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return fn(gctx)
	})
	return g.Wait()
}
