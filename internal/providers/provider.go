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
	"maps"
	"net"
	"net/url"
	"strconv"
)

// Provision controls when a provider's data is fetched.
type Provision int

const (
	// OneTime fetches once during discovery and serves the cached copy afterwards.
	OneTime Provision = iota
	// OnDemand fetches on every access.
	OnDemand
)

func (p Provision) String() string {
	switch p {
	case OneTime:
		return "one_time"
	case OnDemand:
		return "on_demand"
	default:
		return fmt.Sprintf("provision(%d)", int(p))
	}
}

// Connectivity describes how a provider talks to its backend.
type Connectivity int

const (
	SingleConnection Connectivity = iota
	ConnectionPool
)

func (c Connectivity) String() string {
	switch c {
	case SingleConnection:
		return "single_connection"
	case ConnectionPool:
		return "connection_pool"
	default:
		return fmt.Sprintf("connectivity(%d)", int(c))
	}
}

// ConnectionInfo locates a provider's backend. URL wins over Host and Port
// when both are set.
type ConnectionInfo struct {
	Scheme string
	Host   string
	Port   int32
	URL    string
}

var errNoAddress = errors.New("neither URL nor HOST is set")

// Address returns the backend address.
func (c ConnectionInfo) Address() (string, error) {
	if c.URL != "" {
		if _, err := url.Parse(c.URL); err != nil {
			return "", fmt.Errorf("invalid URL %q: %w", c.URL, err)
		}
		return c.URL, nil
	}
	if c.Host == "" {
		return "", errNoAddress
	}
	scheme := c.Scheme
	if scheme == "" {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: c.Host}
	if c.Port > 0 {
		u.Host = net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
	}
	return u.String(), nil
}

// DataProvider is one named, configured external data source.
type DataProvider[Info any, Impl any] struct {
	Name           string
	Prefix         string
	ConnectionInfo Info
	ProvisionType  Provision
	Connectivity   Connectivity
	Implementation Impl
}

// SecretStore is the contract every secret backend implements.
type SecretStore interface {
	// Authenticate performs the backend's login handshake.
	Authenticate(ctx context.Context) error
	// Fetch reads the configured secret.
	Fetch(ctx context.Context) (map[string]any, error)
}

// SecretsProvider is a DataProvider backed by a SecretStore.
type SecretsProvider struct {
	DataProvider[ConnectionInfo, SecretStore]

	data map[string]any
}

// Data returns the provider's secret material. OneTime providers serve the
// copy fetched during discovery; OnDemand providers fetch on every call.
func (p *SecretsProvider) Data(ctx context.Context) (map[string]any, error) {
	if p.ProvisionType == OnDemand {
		if p.Implementation == nil {
			return nil, fmt.Errorf("provider %s has no implementation", p.Name)
		}
		data, err := p.Implementation.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("provider %s: fetch: %w", p.Name, err)
		}
		return data, nil
	}
	return maps.Clone(p.data), nil
}

func (p *SecretsProvider) bringUp(ctx context.Context) error {
	if p.Implementation == nil {
		return errors.New("no implementation")
	}
	if err := p.Implementation.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if p.ProvisionType != OneTime {
		return nil
	}
	data, err := p.Implementation.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("initial fetch: %w", err)
	}
	p.data = data
	return nil
}
