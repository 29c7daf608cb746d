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
	"fmt"
	"slices"
	"strings"
)

// Collection holds providers by lowercase name. It is filled during
// discovery and read-only afterwards.
type Collection[P any] struct {
	items map[string]P
}

// SecretsProviders is the collection stored in the settings registry.
type SecretsProviders = Collection[*SecretsProvider]

func newCollection[P any]() *Collection[P] {
	return &Collection[P]{items: map[string]P{}}
}

func (c *Collection[P]) add(name string, p P) error {
	if _, exists := c.items[name]; exists {
		return fmt.Errorf("duplicate provider name %q", name)
	}
	c.items[name] = p
	return nil
}

// Get looks a provider up by name, case insensitive.
func (c *Collection[P]) Get(name string) (P, bool) {
	var zero P
	if c == nil {
		return zero, false
	}
	p, ok := c.items[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Len returns the number of providers.
func (c *Collection[P]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Names returns the provider names in sorted order.
func (c *Collection[P]) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.items))
	for name := range c.items {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// All returns the providers ordered by name.
func (c *Collection[P]) All() []P {
	names := c.Names()
	out := make([]P, 0, len(names))
	for _, name := range names {
		out = append(out, c.items[name])
	}
	return out
}
