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
	"github.com/jellydator/ttlcache/v3"
)

// kindCache is a bounded recency cache for one kind of setting. Entries
// never expire; once capacity is reached the least recently read entry is
// evicted first. Capacity 0 means unbounded.
type kindCache[V any] struct {
	c *ttlcache.Cache[string, V]
}

func newKindCache[V any](capacity int) *kindCache[V] {
	return &kindCache[V]{
		c: ttlcache.New(ttlcache.WithCapacity[string, V](uint64(capacity))),
	}
}

func (k *kindCache[V]) get(key string) (V, bool) {
	item := k.c.Get(key)
	if item == nil {
		var zero V
		return zero, false
	}
	return item.Value(), true
}

// set stores value and returns what it replaced.
func (k *kindCache[V]) set(key string, value V) (V, bool) {
	var old V
	prev := k.c.Get(key)
	if prev != nil {
		old = prev.Value()
	}
	k.c.Set(key, value, ttlcache.NoTTL)
	return old, prev != nil
}

func (k *kindCache[V]) snapshot() map[string]V {
	items := k.c.Items()
	out := make(map[string]V, len(items))
	for key, item := range items {
		out[key] = item.Value()
	}
	return out
}
