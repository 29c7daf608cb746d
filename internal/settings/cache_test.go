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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindCache_SetReturnsPrevious(t *testing.T) {
	c := newKindCache[int32](0)

	old, existed := c.set("port", 5432)
	assert.False(t, existed)
	assert.Zero(t, old)

	old, existed = c.set("port", 6432)
	assert.True(t, existed)
	assert.Equal(t, int32(5432), old)

	v, ok := c.get("port")
	require.True(t, ok)
	assert.Equal(t, int32(6432), v)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestKindCache_EvictsLeastRecentlyRead(t *testing.T) {
	c := newKindCache[string](2)
	c.set("a", "1")
	c.set("b", "2")

	_, ok := c.get("a")
	require.True(t, ok)

	c.set("c", "3")

	_, ok = c.get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.get("a")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestKindCache_Snapshot(t *testing.T) {
	c := newKindCache[bool](0)
	c.set("x", true)
	c.set("y", false)
	assert.Equal(t, map[string]bool{"x": true, "y": false}, c.snapshot())
}
