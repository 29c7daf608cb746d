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

package seedpolicy_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/celestus/internal/rolegroups"
	"github.com/cardinalhq/celestus/internal/seedpolicy"
)

func seed(name string, level any) *rolegroups.Seed {
	return &rolegroups.Seed{Name: name, Config: map[string]any{seedpolicy.LevelKey: level}}
}

func levelOf(t *testing.T, r seedpolicy.Record) uint64 {
	t.Helper()
	l, ok := seedpolicy.Level(r)
	require.True(t, ok, "record %q has no valid level", r.GetName())
	return l
}

func names(records []*rolegroups.Seed) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Name)
	}
	return out
}

func TestLevel(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  uint64
		ok    bool
	}{
		{"json number", json.Number("100000"), 100000, true},
		{"json number max", json.Number("18446744073709551615"), math.MaxUint64, true},
		{"json number overflow", json.Number("18446744073709551616"), 0, false},
		{"json number negative", json.Number("-1"), 0, false},
		{"json number fraction", json.Number("1.5"), 0, false},
		{"float integral", float64(1000), 1000, true},
		{"float fraction", 1.25, 0, false},
		{"float negative", -3.0, 0, false},
		{"float too large", 1e20, 0, false},
		{"float NaN", math.NaN(), 0, false},
		{"uint64", uint64(7), 7, true},
		{"uint32", uint32(7), 7, true},
		{"int", 7, 7, true},
		{"negative int", -7, 0, false},
		{"int64", int64(9), 9, true},
		{"string", "100", 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := seedpolicy.Level(seed("X", tt.value))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}

	_, ok := seedpolicy.Level(&rolegroups.Seed{Name: "X"})
	assert.False(t, ok, "nil config")
	_, ok = seedpolicy.Level(&rolegroups.Seed{Name: "X", Config: map[string]any{}})
	assert.False(t, ok, "no level key")
}

func TestMaxAllowedLevel(t *testing.T) {
	assert.Equal(t, rolegroups.LevelAdmin, seedpolicy.MaxAllowedLevel(rolegroups.Exceptions()))
	assert.Equal(t, uint64(math.MaxUint64), seedpolicy.MaxAllowedLevel([]*rolegroups.Seed{}))
	assert.Equal(t, uint64(0), seedpolicy.MaxAllowedLevel([]*rolegroups.Seed{seed("BROKEN", "high")}))
}

func TestNewPolicy_InvalidExceptions(t *testing.T) {
	_, err := seedpolicy.NewPolicy([]*rolegroups.Seed{{Name: "ADMIN"}})
	assert.ErrorIs(t, err, seedpolicy.ErrInvalidException)

	_, err = seedpolicy.NewPolicy([]*rolegroups.Seed{seed("ADMIN", 1), seed("ADMIN", 2)})
	assert.ErrorIs(t, err, seedpolicy.ErrInvalidException)

	p, err := seedpolicy.NewPolicy([]*rolegroups.Seed{seed("ADMIN", 5), seed("ADMIN", 5)})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), p.MaxAllowedLevel())
}

func TestIsSecure_ExceptionPinnedToExactLevel(t *testing.T) {
	ex := rolegroups.Exceptions()

	assert.True(t, seedpolicy.IsSecure(seed(rolegroups.NameAdmin, rolegroups.LevelAdmin), ex))
	assert.False(t, seedpolicy.IsSecure(seed(rolegroups.NameAdmin, 1), ex))
	assert.False(t, seedpolicy.IsSecure(seed(rolegroups.NameAdmin, rolegroups.LevelAdmin+1), ex))

	assert.True(t, seedpolicy.IsSecure(seed(rolegroups.NameSystem, json.Number("4294967295")), ex))
	assert.False(t, seedpolicy.IsSecure(seed(rolegroups.NameSystem, json.Number("18446744073709551615")), ex))

	for _, level := range []uint64{0, 1, 999, rolegroups.LevelAdmin - 1, rolegroups.LevelAdmin, rolegroups.LevelAdmin + 1, math.MaxUint64} {
		got := seedpolicy.IsSecure(seed(rolegroups.NameAdmin, level), ex)
		assert.Equal(t, level == rolegroups.LevelAdmin, got, "level %d", level)
	}
}

func TestIsSecure_CeilingIsStrict(t *testing.T) {
	ex := rolegroups.Exceptions()

	assert.True(t, seedpolicy.IsSecure(seed(rolegroups.NameUser, 99999), ex))
	assert.False(t, seedpolicy.IsSecure(seed(rolegroups.NameUser, 100000), ex))

	for _, level := range []uint64{0, 1000, 99999, 100000, 100001, math.MaxUint32} {
		got := seedpolicy.IsSecure(seed("OPERATOR", level), ex)
		assert.Equal(t, level < rolegroups.LevelAdmin, got, "level %d", level)
	}
}

func TestIsSecure_MissingOrInvalidLevel(t *testing.T) {
	ex := rolegroups.Exceptions()
	assert.False(t, seedpolicy.IsSecure(&rolegroups.Seed{Name: rolegroups.NameUser}, ex))
	assert.False(t, seedpolicy.IsSecure(&rolegroups.Seed{Name: rolegroups.NameUser, Config: map[string]any{"color": "red"}}, ex))
	assert.False(t, seedpolicy.IsSecure(seed(rolegroups.NameUser, -1), ex))
	assert.False(t, seedpolicy.IsSecure(seed(rolegroups.NameUser, "1000"), ex))
}

func TestIsSecure_NoExceptions(t *testing.T) {
	assert.True(t, seedpolicy.IsSecure(seed("ANY", uint64(math.MaxUint64-1)), []*rolegroups.Seed{}))
	assert.False(t, seedpolicy.IsSecure(seed("ANY", uint64(math.MaxUint64)), []*rolegroups.Seed{}))
}

func TestIsDataSecure(t *testing.T) {
	ex := rolegroups.Exceptions()

	assert.True(t, seedpolicy.IsDataSecure(rolegroups.Predefined(), ex))
	assert.True(t, seedpolicy.IsDataSecure([]*rolegroups.Seed{}, ex))

	dup := append(rolegroups.Predefined(), seed(rolegroups.NameUser, 1000))
	assert.False(t, seedpolicy.IsDataSecure(dup, ex), "duplicates are never secure")

	tampered := rolegroups.Predefined()
	tampered[2].Config[seedpolicy.LevelKey] = uint64(200000)
	assert.False(t, seedpolicy.IsDataSecure(tampered, ex))
}

func TestSetDataSecure_FilterDropsViolators(t *testing.T) {
	ex := rolegroups.Exceptions()
	candidates := []*rolegroups.Seed{
		seed(rolegroups.NameSystem, rolegroups.LevelSystem),
		seed(rolegroups.NameAdmin, 1),
		seed(rolegroups.NameClient, 10000),
		seed("ROOT", 500000),
		{Name: "NOCONFIG"},
		seed(rolegroups.NameUser, 1000),
	}

	got := seedpolicy.SetDataSecure(candidates, ex, true)
	assert.Equal(t, []string{rolegroups.NameSystem, rolegroups.NameClient, rolegroups.NameUser}, names(got))
	for _, c := range got {
		assert.True(t, seedpolicy.IsSecure(c, ex), c.Name)
	}
	assert.Equal(t, rolegroups.NameAdmin, candidates[1].Name, "filter leaves dropped records alone")
}

func TestSetDataSecure_FixDisarmsInPlace(t *testing.T) {
	ex := rolegroups.Exceptions()
	candidates := []*rolegroups.Seed{
		seed(rolegroups.NameSystem, rolegroups.LevelSystem),
		seed(rolegroups.NameAdmin, 1),
		seed("ROOT", json.Number("500000")),
		{Name: "NOCONFIG"},
		{Name: "BADLEVEL", Config: map[string]any{seedpolicy.LevelKey: "high", "color": "red"}},
		seed(rolegroups.NameUser, 1000),
	}

	got := seedpolicy.SetDataSecure(candidates, ex, false)
	require.Len(t, got, 6)
	assert.Equal(t, []string{
		rolegroups.NameSystem,
		seedpolicy.QuarantineName,
		"ROOT",
		"NOCONFIG",
		"BADLEVEL",
		rolegroups.NameUser,
	}, names(got))

	for _, i := range []int{1, 2, 3, 4} {
		assert.Equal(t, uint64(0), levelOf(t, got[i]), got[i].Name)
	}
	assert.Equal(t, "red", got[4].Config["color"], "other config keys survive")
	assert.Equal(t, rolegroups.LevelSystem, levelOf(t, got[0]))
	assert.Equal(t, uint64(1000), levelOf(t, got[5]))

	assert.True(t, seedpolicy.IsDataSecure(got, ex))
}

func TestSetDataSecure_ExceptionNameWithoutLevelIsQuarantined(t *testing.T) {
	ex := rolegroups.Exceptions()
	candidates := []*rolegroups.Seed{
		seed(rolegroups.NameSystem, rolegroups.LevelSystem),
		{Name: rolegroups.NameAdmin},
		seed(rolegroups.NameAdmin, "top"),
		seed(rolegroups.NameClient, 10000),
		seed(rolegroups.NameUser, 1000),
	}

	got := seedpolicy.SetDataSecure(candidates, ex, false)
	assert.Equal(t, []string{
		rolegroups.NameSystem,
		seedpolicy.QuarantineName,
		rolegroups.NameClient,
		rolegroups.NameUser,
	}, names(got))
	assert.Equal(t, uint64(0), levelOf(t, got[1]))
	assert.True(t, seedpolicy.IsDataSecure(got, ex), "one fix pass yields a trusted set")

	again := seedpolicy.SetDataSecure(got, ex, false)
	assert.Equal(t, names(got), names(again))
}

func TestSetDataSecure_DedupeKeepsLowestLevelInOrder(t *testing.T) {
	ex := rolegroups.Exceptions()
	candidates := []*rolegroups.Seed{
		seed(rolegroups.NameUser, 5000),
		seed(rolegroups.NameClient, 10000),
		seed(rolegroups.NameUser, 1000),
		seed(rolegroups.NameClient, 10000),
		seed(rolegroups.NameAdmin, 7),
		seed(rolegroups.NameAdmin, 9),
	}

	got := seedpolicy.SetDataSecure(candidates, ex, false)
	// Both ADMIN entries are quarantined and collapse into one.
	assert.Equal(t, []string{rolegroups.NameClient, rolegroups.NameUser, seedpolicy.QuarantineName}, names(got))
	assert.Same(t, candidates[1], got[0])
	assert.Same(t, candidates[2], got[1])
	assert.Same(t, candidates[4], got[2])
	assert.True(t, seedpolicy.IsDataSecure(got, ex))
}

func TestSetDataSecure_Idempotent(t *testing.T) {
	ex := rolegroups.Exceptions()

	secure := rolegroups.Predefined()
	for _, filter := range []bool{true, false} {
		got := seedpolicy.SetDataSecure(rolegroups.Predefined(), ex, filter)
		assert.Equal(t, secure, got)
	}

	once := seedpolicy.SetDataSecure([]*rolegroups.Seed{
		seed(rolegroups.NameAdmin, 3),
		seed("ROOT", 900000),
		seed(rolegroups.NameUser, 1000),
	}, ex, false)
	snapshot, err := json.Marshal(once)
	require.NoError(t, err)

	twice := seedpolicy.SetDataSecure(once, ex, false)
	again, err := json.Marshal(twice)
	require.NoError(t, err)
	assert.JSONEq(t, string(snapshot), string(again))
}

func TestSetDataSecure_InvalidExceptionsFailClosed(t *testing.T) {
	bad := []*rolegroups.Seed{{Name: rolegroups.NameAdmin}}

	assert.False(t, seedpolicy.IsDataSecure(rolegroups.Predefined(), bad))
	assert.False(t, seedpolicy.IsSecure(seed(rolegroups.NameUser, 1), bad))
	assert.Empty(t, seedpolicy.SetDataSecure(rolegroups.Predefined(), bad, true))

	fixed := seedpolicy.SetDataSecure(rolegroups.Predefined(), bad, false)
	require.Len(t, fixed, 4)
	for _, f := range fixed {
		assert.Equal(t, uint64(0), levelOf(t, f))
	}
}

func TestCheck(t *testing.T) {
	ex := rolegroups.Exceptions()
	candidates := []*rolegroups.Seed{
		seed(rolegroups.NameAdmin, 1),
		seed(rolegroups.NameUser, 100000),
		{Name: "NOCONFIG"},
		{Name: "NOLEVEL", Config: map[string]any{}},
		seed(rolegroups.NameClient, 10000),
		seed(rolegroups.NameClient, 10000),
	}

	violations, err := seedpolicy.Check(candidates, ex)
	require.NoError(t, err)

	reasons := make([]seedpolicy.Reason, 0, len(violations))
	for _, v := range violations {
		reasons = append(reasons, v.Reason)
	}
	assert.Equal(t, []seedpolicy.Reason{
		seedpolicy.ReasonExceptionLevelMismatch,
		seedpolicy.ReasonCeilingReached,
		seedpolicy.ReasonMissingConfig,
		seedpolicy.ReasonInvalidLevel,
		seedpolicy.ReasonDuplicateName,
	}, reasons)
	assert.Equal(t, 5, violations[4].Index)
	assert.Contains(t, violations[0].String(), "ADMIN")

	none, err := seedpolicy.Check(rolegroups.Predefined(), ex)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = seedpolicy.Check(candidates, []*rolegroups.Seed{{Name: "X"}})
	assert.ErrorIs(t, err, seedpolicy.ErrInvalidException)
}
