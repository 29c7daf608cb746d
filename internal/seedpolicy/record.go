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

// Package seedpolicy decides whether a candidate set of seed records may be
// trusted, given the exception records drawn from the compiled-in canonical
// set, and repairs sets that may not.
//
// Every record carries a privilege level in config["level"]. An exception
// record is pinned to its exact canonical level. Every other record must sit
// strictly below the ceiling, which is the lowest level among the exceptions.
// Duplicate names make a whole set untrustworthy.
package seedpolicy

import (
	"encoding/json"
	"math"
	"strconv"
)

// LevelKey is the config key holding a record's privilege level.
const LevelKey = "level"

// QuarantineName replaces the name of a record that claimed a protected
// identity with the wrong level.
const QuarantineName = "QUARANTINED"

// Record is a named seed entry with an optional config object.
// Implementations use pointer receivers so the setters take effect.
type Record interface {
	GetName() string
	SetName(name string)
	GetConfig() map[string]any
	SetConfig(cfg map[string]any)
}

// Level returns the record's privilege level. It reports false when the
// config or the level is absent, or the level is not a non-negative integer
// that fits in 64 bits.
func Level(r Record) (uint64, bool) {
	cfg := r.GetConfig()
	if cfg == nil {
		return 0, false
	}
	v, ok := cfg[LevelKey]
	if !ok {
		return 0, false
	}
	return toLevel(v)
}

func toLevel(v any) (uint64, bool) {
	switch n := v.(type) {
	case json.Number:
		u, err := strconv.ParseUint(string(n), 10, 64)
		return u, err == nil
	case float64:
		// 2^64 is exactly representable; anything at or above it overflows.
		if n < 0 || n != math.Trunc(n) || n >= 18446744073709551616.0 {
			return 0, false
		}
		return uint64(n), true
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case int:
		return uint64(n), n >= 0
	case int32:
		return uint64(n), n >= 0
	case int64:
		return uint64(n), n >= 0
	default:
		return 0, false
	}
}
