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

package seedpolicy

// The functions below build a Policy per call. When the exception list is
// itself invalid they fail closed: nothing is trusted.

// MaxAllowedLevel returns the lowest exception level, math.MaxUint64 for an
// empty list, or 0 when the list is invalid.
func MaxAllowedLevel[R Record](exceptions []R) uint64 {
	p, err := NewPolicy(exceptions)
	if err != nil {
		return 0
	}
	return p.MaxAllowedLevel()
}

func IsSecure[R Record](candidate R, exceptions []R) bool {
	p, err := NewPolicy(exceptions)
	if err != nil {
		return false
	}
	return p.IsSecure(candidate)
}

func IsDataSecure[R Record](candidates, exceptions []R) bool {
	p, err := NewPolicy(exceptions)
	if err != nil {
		return false
	}
	return p.IsDataSecure(candidates)
}

// SetDataSecure repairs candidates; see Policy.SetDataSecure. With an invalid
// exception list, filter drops everything and fix disarms everything.
func SetDataSecure[R Record](candidates, exceptions []R, filter bool) []R {
	p, err := NewPolicy(exceptions)
	if err != nil {
		if filter {
			return []R{}
		}
		for _, c := range candidates {
			disarm(c, false)
		}
		return dedupe(candidates)
	}
	return p.SetDataSecure(candidates, filter)
}

func Check[R Record](candidates, exceptions []R) ([]Violation, error) {
	p, err := NewPolicy(exceptions)
	if err != nil {
		return nil, err
	}
	return p.Check(candidates), nil
}
