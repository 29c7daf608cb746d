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

import (
	"errors"
	"fmt"
	"maps"
	"math"

	mapset "github.com/deckarep/golang-set/v2"
)

// ErrInvalidException is returned by NewPolicy for an exception without a
// usable level, or two exceptions sharing a name with different levels.
var ErrInvalidException = errors.New("invalid exception record")

// Reason names why a candidate is not trusted.
type Reason string

const (
	ReasonMissingConfig          Reason = "missing_config"
	ReasonInvalidLevel           Reason = "invalid_level"
	ReasonExceptionLevelMismatch Reason = "exception_level_mismatch"
	ReasonCeilingReached         Reason = "ceiling_reached"
	ReasonDuplicateName          Reason = "duplicate_name"
)

// Violation describes one untrusted candidate. Index is its position in the
// slice passed to Check.
type Violation struct {
	Index  int
	Name   string
	Reason Reason
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("#%d %q: %s (%s)", v.Index, v.Name, v.Reason, v.Detail)
}

// Policy evaluates candidates against a fixed exception list.
type Policy[R Record] struct {
	exceptions map[string]uint64
	ceiling    uint64
}

// NewPolicy validates exceptions and derives the ceiling from them. With no
// exceptions the ceiling is math.MaxUint64.
func NewPolicy[R Record](exceptions []R) (*Policy[R], error) {
	p := &Policy[R]{
		exceptions: make(map[string]uint64, len(exceptions)),
		ceiling:    math.MaxUint64,
	}
	for _, e := range exceptions {
		level, ok := Level(e)
		if !ok {
			return nil, fmt.Errorf("%w: %q has no valid level", ErrInvalidException, e.GetName())
		}
		if prev, dup := p.exceptions[e.GetName()]; dup && prev != level {
			return nil, fmt.Errorf("%w: %q declared with levels %d and %d", ErrInvalidException, e.GetName(), prev, level)
		}
		p.exceptions[e.GetName()] = level
		p.ceiling = min(p.ceiling, level)
	}
	return p, nil
}

// MaxAllowedLevel is the ceiling: non-exception candidates must stay below it.
func (p *Policy[R]) MaxAllowedLevel() uint64 {
	return p.ceiling
}

// evaluate returns "" for a trusted candidate.
func (p *Policy[R]) evaluate(c R) (Reason, string) {
	cfg := c.GetConfig()
	if cfg == nil {
		return ReasonMissingConfig, "config is absent"
	}
	level, ok := Level(c)
	if !ok {
		if raw, present := cfg[LevelKey]; present {
			return ReasonInvalidLevel, fmt.Sprintf("level %v is not a non-negative integer", raw)
		}
		return ReasonInvalidLevel, "level is absent"
	}
	if want, isException := p.exceptions[c.GetName()]; isException {
		if level != want {
			return ReasonExceptionLevelMismatch, fmt.Sprintf("level %d, canonical level %d", level, want)
		}
		return "", ""
	}
	if level >= p.ceiling {
		return ReasonCeilingReached, fmt.Sprintf("level %d, ceiling %d", level, p.ceiling)
	}
	return "", ""
}

// IsSecure reports whether a single candidate is trusted.
func (p *Policy[R]) IsSecure(c R) bool {
	reason, _ := p.evaluate(c)
	return reason == ""
}

// IsDataSecure reports whether the whole set is trusted: no duplicate names
// and every candidate secure.
func (p *Policy[R]) IsDataSecure(candidates []R) bool {
	seen := mapset.NewThreadUnsafeSetWithSize[string](len(candidates))
	for _, c := range candidates {
		if !seen.Add(c.GetName()) {
			return false
		}
	}
	for _, c := range candidates {
		if !p.IsSecure(c) {
			return false
		}
	}
	return true
}

// Check lists every reason the set is not trusted. An empty result means
// IsDataSecure would return true.
func (p *Policy[R]) Check(candidates []R) []Violation {
	var out []Violation
	seen := mapset.NewThreadUnsafeSetWithSize[string](len(candidates))
	for i, c := range candidates {
		if !seen.Add(c.GetName()) {
			out = append(out, Violation{Index: i, Name: c.GetName(), Reason: ReasonDuplicateName, Detail: "name already used"})
		}
		if reason, detail := p.evaluate(c); reason != "" {
			out = append(out, Violation{Index: i, Name: c.GetName(), Reason: reason, Detail: detail})
		}
	}
	return out
}

// SetDataSecure repairs candidates.
//
// With filter set, untrusted candidates are dropped. Otherwise each one is
// disarmed in place: its level is reset to 0 and, if it carries an
// exception's name, it is renamed to QuarantineName. A disarmed record never
// keeps a protected name, so the repaired set passes IsDataSecure.
// Either way duplicate names are then removed, keeping the lowest level of
// each name (earliest on ties) in original order.
func (p *Policy[R]) SetDataSecure(candidates []R, filter bool) []R {
	out := make([]R, 0, len(candidates))
	for _, c := range candidates {
		reason, _ := p.evaluate(c)
		switch {
		case reason == "":
			out = append(out, c)
		case filter:
		default:
			_, protected := p.exceptions[c.GetName()]
			disarm(c, protected)
			out = append(out, c)
		}
	}
	return dedupe(out)
}

func disarm[R Record](c R, quarantine bool) {
	cfg := maps.Clone(c.GetConfig())
	if cfg == nil {
		cfg = map[string]any{}
	}
	cfg[LevelKey] = uint64(0)
	c.SetConfig(cfg)
	if quarantine {
		c.SetName(QuarantineName)
	}
}

// dedupe keeps one record per name: the lowest level, then the earliest.
// Records without a valid level rank after every valid one.
func dedupe[R Record](records []R) []R {
	best := make(map[string]int, len(records))
	for i, r := range records {
		j, ok := best[r.GetName()]
		if !ok || less(r, records[j]) {
			best[r.GetName()] = i
		}
	}
	if len(best) == len(records) {
		return records
	}
	out := make([]R, 0, len(best))
	for i, r := range records {
		if best[r.GetName()] == i {
			out = append(out, r)
		}
	}
	return out
}

func less(a, b Record) bool {
	la, oka := Level(a)
	lb, okb := Level(b)
	switch {
	case oka && okb:
		return la < lb
	default:
		return oka && !okb
	}
}
