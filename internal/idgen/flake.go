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

// Package idgen issues process-unique numeric ids.
package idgen

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sony/sonyflake"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// FlakeGenerator hands out increasing ids. When no machine id can be
// derived it falls back to random ids.
type FlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// NewFlakeGenerator builds a generator. machineID overrides sonyflake's
// private-IP based machine id when non-nil.
func NewFlakeGenerator(machineID func() (uint16, error)) (*FlakeGenerator, error) {
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: epoch,
		MachineID: machineID,
	})
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("failed to create Sonyflake instance")
	}
	return &FlakeGenerator{sf: sf}, nil
}

func (g *FlakeGenerator) NextID() int64 {
	if g == nil || g.sf == nil {
		return rand.Int64()
	}
	v, err := g.sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}

var (
	instanceOnce sync.Once
	instanceID   int64
)

// InstanceID identifies this process in logs and telemetry. It is computed
// once.
func InstanceID() int64 {
	instanceOnce.Do(func() {
		g, err := NewFlakeGenerator(nil)
		if err != nil {
			instanceID = rand.Int64()
			return
		}
		instanceID = g.NextID()
	})
	return instanceID
}
