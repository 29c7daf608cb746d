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

// Package rolegroups defines the authorization role groups: the canonical
// seed set compiled into the binary and the row shape stored in Postgres.
package rolegroups

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cardinalhq/celestus/internal/seedpolicy"
)

// Entity is the seed entity name, also the table name.
const Entity = "role_groups"

// SeedFile is the seed file name inside the seed directory.
const SeedFile = "role_groups.json"

const (
	NameSystem = "SYSTEM"
	NameAdmin  = "ADMIN"
	NameClient = "CLIENT"
	NameUser   = "USER"
)

const (
	LevelSystem uint64 = math.MaxUint32
	LevelAdmin  uint64 = 100_000
	LevelClient uint64 = 10_000
	LevelUser   uint64 = 1_000
)

// Seed is one role group as it appears in the seed file.
type Seed struct {
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Config      map[string]any `json:"config"`
}

var _ seedpolicy.Record = (*Seed)(nil)

func (s *Seed) GetName() string {
	return s.Name
}

func (s *Seed) SetName(name string) {
	s.Name = name
}

func (s *Seed) GetConfig() map[string]any {
	return s.Config
}

func (s *Seed) SetConfig(cfg map[string]any) {
	s.Config = cfg
}

func newSeed(name, description string, level uint64) *Seed {
	return &Seed{
		Name:        name,
		Description: &description,
		Config:      map[string]any{seedpolicy.LevelKey: level},
	}
}

// Predefined returns a fresh copy of the canonical role groups.
func Predefined() []*Seed {
	return []*Seed{
		newSeed(NameSystem, "Internal system principals", LevelSystem),
		newSeed(NameAdmin, "Platform administrators", LevelAdmin),
		newSeed(NameClient, "Client applications", LevelClient),
		newSeed(NameUser, "End users", LevelUser),
	}
}

// Exceptions returns a fresh copy of the role groups pinned to their exact
// canonical level. The lowest of them is the ceiling for every other group.
func Exceptions() []*Seed {
	var out []*Seed
	for _, s := range Predefined() {
		if s.Name == NameSystem || s.Name == NameAdmin {
			out = append(out, s)
		}
	}
	return out
}

// RoleGroup is a row of the role_groups table.
type RoleGroup struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Config      map[string]any `json:"config"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
	HiddenAt    *time.Time     `json:"hidden_at,omitempty"`
}
