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

// Package store reads seedable entities from Postgres.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cardinalhq/celestus/internal/rolegroups"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const selectRoleGroups = `SELECT id, name, description, config, created_at, updated_at, deleted_at, hidden_at
FROM role_groups
ORDER BY created_at, name`

// RoleGroups lists rows of the role_groups table.
type RoleGroups struct {
	db Querier
}

func NewRoleGroups(db Querier) *RoleGroups {
	return &RoleGroups{db: db}
}

// GetAll returns every role group row.
func (s *RoleGroups) GetAll(ctx context.Context) ([]rolegroups.RoleGroup, error) {
	rows, err := s.db.Query(ctx, selectRoleGroups)
	if err != nil {
		return nil, fmt.Errorf("query role_groups: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (rolegroups.RoleGroup, error) {
		var rg rolegroups.RoleGroup
		err := row.Scan(&rg.ID, &rg.Name, &rg.Description, &rg.Config,
			&rg.CreatedAt, &rg.UpdatedAt, &rg.DeletedAt, &rg.HiddenAt)
		return rg, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan role_groups: %w", err)
	}
	return out, nil
}
