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

// Package migrations holds the celestus schema and applies it with
// golang-migrate.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/cardinalhq/celestus/internal/logctx"
)

//go:embed *.sql
var migrationFiles embed.FS

// MigrationsTable records the applied schema version.
const MigrationsTable = "gomigrate_celestus"

// newMigrate opens a migrate instance over pool. The returned close function
// releases the driver and the database/sql handle.
func newMigrate(pool *pgxpool.Pool) (*migrate.Migrate, func(), error) {
	sourceDriver, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create iofs driver: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	dbDriver, err := pgx.WithInstance(sqlDB, &pgx.Config{
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to create pgx driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		closeAll(dbDriver.Close, sqlDB)
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, func() { closeAll(dbDriver.Close, sqlDB) }, nil
}

func closeAll(driverClose func() error, sqlDB *sql.DB) {
	_ = driverClose()
	_ = sqlDB.Close()
}

// RunMigrationsUp applies all up migrations using the embedded files.
func RunMigrationsUp(ctx context.Context, pool *pgxpool.Pool) error {
	m, done, err := newMigrate(pool)
	if err != nil {
		return err
	}
	defer done()

	_, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if dirty {
		return errors.New("migration is dirty, please fix it before proceeding")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, _, _ := m.Version()
	logctx.FromContext(ctx).Info("Migrations applied", slog.Uint64("version", uint64(version)))
	return nil
}

// currentVersion reads the applied version. An empty table is version 0.
func currentVersion(pool *pgxpool.Pool) (uint, bool, error) {
	m, done, err := newMigrate(pool)
	if err != nil {
		return 0, false, err
	}
	defer done()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, dirty, nil
}
