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

package migrations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/celestus/internal/logctx"
)

// CheckMode defines how migration version checking should behave
type CheckMode int

const (
	// CheckModeWait waits for migrations to complete, failing if they don't complete within timeout
	CheckModeWait CheckMode = iota
	// CheckModeWarn logs a version mismatch and continues
	CheckModeWarn
	// CheckModeSkip skips migration checking entirely
	CheckModeSkip
)

// ErrVersionMismatch is returned when the schema is not at the embedded
// version.
var ErrVersionMismatch = errors.New("schema version mismatch")

type CheckOptions struct {
	Mode          CheckMode
	Timeout       time.Duration
	RetryInterval time.Duration
	AllowDirty    bool
}

type CheckOption func(*CheckOptions)

func WithCheckMode(mode CheckMode) CheckOption {
	return func(opts *CheckOptions) {
		opts.Mode = mode
	}
}

// WithTimeout bounds how long CheckModeWait waits.
func WithTimeout(timeout time.Duration) CheckOption {
	return func(opts *CheckOptions) {
		opts.Timeout = timeout
	}
}

func WithRetryInterval(interval time.Duration) CheckOption {
	return func(opts *CheckOptions) {
		opts.RetryInterval = interval
	}
}

func WithAllowDirty(allow bool) CheckOption {
	return func(opts *CheckOptions) {
		opts.AllowDirty = allow
	}
}

func DefaultCheckOptions() CheckOptions {
	return CheckOptions{
		Mode:          CheckModeWait,
		Timeout:       60 * time.Second,
		RetryInterval: 5 * time.Second,
	}
}

// LatestVersion is the highest version among the embedded migrations.
func LatestVersion() (uint, error) {
	return latestVersion(migrationFiles)
}

// latestVersion scans names like "1760000000_role_groups.up.sql".
func latestVersion(files fs.ReadDirFS) (uint, error) {
	entries, err := files.ReadDir(".")
	if err != nil {
		return 0, fmt.Errorf("failed to read migration directory: %w", err)
	}

	var maxVersion uint
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		version, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		maxVersion = max(maxVersion, uint(version))
	}

	if maxVersion == 0 {
		return 0, errors.New("no valid migration files found")
	}
	return maxVersion, nil
}

// versionReader returns the applied version and dirty flag.
type versionReader func() (uint, bool, error)

// CheckExpectedVersion verifies the database is at the embedded schema
// version, waiting for another process to migrate it when asked to.
func CheckExpectedVersion(ctx context.Context, pool *pgxpool.Pool, opts ...CheckOption) error {
	return checkVersion(ctx, func() (uint, bool, error) { return currentVersion(pool) }, opts...)
}

func checkVersion(ctx context.Context, read versionReader, opts ...CheckOption) error {
	cfg := DefaultCheckOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	ll := logctx.FromContext(ctx)

	if cfg.Mode == CheckModeSkip {
		ll.Debug("Migration version checking disabled")
		return nil
	}

	expected, err := LatestVersion()
	if err != nil {
		return fmt.Errorf("failed to extract expected migration version: %w", err)
	}

	deadline := time.Now().Add(cfg.Timeout)
	ticker := time.NewTicker(cfg.RetryInterval)
	defer ticker.Stop()

	for {
		current, dirty, err := read()
		if err != nil {
			return fmt.Errorf("failed to get current migration version: %w", err)
		}
		if dirty && !cfg.AllowDirty {
			return errors.New("database migration is in dirty state, please fix before proceeding")
		}
		if dirty {
			ll.Warn("Database migration is dirty but allowed to continue")
		}

		if current == expected {
			ll.Info("Migration version check passed", slog.Uint64("version", uint64(current)))
			return nil
		}

		mismatch := fmt.Errorf("%w: current %d, expected %d", ErrVersionMismatch, current, expected)
		if current > expected {
			return fmt.Errorf("%w: you may need to update the application", mismatch)
		}
		if cfg.Mode == CheckModeWarn {
			ll.Warn("Database schema is behind", slog.Any("error", mismatch))
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for migrations: %w", mismatch)
		}

		ll.Info("Waiting for migrations to complete",
			slog.Uint64("currentVersion", uint64(current)),
			slog.Uint64("expectedVersion", uint64(expected)),
			slog.Duration("remainingTimeout", time.Until(deadline)))

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for migrations: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
