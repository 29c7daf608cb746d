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

package seeding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cardinalhq/celestus/internal/logctx"
)

// readSeeds loads a JSON array of records. A missing, unreadable or
// malformed file yields no records; null entries are skipped.
func readSeeds[S any](ctx context.Context, path string) []S {
	logger := logctx.FromContext(ctx).With(slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Seed file not found")
		} else {
			logger.Warn("Seed file unreadable", slog.Any("error", err))
		}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn("Seed file is not a valid JSON array", slog.Any("error", err))
		return nil
	}

	out := make([]S, 0, len(raw))
	for i, item := range raw {
		if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
			continue
		}
		var s S
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		if err := dec.Decode(&s); err != nil {
			logger.Warn("Seed file holds an invalid record", slog.Int("index", i), slog.Any("error", err))
			return nil
		}
		out = append(out, s)
	}
	return out
}

// ReadFile loads a seed file the way a seeding pass does, without judging
// its records.
func ReadFile[S any](ctx context.Context, path string) []S {
	return readSeeds[S](ctx, path)
}

// writeSeeds replaces path with seeds as indented JSON. The content goes to
// a temporary file in the same directory which is then renamed over path.
func writeSeeds[S any](path string, seeds []S) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create seed directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(seeds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode seeds: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s to %s: %w", tmpName, path, err)
	}
	return nil
}
