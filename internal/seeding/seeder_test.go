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

package seeding_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/celestus/internal/rolegroups"
	"github.com/cardinalhq/celestus/internal/seeding"
	"github.com/cardinalhq/celestus/internal/seedpolicy"
)

type mockLister struct {
	mock.Mock
}

func (m *mockLister) GetAll(ctx context.Context) ([]rolegroups.RoleGroup, error) {
	args := m.Called(ctx)
	rows, _ := args.Get(0).([]rolegroups.RoleGroup)
	return rows, args.Error(1)
}

func emptyTable() *mockLister {
	l := &mockLister{}
	l.On("GetAll", mock.Anything).Return([]rolegroups.RoleGroup{}, nil)
	return l
}

func newSeeder(path string, rows seeding.Lister[rolegroups.RoleGroup]) *seeding.Seeder[rolegroups.RoleGroup, *rolegroups.Seed] {
	return &seeding.Seeder[rolegroups.RoleGroup, *rolegroups.Seed]{
		Props:      seeding.Props{Name: rolegroups.Entity, FilePath: path},
		Rows:       rows,
		Predefined: rolegroups.Predefined,
		Exceptions: rolegroups.Exceptions,
	}
}

func writeJSON(t *testing.T, path string, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return data
}

type fileSeed struct {
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

func lvl(n uint64) map[string]any {
	return map[string]any{"level": n}
}

func canonicalFile() []fileSeed {
	return []fileSeed{
		{rolegroups.NameSystem, lvl(rolegroups.LevelSystem)},
		{rolegroups.NameAdmin, lvl(rolegroups.LevelAdmin)},
		{rolegroups.NameClient, lvl(rolegroups.LevelClient)},
		{rolegroups.NameUser, lvl(rolegroups.LevelUser)},
	}
}

func assertRecovered(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got []*rolegroups.Seed
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&got))

	want := rolegroups.Predefined()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Name, got[i].Name)
		l, ok := seedpolicy.Level(got[i])
		require.True(t, ok)
		assert.Equal(t, want[i].Config[seedpolicy.LevelKey], l)
	}
	assert.True(t, seedpolicy.IsDataSecure(got, rolegroups.Exceptions()))
}

func TestTryToSeed_NotNeededWhenRowsExist(t *testing.T) {
	path := filepath.Join(t.TempDir(), rolegroups.SeedFile)
	rows := &mockLister{}
	rows.On("GetAll", mock.Anything).Return([]rolegroups.RoleGroup{{Name: rolegroups.NameUser}}, nil).Once()

	res, err := newSeeder(path, rows).TryToSeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeNotNeeded, res.Outcome)
	assert.Empty(t, res.Seeds)
	assert.NoFileExists(t, path)
	rows.AssertExpectations(t)
}

func TestTryToSeed_StorageFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), rolegroups.SeedFile)
	rows := &mockLister{}
	rows.On("GetAll", mock.Anything).Return(nil, errors.New("connection refused")).Once()

	_, err := newSeeder(path, rows).TryToSeed(context.Background())
	require.ErrorIs(t, err, seeding.ErrSeedCheck)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoFileExists(t, path)
}

func TestTryToSeed_MissingFileIsRecovered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "seed", rolegroups.SeedFile)

	res, err := newSeeder(path, emptyTable()).TryToSeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeRecovered, res.Outcome)
	assert.Len(t, res.Seeds, 4)
	assertRecovered(t, path)

	again, err := newSeeder(path, emptyTable()).TryToSeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeSecure, again.Outcome)
}

func TestTryToSeed_SecureFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), rolegroups.SeedFile)
	seeds := append(canonicalFile(), fileSeed{"AUDITOR", lvl(5000)})
	before := writeJSON(t, path, seeds)

	res, err := newSeeder(path, emptyTable()).TryToSeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeSecure, res.Outcome)
	assert.Len(t, res.Seeds, 5)
	assert.Empty(t, res.Violations)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestTryToSeed_InsecureButSufficientIsDisarmedNotRewritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), rolegroups.SeedFile)
	seeds := canonicalFile()
	seeds[1].Config = lvl(1)
	seeds = append(seeds, fileSeed{"ROOT", lvl(1 << 40)})
	before := writeJSON(t, path, seeds)

	res, err := newSeeder(path, emptyTable()).TryToSeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeDisarmed, res.Outcome)
	require.Len(t, res.Violations, 2)
	assert.Equal(t, seedpolicy.ReasonExceptionLevelMismatch, res.Violations[0].Reason)
	assert.Equal(t, seedpolicy.ReasonCeilingReached, res.Violations[1].Reason)

	require.Len(t, res.Seeds, 5)
	assert.Equal(t, seedpolicy.QuarantineName, res.Seeds[1].Name)
	assert.True(t, seedpolicy.IsDataSecure(res.Seeds, rolegroups.Exceptions()))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestTryToSeed_ExceptionWithoutConfigIsQuarantined(t *testing.T) {
	path := filepath.Join(t.TempDir(), rolegroups.SeedFile)
	seeds := canonicalFile()
	seeds[1].Config = nil
	writeJSON(t, path, seeds)

	res, err := newSeeder(path, emptyTable()).TryToSeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeDisarmed, res.Outcome)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, seedpolicy.ReasonMissingConfig, res.Violations[0].Reason)

	require.Len(t, res.Seeds, 4)
	assert.Equal(t, seedpolicy.QuarantineName, res.Seeds[1].Name)
	l, ok := seedpolicy.Level(res.Seeds[1])
	require.True(t, ok)
	assert.Equal(t, uint64(0), l)
	assert.True(t, seedpolicy.IsDataSecure(res.Seeds, rolegroups.Exceptions()))
}

func TestTryToSeed_DisarmBelowMinimumIsRecovered(t *testing.T) {
	path := filepath.Join(t.TempDir(), rolegroups.SeedFile)
	writeJSON(t, path, []fileSeed{
		{rolegroups.NameUser, lvl(1000)},
		{rolegroups.NameUser, lvl(1000)},
		{rolegroups.NameUser, lvl(2000)},
		{rolegroups.NameClient, lvl(10000)},
	})

	res, err := newSeeder(path, emptyTable()).TryToSeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeRecovered, res.Outcome)
	require.NotEmpty(t, res.Violations)
	assert.Equal(t, seedpolicy.ReasonDuplicateName, res.Violations[0].Reason)
	assertRecovered(t, path)
}

func TestTryToSeed_TooFewOrCorruptIsRecovered(t *testing.T) {
	tests := map[string]string{
		"too few":      `[{"name":"USER","config":{"level":1000}}]`,
		"empty array":  `[]`,
		"not json":     `{{{`,
		"not an array": `{"name":"USER"}`,
		"bad record":   `[{"name":42},{"name":"A"},{"name":"B"},{"name":"C"}]`,
		"nulls":        `[null, null, null, null]`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), rolegroups.SeedFile)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			res, err := newSeeder(path, emptyTable()).TryToSeed(context.Background())
			require.NoError(t, err)
			assert.Equal(t, seeding.OutcomeRecovered, res.Outcome)
			assertRecovered(t, path)
		})
	}
}

func TestTryToSeed_RecoveryFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "seed")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o600))

	_, err := newSeeder(filepath.Join(blocker, rolegroups.SeedFile), emptyTable()).TryToSeed(context.Background())
	require.ErrorIs(t, err, seeding.ErrSeedRecovery)
	assert.NotErrorIs(t, err, seeding.ErrSeedCheck)
}

func TestCheckFile_InvalidExceptions(t *testing.T) {
	s := newSeeder(filepath.Join(t.TempDir(), rolegroups.SeedFile), nil)
	s.Exceptions = func() []*rolegroups.Seed { return []*rolegroups.Seed{{Name: "SYSTEM"}} }

	_, err := s.CheckFile(context.Background())
	assert.ErrorIs(t, err, seeding.ErrSeedCheck)
	assert.ErrorIs(t, err, seedpolicy.ErrInvalidException)
}

func TestCheckFile_MinimumRequiredOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), rolegroups.SeedFile)
	writeJSON(t, path, []fileSeed{{rolegroups.NameUser, lvl(1000)}})

	s := newSeeder(path, nil)
	s.Props.MinimumRequired = 1

	res, err := s.CheckFile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeSecure, res.Outcome)
}

func TestCheckFile_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, rolegroups.SeedFile)

	_, err := newSeeder(path, nil).CheckFile(context.Background())
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, rolegroups.SeedFile, entries[0].Name())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

