package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/schema"
)

// createTestStore opens a store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestResult builds a result with one bound and one unbound parameter.
func createTestResult(t *testing.T, id backend.ID, bound any) *backend.CompilationResult {
	t.Helper()
	res, err := backend.NewResult(id, "SELECT v0.name AS n FROM person AS v0 WHERE v0.age >= ? AND v0.name IN (SELECT value FROM json_each(?))",
		[]backend.Parameter{
			{Name: "min_age", Type: schema.MustParseType("Int"), Value: bound, Bound: true},
			{Name: "names", Type: schema.MustParseType("[String]")},
		},
		[]backend.OutputInfo{{Alias: "n", Type: schema.MustParseType("String")}},
	)
	require.NoError(t, err)
	return res
}

func TestOpen_CreatesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open %d", i)
		require.NoError(t, s.Close())
	}
	_, err := os.Stat(path)
	require.NoError(t, err)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.DB().QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)
	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
}

func TestOpen_NewerSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.DB().Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestPutGet_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		bound any
	}{
		{name: "int", bound: int64(30)},
		{name: "zero", bound: int64(0)},
		{name: "float binding", bound: 1.5},
		{name: "list", bound: []any{"Alice", "Bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := createTestResult(t, backend.SQLite, tt.bound)
			key := "key-" + tt.name

			require.NoError(t, s.Put(ctx, key, res))
			got, ok, err := s.Get(ctx, key)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, res, got)
		})
	}
}

func TestGet_Miss(t *testing.T) {
	s := createTestStore(t)
	got, ok, err := s.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestPut_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	first := createTestResult(t, backend.SQLite, int64(30))
	second := createTestResult(t, backend.SQLite, int64(40))

	require.NoError(t, s.Put(ctx, "k", first))
	require.NoError(t, s.Put(ctx, "k", second))

	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.Fingerprint, got.Fingerprint)

	assert.Error(t, s.Put(ctx, "", first))
}

func TestGet_Corrupt(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", createTestResult(t, backend.Postgres, int64(30))))

	_, err := s.DB().Exec(`UPDATE results SET result = replace(result, 'person', 'people') WHERE key = 'k'`)
	require.NoError(t, err)

	_, ok, err := s.Get(ctx, "k")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStatsEntriesClear(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "b", createTestResult(t, backend.SQLite, int64(1))))
	require.NoError(t, s.Put(ctx, "a", createTestResult(t, backend.SQLite, int64(2))))
	require.NoError(t, s.Put(ctx, "c", createTestResult(t, backend.Postgres, int64(3))))

	for i := 0; i < 2; i++ {
		_, ok, err := s.Get(ctx, "a")
		require.NoError(t, err)
		require.True(t, ok)
	}

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	keys := []string{entries[0].Key, entries[1].Key, entries[2].Key}
	assert.Equal(t, []string{"c", "a", "b"}, keys, "postgres sorts before sqlite")
	assert.Equal(t, int64(2), entries[1].Hits)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Entries)
	assert.Equal(t, int64(2), st.Hits)
	assert.Equal(t, map[backend.ID]int64{backend.SQLite: 2, backend.Postgres: 1}, st.ByBackend)

	n, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Entries)
}
