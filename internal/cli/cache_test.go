package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gqlc/internal/backend"
)

func runCacheCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	cmd := NewCacheCommand(&RootOptions{Format: format})
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// warmCache compiles friendsQuery twice for postgres and once for cypher.
func warmCache(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	for _, b := range []string{"postgres", "postgres", "cypher"} {
		_, err := runCompileCmd(t, "text", "-s", peopleSchema, "-b", b, friendsQuery, "--cache", path)
		require.NoError(t, err)
	}
	return path
}

func TestCompileCommand_CacheReusesResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	first, err := runCompileCmd(t, "json", "-s", peopleSchema, "-b", "sqlite", friendsQuery, "--cache", path)
	require.NoError(t, err)
	second, err := runCompileCmd(t, "json", "-s", peopleSchema, "-b", "sqlite", friendsQuery, "--cache", path)
	require.NoError(t, err)
	assert.JSONEq(t, first, second)
}

func TestCacheStats_Text(t *testing.T) {
	path := warmCache(t)

	out, err := runCacheCmd(t, "text", "stats", "--cache", path)
	require.NoError(t, err)
	assert.Contains(t, out, path+": 2 entries, 1 hits")
	assert.Contains(t, out, "BACKEND")
	assert.Contains(t, out, "postgres")
	assert.Contains(t, out, "cypher")
}

func TestCacheStats_JSONEntries(t *testing.T) {
	path := warmCache(t)

	out, err := runCacheCmd(t, "json", "stats", "--entries", "--cache", path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   CacheStatsReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(2), resp.Data.Stats.Entries)
	assert.Equal(t, int64(1), resp.Data.Stats.ByBackend[backend.Postgres])
	require.Len(t, resp.Data.Entries, 2)
	assert.Equal(t, backend.Cypher, resp.Data.Entries[0].Backend)
	assert.Equal(t, int64(1), resp.Data.Entries[1].Hits)
}

func TestCacheClear(t *testing.T) {
	path := warmCache(t)

	out, err := runCacheCmd(t, "text", "clear", "--cache", path)
	require.NoError(t, err)
	assert.Equal(t, "Removed 2 entries from "+path+"\n", out)

	out, err = runCacheCmd(t, "text", "stats", "--cache", path)
	require.NoError(t, err)
	assert.Equal(t, path+": 0 entries, 0 hits\n", out)
}

func TestCacheCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"no cache configured", []string{"stats"}, ErrCodeCache},
		{"missing file", []string{"clear", "--cache", filepath.Join(t.TempDir(), "absent.db")}, ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCacheCmd(t, "json", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}
