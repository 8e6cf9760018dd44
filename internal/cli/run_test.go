package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/config"
	"github.com/roach88/gqlc/internal/runner"
	runner_mocks "github.com/roach88/gqlc/internal/runner/mocks"
)

// peopleDB writes the people fixtures to a sqlite file and returns its path.
func peopleDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.db")
	r, err := runner.OpenSQL(backend.SQLite, path)
	require.NoError(t, err)
	require.NoError(t, runner.LoadFixtures(context.Background(), r.DB(), filepath.Join("testdata", "people.sql")))
	require.NoError(t, r.Close())
	return path
}

func runRunCmd(t *testing.T, opts *RunOptions, args ...string) (string, error) {
	t.Helper()
	cmd := newRunCommand(opts)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRunCommand_SQLiteText(t *testing.T) {
	dsn := peopleDB(t)
	out, err := runRunCmd(t, &RunOptions{RootOptions: &RootOptions{Format: "text"}},
		"-s", peopleSchema, "-b", "sqlite", "--dsn", dsn, adultsQuery, "--param", "min_age=30")
	require.NoError(t, err)

	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "Carol")
	assert.Contains(t, out, "Dave")
	assert.NotContains(t, out, "Bob")
	assert.Contains(t, out, "(3 rows)")
}

func TestRunCommand_SQLiteJSON(t *testing.T) {
	dsn := peopleDB(t)
	out, err := runRunCmd(t, &RunOptions{RootOptions: &RootOptions{Format: "json"}},
		"-s", peopleSchema, "-b", "sqlite", "--dsn", dsn, friendsQuery)
	require.NoError(t, err)

	var resp struct {
		Status  string    `json:"status"`
		Data    RunResult `json:"data"`
		TraceID string    `json:"trace_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.TraceID)
	assert.Equal(t, backend.SQLite, resp.Data.Backend)
	assert.Equal(t, []string{"personName", "friendName"}, resp.Data.Columns)
	// Alice knows two people; Bob one; Carol and Dave nobody.
	require.Len(t, resp.Data.Rows, 5)
	assert.Equal(t, map[string]any{"personName": "Dave", "friendName": nil}, resp.Data.Rows[4])
}

func TestRunCommand_NoRows(t *testing.T) {
	dsn := peopleDB(t)
	out, err := runRunCmd(t, &RunOptions{RootOptions: &RootOptions{Format: "text"}},
		"-s", peopleSchema, "-b", "sqlite", "--dsn", dsn, adultsQuery, "-p", "min_age=99")
	require.NoError(t, err)
	assert.Equal(t, "(0 rows)\n", out)
}

func TestRunCommand_MockRunner(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := runner_mocks.NewMockRunner(ctrl)

	mock.EXPECT().
		Run(gomock.Any(), gomock.Any(), map[string]any{"min_age": int64(30)}).
		DoAndReturn(func(_ context.Context, res *backend.CompilationResult, _ map[string]any) (*runner.Rows, error) {
			assert.Equal(t, backend.Cypher, res.Backend)
			return &runner.Rows{
				Columns: []string{"name", "age"},
				Records: [][]any{{"Alice", int64(30)}, {"Carol", nil}},
			}, nil
		})
	mock.EXPECT().Close().Return(nil)

	var openedWith backend.ID
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		OpenRunner: func(_ context.Context, id backend.ID, _ config.RunnerConfig) (runner.Runner, error) {
			openedWith = id
			return mock, nil
		},
	}
	out, err := runRunCmd(t, opts, "-s", peopleSchema, "-b", "cypher", adultsQuery, "-p", "min_age=30")
	require.NoError(t, err)
	assert.Equal(t, backend.Cypher, openedWith)
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "(2 rows)")
}

func TestRunCommand_RunnerErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := runner_mocks.NewMockRunner(ctrl)
	mock.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))
	mock.EXPECT().Close().Return(nil)

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		OpenRunner: func(context.Context, backend.ID, config.RunnerConfig) (runner.Runner, error) {
			return mock, nil
		},
	}
	out, err := runRunCmd(t, opts, "-s", peopleSchema, "-b", "cypher", friendsQuery)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRunner, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "connection reset")
}

func TestRunCommand_NoRunnerForGremlin(t *testing.T) {
	out, err := runRunCmd(t, &RunOptions{RootOptions: &RootOptions{Format: "text"}},
		"-s", peopleSchema, "-b", "gremlin", friendsQuery)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, runner.ErrNoRunner)
	assert.Contains(t, out, ErrCodeRunner)
}

func TestRunCommand_CompileError(t *testing.T) {
	_, err := runRunCmd(t, &RunOptions{RootOptions: &RootOptions{Format: "text"}},
		"-s", peopleSchema, "-b", "sqlite", "--dsn", "unused.db", "testdata/invalid/unknown_field.graphql")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "NULL", formatCell(nil))
	assert.Equal(t, "Alice", formatCell("Alice"))
	assert.Equal(t, "30", formatCell(int64(30)))
	assert.Equal(t, `["al","ally"]`, formatCell([]any{"al", "ally"}))
	assert.Equal(t, "true", formatCell(true))
}
