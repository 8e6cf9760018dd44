package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/compiler"
)

const (
	peopleSchema = "testdata/people.yaml"
	friendsQuery = "testdata/queries/friends.graphql"
	adultsQuery  = "testdata/queries/adults.graphql"
)

func runCompileCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	cmd := NewCompileCommand(&RootOptions{Format: format})
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCompileCommand_Text(t *testing.T) {
	out, err := runCompileCmd(t, "text", "-s", peopleSchema, "-b", "postgres", friendsQuery)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ "+friendsQuery+" (postgres)")
	assert.Contains(t, out, "LEFT JOIN")
	assert.Contains(t, out, "Outputs:")
	assert.Contains(t, out, "  friendName String nullable")
	assert.Contains(t, out, "Fingerprint: ")
	assert.Contains(t, out, "Compiled 1 of 1 file(s)")
}

func TestCompileCommand_JSON(t *testing.T) {
	out, err := runCompileCmd(t, "json", "-s", peopleSchema, "-b", "cypher", friendsQuery)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   []FileResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, friendsQuery, resp.Data[0].File)
	require.NotNil(t, resp.Data[0].Result)
	assert.Equal(t, backend.Cypher, resp.Data[0].Result.Backend)
	assert.Contains(t, resp.Data[0].Result.Query, "OPTIONAL MATCH")
	assert.Nil(t, resp.Data[0].Error)
}

func TestCompileCommand_BoundParam(t *testing.T) {
	out, err := runCompileCmd(t, "text", "-s", peopleSchema, "-b", "sqlite", adultsQuery, "--param", "min_age=30")
	require.NoError(t, err)
	assert.Contains(t, out, "Parameters:")
	assert.Contains(t, out, "  min_age Int = 30")

	out, err = runCompileCmd(t, "text", "-s", peopleSchema, "-b", "sqlite", adultsQuery)
	require.NoError(t, err)
	assert.Contains(t, out, "  min_age Int\n")
}

func TestCompileCommand_Pattern(t *testing.T) {
	out, err := runCompileCmd(t, "text", "-s", peopleSchema, "-b", "gremlin", "testdata/queries/*.graphql")
	require.NoError(t, err)
	assert.Contains(t, out, "Compiled 2 of 2 file(s)")
}

func TestCompileCommand_FailingFile(t *testing.T) {
	out, err := runCompileCmd(t, "text", "-s", peopleSchema, "-b", "postgres", friendsQuery, "testdata/invalid/unknown_field.graphql")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 of 2 file(s) failed to compile")

	assert.Contains(t, out, "✗ testdata/invalid/unknown_field.graphql")
	assert.Contains(t, out, "[E102]")
	assert.Contains(t, out, "Compiled 1 of 2 file(s)")
}

func TestCompileCommand_ParseErrorJSON(t *testing.T) {
	out, err := runCompileCmd(t, "json", "-s", peopleSchema, "-b", "postgres", "testdata/invalid/unclosed.graphql")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data []FileResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	require.NotNil(t, resp.Data[0].Error)
	assert.Equal(t, "E001", resp.Data[0].Error.Code)
	assert.Equal(t, "parse", resp.Data[0].Error.Phase)
}

func TestCompileCommand_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{name: "no schema", args: []string{"-b", "postgres", friendsQuery}, code: ErrCodeSchema},
		{name: "no backend", args: []string{"-s", peopleSchema, friendsQuery}, code: ErrCodeGeneric},
		{name: "missing file", args: []string{"-s", peopleSchema, "-b", "sqlite", "testdata/nope.graphql"}, code: ErrCodeNotFound},
		{name: "bad param", args: []string{"-s", peopleSchema, "-b", "sqlite", friendsQuery, "-p", "min_age"}, code: ErrCodeBadParam},
		{name: "missing schema file", args: []string{"-s", "testdata/nope.yaml", "-b", "sqlite", friendsQuery}, code: ErrCodeSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCompileCmd(t, "json", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestCompileCommand_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	out, err := runCompileCmd(t, "text", "-s", peopleSchema, "-b", "match", friendsQuery, "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote results to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var results []FileResult
	require.NoError(t, json.Unmarshal(data, &results))
	require.Len(t, results, 1)
	assert.Equal(t, backend.Match, results[0].Result.Backend)
}

func TestCompileCommand_MetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compile.prom")
	_, err := runCompileCmd(t, "text", "-s", peopleSchema, "-b", "postgres", friendsQuery, "testdata/invalid/unknown_field.graphql", "--metrics-file", path)
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `gqlc_compile_total{backend="postgres",result="ok"} 1`)
	assert.Contains(t, text, "gqlc_compile_errors_total")
}

func TestCompileFiles_KeepsOrder(t *testing.T) {
	s, err := LoadSchema(peopleSchema)
	require.NoError(t, err)
	c := compiler.New(s)

	files, err := ReadQueryFiles([]string{friendsQuery, adultsQuery, "testdata/invalid/unknown_field.graphql", "testdata/invalid/unclosed.graphql"})
	require.NoError(t, err)

	results, err := CompileFiles(context.Background(), c, files, backend.SQLite, nil, 2)
	require.NoError(t, err)
	require.Len(t, results, len(files))
	for i, r := range results {
		assert.Equal(t, files[i].Path, r.File)
	}
	assert.NotNil(t, results[0].Result)
	assert.NotNil(t, results[1].Result)
	require.NotNil(t, results[2].Error)
	assert.Equal(t, "E100", results[2].Error.Code)
	require.NotNil(t, results[3].Error)
	assert.Equal(t, "E001", results[3].Error.Code)
}

func TestCompileFiles_Cancelled(t *testing.T) {
	s, err := LoadSchema(peopleSchema)
	require.NoError(t, err)
	files, err := ReadQueryFiles([]string{friendsQuery})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = CompileFiles(ctx, compiler.New(s), files, backend.SQLite, nil, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
