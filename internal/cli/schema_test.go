package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runSchemaCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	cmd := NewSchemaCommand(&RootOptions{Format: format})
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestSchemaCheck_Text(t *testing.T) {
	out, err := runSchemaCmd(t, "text", "check", peopleSchema)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+peopleSchema+": 2 type(s), 2 edge(s)")
	assert.Contains(t, out, "aliases [String]")
	assert.Contains(t, out, "many_to_many")
	assert.Contains(t, out, "knows / known_by")
}

func TestSchemaCheck_JSON(t *testing.T) {
	out, err := runSchemaCmd(t, "json", "check", peopleSchema)
	require.NoError(t, err)

	var resp struct {
		Data SchemaReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Types, 2)
	assert.Equal(t, "Person", resp.Data.Types[0].Name)
	assert.Equal(t, "person", resp.Data.Types[0].Table)
	assert.Contains(t, resp.Data.Types[0].Properties, "age Int")
	require.Len(t, resp.Data.Edges, 2)
	assert.Equal(t, EdgeReport{
		Name:        "lives_in",
		From:        "Person",
		To:          "City",
		Fields:      "lives_in / residents",
		Cardinality: "many_to_one",
	}, resp.Data.Edges[1])
	assert.True(t, resp.Data.Edges[0].Recursive)
}

func TestSchemaCheck_Inconsistent(t *testing.T) {
	out, err := runSchemaCmd(t, "text", "check", "../schema/testdata/broken.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ ../schema/testdata/broken.yaml")
	assert.Contains(t, out, "Car")

	out, err = runSchemaCmd(t, "json", "check", "../schema/testdata/broken.yaml")
	require.Error(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeSchema, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "schema is inconsistent")
}

func TestSchemaCheck_Missing(t *testing.T) {
	_, err := runSchemaCmd(t, "text", "check", "testdata/nope.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
