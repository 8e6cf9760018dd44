package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runIRCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	cmd := NewIRCommand(&RootOptions{Format: format})
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestIRCommand_Text(t *testing.T) {
	out, err := runIRCmd(t, "text", "-s", peopleSchema, adultsQuery)
	require.NoError(t, err)

	assert.Contains(t, out, "QueryRoot Person@0\n")
	assert.Contains(t, out, "  Filter v0.age")
	assert.Contains(t, out, "$min_age")
	assert.Contains(t, out, "  Output v0.name AS name\n")
	assert.Contains(t, out, "Parameters:\n  $min_age Int\n")
	assert.Contains(t, out, "Blocks: 4, outputs: 2")
}

func TestIRCommand_Nesting(t *testing.T) {
	out, err := runIRCmd(t, "text", "-s", peopleSchema, friendsQuery)
	require.NoError(t, err)
	assert.Contains(t, out, "  Traverse out knows -> Person/knows@1 [optional]\n    Output v1.name AS friendName\n  Backtrack -> Person@0\n")
	assert.NotContains(t, out, "Parameters:")
}

func TestIRCommand_JSON(t *testing.T) {
	out, err := runIRCmd(t, "json", "-s", peopleSchema, friendsQuery)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			File    string           `json:"file"`
			Blocks  []map[string]any `json:"blocks"`
			Outputs []map[string]any `json:"outputs"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, friendsQuery, resp.Data.File)
	require.NotEmpty(t, resp.Data.Blocks)
	assert.Equal(t, "QueryRoot", resp.Data.Blocks[0]["block"])
	require.Len(t, resp.Data.Outputs, 2)
	assert.Equal(t, "friendName", resp.Data.Outputs[1]["alias"])
	assert.Equal(t, true, resp.Data.Outputs[1]["nullable"])
}

func TestIRCommand_Invalid(t *testing.T) {
	out, err := runIRCmd(t, "text", "-s", peopleSchema, "testdata/invalid/unknown_field.graphql")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ testdata/invalid/unknown_field.graphql")
	assert.Contains(t, out, "[E102]")
}
