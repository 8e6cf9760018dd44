package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/compileerr"
)

func TestScenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios/*.yaml")
	require.NoError(t, err)

	for _, sc := range scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			result := RunWithGolden(t, sc)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_OptionalFriend(t *testing.T) {
	sc, err := LoadScenario(filepath.Join("testdata", "scenarios", "optional_friend.yaml"))
	require.NoError(t, err)

	result, err := Run(context.Background(), sc, nil)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, result.Compiled, len(backend.All()))
	assert.Empty(t, result.CompileErrors)
	require.NotNil(t, result.Rows)
	assert.Equal(t, []string{"personName", "friendName"}, result.Rows.Columns)
}

func TestRun_ReachCycle(t *testing.T) {
	sc, err := LoadScenario(filepath.Join("testdata", "scenarios", "reach_cycle.yaml"))
	require.NoError(t, err)

	result, err := Run(context.Background(), sc, nil)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, result.Compiled, len(backend.All()))
	require.NotNil(t, result.Rows)

	seen := map[string]int{}
	for _, row := range result.Rows.Maps() {
		seen[fmt.Sprintf("%v->%v", row["name"], row["reach"])]++
	}
	assert.Len(t, seen, 10)
	for pair, n := range seen {
		assert.Equal(t, 1, n, pair)
	}
}

func TestRun_UnexpectedCompileError(t *testing.T) {
	sc, err := LoadScenario(filepath.Join("testdata", "scenarios", "reach.yaml"))
	require.NoError(t, err)
	sc.Assertions = sc.Assertions[1:] // drop the cypher unsupported expectation

	result, err := Run(context.Background(), sc, nil)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "cypher: unexpected compile error")
	assert.True(t, compileerr.IsBackendUnsupportedError(result.CompileErrors[backend.Cypher]))
}

func TestRun_FailedAssertions(t *testing.T) {
	sc, err := LoadScenario(filepath.Join("testdata", "scenarios", "fold_friends.yaml"))
	require.NoError(t, err)
	sc.Assertions = []Assertion{
		{Type: AssertRowCount, Count: 3},
		{Type: AssertQueryEquals, Backend: "cypher", Text: "MATCH (v0:Person) RETURN 1"},
	}

	result, err := Run(context.Background(), sc, nil)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Expected: 3 rows")
	assert.Contains(t, result.Errors[1], "Assertion failed: query_equals [cypher]")
}

func TestRun_BadSchema(t *testing.T) {
	sc := &Scenario{Name: "x", Schema: filepath.Join("testdata", "missing.yaml"), Query: "{}"}
	_, err := Run(context.Background(), sc, nil)
	assert.ErrorContains(t, err, "load schema")
}
