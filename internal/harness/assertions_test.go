package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/runner"
	"github.com/roach88/gqlc/internal/schema"
)

func sampleResult() *Result {
	r := NewResult()
	r.Compiled[backend.SQLite] = &backend.CompilationResult{
		Backend: backend.SQLite,
		Query:   "SELECT\n  v0.name AS \"name\"\nFROM person AS v0\nORDER BY v0.id",
		Outputs: []ir.OutputInfo{
			{Alias: "name", Type: schema.MustParseType("String")},
			{Alias: "friends", Type: schema.MustParseType("String"), IsCollection: true},
		},
	}
	r.CompileErrors[backend.Gremlin] = &compileerr.BackendUnsupportedError{Backend: "gremlin", Feature: "x"}
	r.Rows = &runner.Rows{
		Columns: []string{"name", "friends"},
		Records: [][]any{{"Alice", []any{"Bob"}}, {"Dave", []any{}}},
	}
	return r
}

func TestEvaluateAssertions(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{
			name: "outputs match",
			assertion: Assertion{Type: AssertOutputs, Outputs: []OutputSpec{
				{Alias: "name", Type: "String"},
				{Alias: "friends", Type: "String", Collection: true},
			}},
		},
		{
			name:      "outputs differ",
			assertion: Assertion{Type: AssertOutputs, Outputs: []OutputSpec{{Alias: "name", Type: "String"}}},
			wantErr:   "Actual: name String, friends String collection",
		},
		{
			name: "rows match with omitted nulls and widened ints",
			assertion: Assertion{Type: AssertRows, Rows: []map[string]any{
				{"name": "Alice", "friends": []any{"Bob"}},
				{"name": "Dave", "friends": []any{}},
			}},
		},
		{
			name:      "rows differ",
			assertion: Assertion{Type: AssertRows, Rows: []map[string]any{{"name": "Alice"}}},
			wantErr:   "Assertion failed: rows",
		},
		{name: "row count", assertion: Assertion{Type: AssertRowCount, Count: 2}},
		{name: "row count differs", assertion: Assertion{Type: AssertRowCount, Count: 1}, wantErr: "Actual: 2 rows"},
		{name: "unsupported", assertion: Assertion{Type: AssertUnsupported, Backend: "gremlin", Code: "E301"}},
		{
			name:      "unsupported but compiled",
			assertion: Assertion{Type: AssertUnsupported, Backend: "sqlite", Code: "E301"},
			wantErr:   "compiled successfully",
		},
		{
			name:      "error while some compiled",
			assertion: Assertion{Type: AssertError, Code: "E100"},
			wantErr:   "Assertion failed: error [sqlite]",
		},
		{
			name:      "query contains ignores layout",
			assertion: Assertion{Type: AssertQueryContains, Backend: "sqlite", Text: "v0.name AS \"name\" FROM   person AS v0"},
		},
		{
			name:      "query equals ignores layout",
			assertion: Assertion{Type: AssertQueryEquals, Backend: "sqlite", Text: "SELECT v0.name AS \"name\" FROM person AS v0 ORDER BY v0.id"},
		},
		{
			name:      "query for missing backend",
			assertion: Assertion{Type: AssertQueryContains, Backend: "cypher", Text: "MATCH"},
			wantErr:   "no compilation",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			if tt.wantErr == "" {
				assert.Empty(t, msgs)
				return
			}
			if assert.Len(t, msgs, 1) {
				assert.Contains(t, msgs[0], tt.wantErr)
			}
		})
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeWhitespace("  a\n\tb   c \n"))
	assert.Equal(t, "", NormalizeWhitespace(" \n "))
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, []any{int64(1), "x", []any{int64(2)}}, normalizeValue([]any{1, "x", []any{2}}))
	assert.Equal(t, 1.5, normalizeValue(1.5))
}
