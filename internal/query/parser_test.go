package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/ir"
)

func TestParseDocument(t *testing.T) {
	doc, err := Parse(`{
  Person {
    name @output(name: "n") @filter(op: "in_collection", value: [$names])
    knows @optional {
      age @tag(name: "a")
    }
  }
}`, ir.Limits{})
	require.NoError(t, err)
	require.NotNil(t, doc.Root)

	assert.Empty(t, doc.OperationName)
	assert.Equal(t, "Person", doc.Root.TypeName)
	assert.True(t, doc.Root.HasSelection)
	assert.Equal(t, compileerr.Pos{Line: 2, Column: 3, Offset: 4}, doc.Root.Pos)
	require.Len(t, doc.Root.Selections, 2)

	name := doc.Root.Selections[0]
	assert.Equal(t, "name", name.Name)
	assert.False(t, name.HasSelection)
	require.Len(t, name.Directives, 2)
	assert.Equal(t, "output", name.Directives[0].Name)
	assert.Equal(t, []Argument{{
		Name:  "name",
		Value: StringValue{Value: "n", Pos: compileerr.Pos{Line: 3, Column: 24, Offset: 36}},
		Pos:   compileerr.Pos{Line: 3, Column: 18, Offset: 30},
	}}, name.Directives[0].Arguments)

	filter := name.Directives[1]
	assert.Equal(t, "filter", filter.Name)
	require.Len(t, filter.Arguments, 2)
	assert.Equal(t, "value", filter.Arguments[1].Name)
	list, ok := filter.Arguments[1].Value.(ListValue)
	require.True(t, ok)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "names", list.Items[0].(VariableValue).Name)

	knows := doc.Root.Selections[1]
	assert.Equal(t, "knows", knows.Name)
	assert.True(t, knows.HasSelection)
	require.Len(t, knows.Directives, 1)
	assert.Equal(t, "optional", knows.Directives[0].Name)
	assert.Empty(t, knows.Directives[0].Arguments)
	require.Len(t, knows.Selections, 1)
	assert.Equal(t, "age", knows.Selections[0].Name)
}

func TestParseOperationHeader(t *testing.T) {
	doc, err := Parse(`query Friends { Person { name } }`, ir.Limits{})
	require.NoError(t, err)
	assert.Equal(t, "Friends", doc.OperationName)
	assert.Equal(t, "Person", doc.Root.TypeName)

	doc, err = Parse(`query { Person { name } }`, ir.Limits{})
	require.NoError(t, err)
	assert.Empty(t, doc.OperationName)
}

func TestParseRootWithoutSelection(t *testing.T) {
	doc, err := Parse(`{ Person }`, ir.Limits{})
	require.NoError(t, err)
	assert.False(t, doc.Root.HasSelection)
}

func TestParseValues(t *testing.T) {
	doc, err := Parse(`{ Person { name @d(s: "x", i: 7, f: 2.5, b: false, n: null, e: RED, l: [1 [2]], v: $p, t: %q) } }`, ir.Limits{})
	require.NoError(t, err)

	args := doc.Root.Selections[0].Directives[0].Arguments
	require.Len(t, args, 9)
	assert.IsType(t, StringValue{}, args[0].Value)
	assert.Equal(t, "7", args[1].Value.(IntValue).Raw)
	assert.Equal(t, "2.5", args[2].Value.(FloatValue).Raw)
	assert.False(t, args[3].Value.(BooleanValue).Value)
	assert.IsType(t, NullValue{}, args[4].Value)
	assert.Equal(t, "RED", args[5].Value.(EnumValue).Name)
	l := args[6].Value.(ListValue)
	require.Len(t, l.Items, 2)
	assert.IsType(t, ListValue{}, l.Items[1])
	assert.Equal(t, "p", args[7].Value.(VariableValue).Name)
	assert.Equal(t, "q", args[8].Value.(TagValue).Name)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{"empty input", ``, "expected '{', found end of input"},
		{"trailing input", `{ Person { name } } extra`, "unexpected name \"extra\" after end of query"},
		{"empty selection", `{ Person { } }`, "selection set must not be empty"},
		{"two roots", `{ A { x } B { y } }`, "exactly one root field"},
		{"empty arguments", `{ Person { name @output() } }`, "argument list must not be empty"},
		{"missing colon", `{ Person { name @output(name "x") } }`, "expected ':'"},
		{"unclosed selection", `{ Person { name`, "expected field name, found end of input"},
		{"unterminated list", `{ Person { name @filter(value: [1 } }`, "expected value"},
		{"list at eof", `{ Person { name @filter(value: [1`, "unterminated list"},
		{"lexer error wins", `{ Person { name @filter(value: ["a]) } }`, "unterminated string"},
		{"directive without name", `{ Person { name @ } }`, "expected name, found '}'"},
		{"root not a name", `{ "Person" }`, "expected root vertex type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input, ir.Limits{})
			require.Error(t, err)
			assert.True(t, compileerr.IsParseError(err), "want ParseError, got %T", err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := Parse("{\n  Person {\n    name @\n  }\n}", ir.Limits{})
	require.Error(t, err)

	var pe *compileerr.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, compileerr.Pos{Line: 4, Column: 3, Offset: 26}, pe.Pos)
}

func TestParseTraversalDepthLimit(t *testing.T) {
	limits := ir.Limits{MaxTraversalDepth: 2}

	_, err := Parse(`{ Person { knows { knows { name } } } }`, limits)
	require.NoError(t, err)

	_, err = Parse(`{ Person { knows { knows { knows { name } } } } }`, limits)
	require.Error(t, err)
	var rle *compileerr.ResourceLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, compileerr.LimitTraversalDepth, rle.Limit)
	assert.Equal(t, 3, rle.Value)
	assert.Equal(t, 2, rle.Max)
}

func TestParseDeepInputFailsFast(t *testing.T) {
	text := "{ Person "
	for i := 0; i < 10000; i++ {
		text += "{ knows "
	}
	_, err := Parse(text, ir.Limits{})
	assert.True(t, compileerr.IsResourceLimitError(err))
}
