package irbuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/query"
	"github.com/roach88/gqlc/internal/schema"
	"github.com/roach88/gqlc/internal/testutil"
)

var (
	strType = schema.Type{Kind: schema.String}
	intType = schema.Type{Kind: schema.Int}
	idType  = schema.Type{Kind: schema.ID}
)

func build(t *testing.T, text string, limits ir.Limits) ([]ir.Block, error) {
	t.Helper()
	doc, err := query.Parse(text, ir.Limits{})
	require.NoError(t, err)
	q, err := query.Validate(testutil.PeopleSchema(t), doc)
	require.NoError(t, err)
	return Build(q, limits)
}

const personKnows = `{
  Person {
    name @output(name: "personName")
    knows @optional {
      name @output(name: "friendName")
    }
    knows @fold {
      name @output(name: "friendNames")
      _x_count @output(name: "friendCount")
    }
  }
}`

func TestBuildPersonKnows(t *testing.T) {
	blocks, err := build(t, personKnows, ir.Limits{})
	require.NoError(t, err)

	root := ir.RootLocation("Person")
	friend := root.Child(1, "knows", "Person")
	folded := root.Child(2, "knows", "Person")
	assert.Equal(t, []ir.Block{
		ir.QueryRoot{Location: root},
		ir.Output{Location: root, Field: "name", Alias: "personName", Type: strType, Seq: 0},
		ir.Traverse{Edge: "knows", Field: "knows", Direction: schema.Out, Optional: true, From: root, To: friend},
		ir.Output{Location: friend, Field: "name", Alias: "friendName", Type: strType, Seq: 1},
		ir.Backtrack{From: friend, To: root},
		ir.Fold{Edge: "knows", Field: "knows", Direction: schema.Out, From: root, To: folded},
		ir.Output{Location: folded, Field: "name", Alias: "friendNames", Type: strType, Seq: 2},
		ir.Output{Location: folded, Field: schema.CountField, Alias: "friendCount", Type: intType, Seq: 3},
		ir.Unfold{From: folded, To: root},
	}, blocks)

	meta := ir.OutputMetadata(blocks)
	require.Len(t, meta, 4)
	assert.False(t, meta[0].Nullable)
	assert.True(t, meta[1].Nullable)
	assert.True(t, meta[2].IsCollection)
	assert.False(t, meta[3].IsCollection)
}

func TestBuildLocationBlockOrder(t *testing.T) {
	blocks, err := build(t, `{
  Person {
    name @output(name: "n") @filter(op: "has_substring", value: [%nm])
    age @filter(op: ">", value: [$min])
    id @tag(name: "nm")
  }
}`, ir.Limits{})
	require.NoError(t, err)

	root := ir.RootLocation("Person")
	tag := ir.TagRef{Name: "nm", Location: root, Field: "id", Type: idType}
	assert.Equal(t, []ir.Block{
		ir.QueryRoot{Location: root},
		ir.MarkTag{Name: "nm", Location: root, Field: "id", Type: idType},
		ir.Filter{Location: root, Predicate: ir.StringMatch{
			Kind:    ir.MatchSubstring,
			Subject: ir.FieldRef{Location: root, Field: "name", Type: strType},
			Pattern: tag,
		}},
		ir.Filter{Location: root, Predicate: ir.Compare{
			Op:    ir.OpGt,
			Left:  ir.FieldRef{Location: root, Field: "age", Type: intType},
			Right: ir.Variable{Name: "min", Type: intType},
		}},
		ir.Output{Location: root, Field: "name", Alias: "n", Type: strType, Seq: 0},
	}, blocks)
}

func TestBuildLiteralOperands(t *testing.T) {
	blocks, err := build(t, `{ Person { age @output(name: "a") @filter(op: "between", value: [18, 65]) } }`, ir.Limits{})
	require.NoError(t, err)

	root := ir.RootLocation("Person")
	require.Len(t, blocks, 3)
	assert.Equal(t, ir.Filter{Location: root, Predicate: ir.Between{
		Subject: ir.FieldRef{Location: root, Field: "age", Type: intType},
		Low:     ir.Literal{Value: ir.Int(18), Type: intType},
		High:    ir.Literal{Value: ir.Int(65), Type: intType},
	}}, blocks[1])
}

func TestBuildOptionalTag(t *testing.T) {
	blocks, err := build(t, `{
  Person {
    name @output(name: "n")
    knows @optional {
      age @tag(name: "fa")
      lives_in { name @output(name: "city") }
    }
    known_by {
      age @filter(op: ">", value: [%fa])
    }
  }
}`, ir.Limits{})
	require.NoError(t, err)

	var filters []ir.Filter
	var traversals []ir.Traverse
	for _, b := range blocks {
		switch blk := b.(type) {
		case ir.Filter:
			filters = append(filters, blk)
		case ir.Traverse:
			traversals = append(traversals, blk)
		}
	}
	require.Len(t, filters, 1)
	cmp := filters[0].Predicate.(ir.Compare)
	ref := cmp.Right.(ir.TagRef)
	assert.True(t, ref.Optional)
	assert.Equal(t, 1, ref.Location.ID)
	assert.Equal(t, 3, filters[0].Location.ID)

	require.Len(t, traversals, 3)
	assert.True(t, traversals[0].Optional)
	assert.Equal(t, "lives_in", traversals[1].Field)
	assert.False(t, traversals[1].Optional, "nesting under an optional scope is left to backends")
	assert.False(t, traversals[2].Optional)
	assert.Equal(t, schema.In, traversals[2].Direction)
}

func TestBuildForwardTagReference(t *testing.T) {
	_, err := build(t, `{
  Person {
    age @filter(op: ">", value: [%fa]) @output(name: "a")
    knows { age @tag(name: "fa") }
  }
}`, ir.Limits{})
	require.Error(t, err)

	var be *compileerr.IRBuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, compileerr.CodeForwardTag, be.Code)
	assert.Equal(t, "Person@0", be.Location)
	assert.Equal(t, 3, be.Pos.Line)
}

func TestBuildRecurse(t *testing.T) {
	blocks, err := build(t, `{ Person { knows @recurse(depth: 3) { name @output(name: "n") } } }`, ir.Limits{})
	require.NoError(t, err)
	tr := blocks[1].(ir.Traverse)
	assert.Equal(t, ir.Literal{Value: ir.Int(3), Type: intType}, tr.Recurse)

	blocks, err = build(t, `{ Person { knows @recurse(depth: $hops) { name @output(name: "n") } } }`, ir.Limits{})
	require.NoError(t, err)
	tr = blocks[1].(ir.Traverse)
	assert.Equal(t, ir.Variable{Name: "hops", Type: intType}, tr.Recurse)
}

func TestBuildLimits(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		limits ir.Limits
		limit  string
		value  int
	}{
		{
			name:   "traversal depth",
			query:  `{ Person { knows { knows { name @output(name: "n") } } } }`,
			limits: ir.Limits{MaxTraversalDepth: 1},
			limit:  compileerr.LimitTraversalDepth,
			value:  2,
		},
		{
			name:   "block count",
			query:  personKnows,
			limits: ir.Limits{MaxBlocks: 2},
			limit:  compileerr.LimitBlocks,
			value:  3,
		},
		{
			name:   "literal recursion depth",
			query:  `{ Person { knows @recurse(depth: 9) { name @output(name: "n") } } }`,
			limits: ir.Limits{MaxRecurseDepth: 8},
			limit:  compileerr.LimitRecurseDepth,
			value:  9,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := build(t, tt.query, tt.limits)
			require.Error(t, err)
			var rle *compileerr.ResourceLimitError
			require.ErrorAs(t, err, &rle)
			assert.Equal(t, tt.limit, rle.Limit)
			assert.Equal(t, tt.value, rle.Value)
		})
	}
}

func TestBuildRecurseParameterIsNotLimited(t *testing.T) {
	_, err := build(t, `{ Person { knows @recurse(depth: $d) { name @output(name: "n") } } }`, ir.Limits{MaxRecurseDepth: 1})
	assert.NoError(t, err)
}

func TestBuildDeterministic(t *testing.T) {
	a, err := build(t, personKnows, ir.Limits{})
	require.NoError(t, err)
	b, err := build(t, personKnows, ir.Limits{})
	require.NoError(t, err)
	assert.Equal(t, ir.MustBlocksFingerprint(a), ir.MustBlocksFingerprint(b))
}

func TestBuildRejectsHandBuiltQueries(t *testing.T) {
	_, err := Build(nil, ir.Limits{})
	assert.Error(t, err)

	q := &query.Query{
		RootType: "Person",
		Selections: []query.Selection{&query.ScalarField{
			Name: "age",
			Type: intType,
			Filters: []*query.FilterDirective{{
				Op:   mustOperator(t, "="),
				Args: []query.Arg{{Kind: query.ArgVariable, Name: "undeclared", Type: intType}},
			}},
			Output: &query.OutputDirective{Alias: "a"},
		}},
	}
	_, err = Build(q, ir.Limits{})
	var be *compileerr.IRBuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, compileerr.CodeUnresolvedOperand, be.Code)
	assert.Contains(t, be.Message, "$undeclared")
}

func mustOperator(t *testing.T, name string) ir.OperatorSpec {
	t.Helper()
	op, ok := ir.LookupOperator(name)
	require.True(t, ok)
	return op
}
