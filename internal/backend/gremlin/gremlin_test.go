package gremlin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/irbuild"
	"github.com/roach88/gqlc/internal/query"
	"github.com/roach88/gqlc/internal/testutil"
)

func compile(t *testing.T, text string, bind backend.Bindings) (*backend.CompilationResult, error) {
	t.Helper()
	s := testutil.PeopleSchema(t)
	doc, err := query.Parse(text, ir.Limits{})
	require.NoError(t, err)
	q, err := query.Validate(s, doc)
	require.NoError(t, err)
	blocks, err := irbuild.Build(q, ir.Limits{})
	require.NoError(t, err)
	return New().Compile(blocks, s, bind)
}

func mustCompile(t *testing.T, text string, bind backend.Bindings) *backend.CompilationResult {
	t.Helper()
	res, err := compile(t, text, bind)
	require.NoError(t, err)
	return res
}

func TestCompilePersonKnows(t *testing.T) {
	res := mustCompile(t, `{
  Person {
    name @output(name: "personName")
    knows @optional { name @output(name: "friendName") }
    knows @fold {
      name @output(name: "friendNames")
      _x_count @output(name: "friendCount")
    }
  }
}`, nil)

	assert.Equal(t, `g.V().hasLabel('Person').as('v0')
  .optional(__.select('v0').out('KNOWS').hasLabel('Person').as('v1'))
  .project('personName', 'friendName', 'friendNames', 'friendCount')
  .by(__.select('v0').values('name'))
  .by(__.coalesce(__.select('v1').values('name'), __.constant(null)))
  .by(__.select('v0').out('KNOWS').hasLabel('Person').order().by(T.id).values('name').fold())
  .by(__.select('v0').out('KNOWS').hasLabel('Person').count())`, res.Query)
	assert.Empty(t, res.Parameters)
	assert.Equal(t, backend.Gremlin, res.Backend)
}

func TestCompileDeferredOptionalFilters(t *testing.T) {
	res := mustCompile(t, `{
  Person {
    name @output(name: "name") @tag(name: "n")
    age @filter(op: ">=", value: ["$min_age"])
    knows @optional {
      name @output(name: "friend") @filter(op: "!=", value: ["%n"])
      age @filter(op: "<", value: [30])
    }
  }
}`, backend.Bindings{"min_age": 26})

	assert.Equal(t, `g.V().hasLabel('Person').as('v0')
  .has('age', P.gte(min_age))
  .optional(__.select('v0').out('KNOWS').hasLabel('Person').as('v1'))
  .where(__.or(__.not(__.select('v1')), __.select('v1').where(P.neq('v0')).by('name').by('name')))
  .where(__.or(__.not(__.select('v1')), __.select('v1').has('age', P.lt(__lit0))))
  .project('name', 'friend')
  .by(__.select('v0').values('name'))
  .by(__.coalesce(__.select('v1').values('name'), __.constant(null)))`, res.Query)

	require.Len(t, res.Parameters, 2)
	assert.Equal(t, "min_age", res.Parameters[0].Name)
	assert.True(t, res.Parameters[0].Bound)
	assert.Equal(t, "__lit0", res.Parameters[1].Name)
	assert.Equal(t, int64(30), res.Parameters[1].Value)
}

func TestCompileRecurse(t *testing.T) {
	res := mustCompile(t, `{
  Person {
    name @output(name: "name")
    knows @recurse(depth: "$hops") { name @output(name: "reach") }
  }
}`, nil)
	assert.Contains(t, res.Query,
		".select('v0').emit().repeat(__.out('KNOWS')).times(hops).hasLabel('Person').as('v1').dedup('v0', 'v1')")
	assert.Equal(t, []string{"hops"}, res.Unbound())
}

func TestCompileFoldFilters(t *testing.T) {
	res := mustCompile(t, `{
  Person {
    name @output(name: "name")
    known_by @fold {
      _x_count @filter(op: ">=", value: [1]) @output(name: "admirers")
      name @output(name: "names") @filter(op: "has_substring", value: ["o"])
      lives_in { name @filter(op: "=", value: ["$city"]) }
    }
  }
}`, nil)
	chain := "__.select('v0').in('KNOWS').hasLabel('Person').has('name', TextP.containing(__lit0)).where(__.out('LIVES_IN').hasLabel('City').has('name', P.eq(city)))"
	assert.Contains(t, res.Query, ".where("+chain+".count().is(P.gte(__lit1)))")
	assert.Contains(t, res.Query, ".by("+chain+".count())")
	assert.Contains(t, res.Query, ".by("+chain+".order().by(T.id).values('name').fold())")
}

func TestCompilePredicates(t *testing.T) {
	tests := []struct {
		filter string
		want   string
	}{
		{`age @filter(op: "between", value: [18, 30])`, ".has('age', P.gte(__lit0).and(P.lte(__lit1)))"},
		{`age @filter(op: "in_collection", value: ["$ages"])`, ".has('age', P.within(ages))"},
		{`age @filter(op: "not_in_collection", value: ["$ages"])`, ".has('age', P.without(ages))"},
		{`name @filter(op: "starts_with", value: ["A"])`, ".has('name', TextP.startingWith(__lit0))"},
		{`name @filter(op: "ends_with", value: ["e"])`, ".has('name', TextP.endingWith(__lit0))"},
		{`aliases @filter(op: "contains", value: ["al"])`, ".has('aliases', __lit0)"},
		{`aliases @filter(op: "not_contains", value: ["al"])`, ".not(__.has('aliases', __lit0))"},
		{`aliases @filter(op: "intersects", value: ["$a"])`, ".has('aliases', P.within(a))"},
		{`age @filter(op: "is_null")`, ".hasNot('age')"},
		{`age @filter(op: "is_not_null")`, ".has('age')"},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			res := mustCompile(t, `{ Person { name @output(name: "n") `+tt.filter+` } }`, nil)
			assert.Contains(t, res.Query, "g.V().hasLabel('Person').as('v0')\n  "+tt.want+"\n")
		})
	}
}

func TestCompileTagInNonComparisonUnsupported(t *testing.T) {
	_, err := compile(t, `{
  Person {
    age @tag(name: "a")
    knows {
      name @output(name: "n")
      age @filter(op: "between", value: ["%a", 99])
    }
  }
}`, nil)
	require.Error(t, err)
	assert.True(t, compileerr.IsBackendUnsupportedError(err))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `'it\'s'`, quote("it's"))
	assert.Equal(t, `'a\\b'`, quote(`a\b`))
}

func TestRegistered(t *testing.T) {
	c, err := backend.Lookup(backend.Gremlin)
	require.NoError(t, err)
	assert.IsType(t, &Compiler{}, c)
}
