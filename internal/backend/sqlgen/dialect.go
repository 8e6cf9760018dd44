package sqlgen

import (
	"fmt"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/schema"
)

// dialect holds what differs between the relational targets. Arguments are
// already-rendered SQL fragments.
type dialect interface {
	id() backend.ID
	style() backend.PlaceholderStyle
	// jsonArray aggregates value into a JSON array ordered by orderBy; the
	// empty aggregate is an empty array, never NULL.
	jsonArray(value, orderBy string) string
	// jsonElement adapts a folded column before aggregation.
	jsonElement(value string, t schema.Type) string
	membership(subject, list string, negated bool) string
	// stringMatch calls pattern once per placeholder it emits.
	stringMatch(kind ir.MatchKind, subject string, pattern func() string) string
	listContains(list, elem string, negated bool) string
	intersects(list, other string) string
}

// sqliteDialect stores list properties and binds list parameters as JSON
// text.
type sqliteDialect struct{}

func (sqliteDialect) id() backend.ID                  { return backend.SQLite }
func (sqliteDialect) style() backend.PlaceholderStyle { return backend.QuestionMark }

func (sqliteDialect) jsonArray(value, orderBy string) string {
	return fmt.Sprintf("COALESCE(json_group_array(%s ORDER BY %s), '[]')", value, orderBy)
}

func (sqliteDialect) jsonElement(value string, t schema.Type) string {
	if t.List {
		return "json(" + value + ")"
	}
	return value
}

func (sqliteDialect) membership(subject, list string, negated bool) string {
	op := "IN"
	if negated {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (SELECT value FROM json_each(%s))", subject, op, list)
}

func (sqliteDialect) stringMatch(kind ir.MatchKind, subject string, pattern func() string) string {
	switch kind {
	case ir.MatchPrefix:
		p := pattern()
		return fmt.Sprintf("substr(%s, 1, length(%s)) = %s", subject, p, pattern())
	case ir.MatchSuffix:
		p := pattern()
		return fmt.Sprintf("substr(%[1]s, length(%[1]s) - length(%[2]s) + 1) = %[3]s", subject, p, pattern())
	default:
		return fmt.Sprintf("instr(%s, %s) > 0", subject, pattern())
	}
}

func (sqliteDialect) listContains(list, elem string, negated bool) string {
	q := fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) WHERE value = %s)", list, elem)
	if negated {
		return "NOT " + q
	}
	return q
}

func (sqliteDialect) intersects(list, other string) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) AS x JOIN json_each(%s) AS y ON x.value = y.value)", list, other)
}

// postgresDialect uses native arrays for list properties and parameters.
type postgresDialect struct{}

func (postgresDialect) id() backend.ID                  { return backend.Postgres }
func (postgresDialect) style() backend.PlaceholderStyle { return backend.DollarNumber }

func (postgresDialect) jsonArray(value, orderBy string) string {
	return fmt.Sprintf("COALESCE(json_agg(%s ORDER BY %s), '[]'::json)", value, orderBy)
}

func (postgresDialect) jsonElement(value string, _ schema.Type) string { return value }

func (postgresDialect) membership(subject, list string, negated bool) string {
	q := fmt.Sprintf("%s = ANY(%s)", subject, list)
	if negated {
		return "NOT (" + q + ")"
	}
	return q
}

func (postgresDialect) stringMatch(kind ir.MatchKind, subject string, pattern func() string) string {
	switch kind {
	case ir.MatchPrefix:
		p := pattern()
		return fmt.Sprintf("left(%s, length(%s)) = %s", subject, p, pattern())
	case ir.MatchSuffix:
		p := pattern()
		return fmt.Sprintf("right(%s, length(%s)) = %s", subject, p, pattern())
	default:
		return fmt.Sprintf("strpos(%s, %s) > 0", subject, pattern())
	}
}

func (postgresDialect) listContains(list, elem string, negated bool) string {
	q := fmt.Sprintf("%s = ANY(%s)", elem, list)
	if negated {
		return "NOT (" + q + ")"
	}
	return q
}

func (postgresDialect) intersects(list, other string) string {
	return list + " && " + other
}
