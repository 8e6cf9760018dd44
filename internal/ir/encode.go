package ir

import (
	"fmt"
)

// Encode converts a block list to plain JSON-compatible values, one object
// per block with a "block" discriminator. The result contains no floats or
// nulls, so it can be fed to MarshalCanonical.
func Encode(blocks []Block) []any {
	out := make([]any, len(blocks))
	for i, b := range blocks {
		out[i] = EncodeBlock(b)
	}
	return out
}

// EncodeBlock converts one block. Absent optional fields are omitted.
func EncodeBlock(b Block) map[string]any {
	m := map[string]any{"block": BlockKind(b)}
	switch x := b.(type) {
	case QueryRoot:
		m["location"] = encodeLocation(x.Location)
	case Traverse:
		m["edge"] = x.Edge
		m["field"] = x.Field
		m["direction"] = x.Direction.String()
		m["optional"] = x.Optional
		m["from"] = encodeLocation(x.From)
		m["to"] = encodeLocation(x.To)
		if x.Recurse != nil {
			m["recurse"] = encodeOperand(x.Recurse)
		}
	case Backtrack:
		m["from"] = encodeLocation(x.From)
		m["to"] = encodeLocation(x.To)
	case Fold:
		m["edge"] = x.Edge
		m["field"] = x.Field
		m["direction"] = x.Direction.String()
		m["from"] = encodeLocation(x.From)
		m["to"] = encodeLocation(x.To)
	case Unfold:
		m["from"] = encodeLocation(x.From)
		m["to"] = encodeLocation(x.To)
	case Filter:
		m["location"] = encodeLocation(x.Location)
		m["predicate"] = encodeExpr(x.Predicate)
	case MarkTag:
		m["name"] = x.Name
		m["location"] = encodeLocation(x.Location)
		m["field"] = x.Field
		m["type"] = x.Type.String()
	case Output:
		m["location"] = encodeLocation(x.Location)
		m["field"] = x.Field
		m["alias"] = x.Alias
		m["type"] = x.Type.String()
		m["seq"] = x.Seq
	}
	return m
}

func encodeLocation(l Location) map[string]any {
	return map[string]any{"id": l.ID, "path": l.Path, "type": l.Type}
}

func encodeExpr(e Expr) map[string]any {
	m := map[string]any{}
	switch x := e.(type) {
	case Compare:
		m["op"] = string(x.Op)
	case Between:
		m["op"] = "between"
	case Membership:
		m["op"] = "in_collection"
		if x.Negated {
			m["op"] = "not_in_collection"
		}
	case StringMatch:
		m["op"] = string(x.Kind)
	case ListContains:
		m["op"] = "contains"
		if x.Negated {
			m["op"] = "not_contains"
		}
	case Intersects:
		m["op"] = "intersects"
	case NullCheck:
		m["op"] = "is_null"
		if x.Negated {
			m["op"] = "is_not_null"
		}
	default:
		m["op"] = fmt.Sprintf("%T", e)
	}
	ops := Operands(e)
	args := make([]any, len(ops))
	for i, o := range ops {
		args[i] = encodeOperand(o)
	}
	m["operands"] = args
	return m
}

func encodeOperand(o Operand) map[string]any {
	switch x := o.(type) {
	case FieldRef:
		return map[string]any{"kind": "field", "location": x.Location.ID, "field": x.Field, "type": x.Type.String()}
	case Literal:
		return map[string]any{"kind": "literal", "value": x.Value, "type": x.Type.String()}
	case Variable:
		return map[string]any{"kind": "variable", "name": x.Name, "type": x.Type.String()}
	case TagRef:
		return map[string]any{
			"kind":     "tag",
			"name":     x.Name,
			"location": x.Location.ID,
			"field":    x.Field,
			"type":     x.Type.String(),
			"optional": x.Optional,
		}
	default:
		return map[string]any{"kind": fmt.Sprintf("%T", o)}
	}
}
