package ir

import (
	"fmt"
	"strings"

	"github.com/roach88/gqlc/internal/schema"
)

// Expr is a filter predicate. Sealed; see the variants below.
type Expr interface {
	exprNode()
}

// Operand is a leaf of an expression: a field at a location, a literal, a
// named parameter, or a reference to a tagged value.
type Operand interface {
	operandNode()
	OperandType() schema.Type
}

// FieldRef is a property of the vertex at Location. Field may be the
// fold-count meta field.
type FieldRef struct {
	Location Location
	Field    string
	Type     schema.Type
}

// Literal is a constant written in the query. Backends bind it as a
// parameter; it is never spliced into query text.
type Literal struct {
	Value Value
	Type  schema.Type
}

// Variable is a $parameter bound at compile or execution time.
type Variable struct {
	Name string
	Type schema.Type
}

// TagRef is a %tag reference. Optional is set when the tagged location sits
// inside an optional scope; a filter comparing against an absent tag passes.
type TagRef struct {
	Name     string
	Location Location
	Field    string
	Type     schema.Type
	Optional bool
}

func (FieldRef) operandNode() {}
func (Literal) operandNode()  {}
func (Variable) operandNode() {}
func (TagRef) operandNode()   {}

func (o FieldRef) OperandType() schema.Type { return o.Type }
func (o Literal) OperandType() schema.Type  { return o.Type }
func (o Variable) OperandType() schema.Type { return o.Type }
func (o TagRef) OperandType() schema.Type   { return o.Type }

// IsCount reports whether the reference is the fold-count meta field.
func (o FieldRef) IsCount() bool { return o.Field == schema.CountField }

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpNe CompareOp = "!="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// MatchKind selects the string-matching flavor of StringMatch.
type MatchKind string

const (
	MatchSubstring MatchKind = "has_substring"
	MatchPrefix    MatchKind = "starts_with"
	MatchSuffix    MatchKind = "ends_with"
)

// Compare is Left Op Right.
type Compare struct {
	Op    CompareOp
	Left  Operand
	Right Operand
}

// Between is Low <= Subject <= High (both bounds inclusive).
type Between struct {
	Subject Operand
	Low     Operand
	High    Operand
}

// Membership tests Subject against a list-valued Collection.
type Membership struct {
	Negated    bool
	Subject    Operand
	Collection Operand
}

// StringMatch tests Subject against Pattern.
type StringMatch struct {
	Kind    MatchKind
	Subject Operand
	Pattern Operand
}

// ListContains tests whether the list-valued List holds Element.
type ListContains struct {
	Negated bool
	List    Operand
	Element Operand
}

// Intersects tests whether two lists share at least one element.
type Intersects struct {
	List  Operand
	Other Operand
}

// NullCheck tests Subject for absence.
type NullCheck struct {
	Negated bool
	Subject Operand
}

func (Compare) exprNode()      {}
func (Between) exprNode()      {}
func (Membership) exprNode()   {}
func (StringMatch) exprNode()  {}
func (ListContains) exprNode() {}
func (Intersects) exprNode()   {}
func (NullCheck) exprNode()    {}

// Operands returns the operands of e in evaluation order.
func Operands(e Expr) []Operand {
	switch x := e.(type) {
	case Compare:
		return []Operand{x.Left, x.Right}
	case Between:
		return []Operand{x.Subject, x.Low, x.High}
	case Membership:
		return []Operand{x.Subject, x.Collection}
	case StringMatch:
		return []Operand{x.Subject, x.Pattern}
	case ListContains:
		return []Operand{x.List, x.Element}
	case Intersects:
		return []Operand{x.List, x.Other}
	case NullCheck:
		return []Operand{x.Subject}
	default:
		return nil
	}
}

// Subject returns the field the predicate filters on.
func Subject(e Expr) (FieldRef, bool) {
	ops := Operands(e)
	if len(ops) == 0 {
		return FieldRef{}, false
	}
	f, ok := ops[0].(FieldRef)
	return f, ok
}

// OptionalTags returns the tag references of e whose tagged location is
// optional, deduplicated by location ID and in operand order.
func OptionalTags(e Expr) []TagRef {
	var out []TagRef
	seen := make(map[int]bool)
	for _, op := range Operands(e) {
		if t, ok := op.(TagRef); ok && t.Optional && !seen[t.Location.ID] {
			seen[t.Location.ID] = true
			out = append(out, t)
		}
	}
	return out
}

// FormatOperand renders an operand for diagnostics and IR dumps.
func FormatOperand(o Operand) string {
	switch x := o.(type) {
	case FieldRef:
		return x.Location.Name() + "." + x.Field
	case Literal:
		return FormatValue(x.Value)
	case Variable:
		return "$" + x.Name
	case TagRef:
		return "%" + x.Name
	default:
		return fmt.Sprintf("%v", o)
	}
}

// FormatExpr renders a predicate for diagnostics and IR dumps.
func FormatExpr(e Expr) string {
	switch x := e.(type) {
	case Compare:
		return fmt.Sprintf("%s %s %s", FormatOperand(x.Left), x.Op, FormatOperand(x.Right))
	case Between:
		return fmt.Sprintf("%s between %s and %s", FormatOperand(x.Subject), FormatOperand(x.Low), FormatOperand(x.High))
	case Membership:
		op := "in"
		if x.Negated {
			op = "not in"
		}
		return fmt.Sprintf("%s %s %s", FormatOperand(x.Subject), op, FormatOperand(x.Collection))
	case StringMatch:
		return fmt.Sprintf("%s %s %s", FormatOperand(x.Subject), x.Kind, FormatOperand(x.Pattern))
	case ListContains:
		op := "contains"
		if x.Negated {
			op = "not_contains"
		}
		return fmt.Sprintf("%s %s %s", FormatOperand(x.List), op, FormatOperand(x.Element))
	case Intersects:
		return fmt.Sprintf("%s intersects %s", FormatOperand(x.List), FormatOperand(x.Other))
	case NullCheck:
		if x.Negated {
			return FormatOperand(x.Subject) + " is not null"
		}
		return FormatOperand(x.Subject) + " is null"
	default:
		return fmt.Sprintf("%v", e)
	}
}

// FormatBlock renders one block on a single line.
func FormatBlock(b Block) string {
	switch x := b.(type) {
	case QueryRoot:
		return fmt.Sprintf("QueryRoot %s", x.Location)
	case Traverse:
		var flags []string
		if x.Optional {
			flags = append(flags, "optional")
		}
		if x.Recurse != nil {
			flags = append(flags, "recurse="+FormatOperand(x.Recurse))
		}
		s := fmt.Sprintf("Traverse %s %s -> %s", x.Direction, x.Edge, x.To)
		if len(flags) > 0 {
			s += " [" + strings.Join(flags, ",") + "]"
		}
		return s
	case Backtrack:
		return fmt.Sprintf("Backtrack -> %s", x.To)
	case Fold:
		return fmt.Sprintf("Fold %s %s -> %s", x.Direction, x.Edge, x.To)
	case Unfold:
		return fmt.Sprintf("Unfold -> %s", x.To)
	case Filter:
		return fmt.Sprintf("Filter %s", FormatExpr(x.Predicate))
	case MarkTag:
		return fmt.Sprintf("MarkTag %%%s = %s.%s", x.Name, x.Location.Name(), x.Field)
	case Output:
		return fmt.Sprintf("Output %s.%s AS %s", x.Location.Name(), x.Field, x.Alias)
	default:
		return BlockKind(b)
	}
}

// Format renders a block list with indentation mirroring the nesting.
func Format(blocks []Block) string {
	var sb strings.Builder
	depth := 0
	for _, b := range blocks {
		switch b.(type) {
		case Backtrack, Unfold:
			if depth > 0 {
				depth--
			}
		}
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(FormatBlock(b))
		sb.WriteByte('\n')
		switch b.(type) {
		case QueryRoot, Traverse, Fold:
			depth++
		}
	}
	return sb.String()
}
