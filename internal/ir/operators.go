package ir

import (
	"sort"

	"github.com/roach88/gqlc/internal/schema"
)

// SubjectKind constrains the type of the field a filter decorates.
type SubjectKind int

const (
	// SubjectScalar accepts any non-list field.
	SubjectScalar SubjectKind = iota
	// SubjectText accepts String and ID fields.
	SubjectText
	// SubjectList accepts list-valued fields.
	SubjectList
	// SubjectAny accepts every field.
	SubjectAny
)

func (k SubjectKind) String() string {
	switch k {
	case SubjectScalar:
		return "scalar"
	case SubjectText:
		return "string"
	case SubjectList:
		return "list"
	default:
		return "any"
	}
}

// Accepts reports whether a field of type t may be the subject.
func (k SubjectKind) Accepts(t schema.Type) bool {
	switch k {
	case SubjectScalar:
		return !t.List
	case SubjectText:
		return t.Textual()
	case SubjectList:
		return t.List
	default:
		return true
	}
}

// OperatorSpec is one row of the filter operator table.
type OperatorSpec struct {
	Name    string
	Arity   int
	Subject SubjectKind
	// CountOK marks operators usable on the fold-count meta field.
	CountOK bool
	// OperandType maps the subject field type to the type every argument
	// must have. Nil when Arity is 0.
	OperandType func(field schema.Type) schema.Type
	// Lower builds the predicate from the subject and the resolved
	// arguments. len(args) == Arity.
	Lower func(subject Operand, args []Operand) Expr
}

func sameType(t schema.Type) schema.Type { return t }
func listOf(t schema.Type) schema.Type   { return t.ListOf() }
func elemOf(t schema.Type) schema.Type   { return t.Elem() }
func textType(schema.Type) schema.Type   { return schema.Type{Kind: schema.String} }

func compareOp(op CompareOp) OperatorSpec {
	return OperatorSpec{
		Name:        string(op),
		Arity:       1,
		Subject:     SubjectScalar,
		CountOK:     true,
		OperandType: sameType,
		Lower: func(subject Operand, args []Operand) Expr {
			return Compare{Op: op, Left: subject, Right: args[0]}
		},
	}
}

func stringOp(kind MatchKind) OperatorSpec {
	return OperatorSpec{
		Name:        string(kind),
		Arity:       1,
		Subject:     SubjectText,
		OperandType: textType,
		Lower: func(subject Operand, args []Operand) Expr {
			return StringMatch{Kind: kind, Subject: subject, Pattern: args[0]}
		},
	}
}

// operators is built once and never mutated.
var operators = func() map[string]OperatorSpec {
	specs := []OperatorSpec{
		compareOp(OpEq),
		compareOp(OpNe),
		compareOp(OpLt),
		compareOp(OpLe),
		compareOp(OpGt),
		compareOp(OpGe),
		{
			Name: "between", Arity: 2, Subject: SubjectScalar, CountOK: true, OperandType: sameType,
			Lower: func(subject Operand, args []Operand) Expr {
				return Between{Subject: subject, Low: args[0], High: args[1]}
			},
		},
		{
			Name: "in_collection", Arity: 1, Subject: SubjectScalar, OperandType: listOf,
			Lower: func(subject Operand, args []Operand) Expr {
				return Membership{Subject: subject, Collection: args[0]}
			},
		},
		{
			Name: "not_in_collection", Arity: 1, Subject: SubjectScalar, OperandType: listOf,
			Lower: func(subject Operand, args []Operand) Expr {
				return Membership{Negated: true, Subject: subject, Collection: args[0]}
			},
		},
		stringOp(MatchSubstring),
		stringOp(MatchPrefix),
		stringOp(MatchSuffix),
		{
			Name: "contains", Arity: 1, Subject: SubjectList, OperandType: elemOf,
			Lower: func(subject Operand, args []Operand) Expr {
				return ListContains{List: subject, Element: args[0]}
			},
		},
		{
			Name: "not_contains", Arity: 1, Subject: SubjectList, OperandType: elemOf,
			Lower: func(subject Operand, args []Operand) Expr {
				return ListContains{Negated: true, List: subject, Element: args[0]}
			},
		},
		{
			Name: "intersects", Arity: 1, Subject: SubjectList, OperandType: sameType,
			Lower: func(subject Operand, args []Operand) Expr {
				return Intersects{List: subject, Other: args[0]}
			},
		},
		{
			Name: "is_null", Arity: 0, Subject: SubjectAny,
			Lower: func(subject Operand, _ []Operand) Expr {
				return NullCheck{Subject: subject}
			},
		},
		{
			Name: "is_not_null", Arity: 0, Subject: SubjectAny,
			Lower: func(subject Operand, _ []Operand) Expr {
				return NullCheck{Negated: true, Subject: subject}
			},
		},
	}
	m := make(map[string]OperatorSpec, len(specs))
	for _, s := range specs {
		m[s.Name] = s
	}
	return m
}()

// LookupOperator returns the table entry for a filter operator name.
func LookupOperator(name string) (OperatorSpec, bool) {
	op, ok := operators[name]
	return op, ok
}

// OperatorNames returns every known operator name, sorted.
func OperatorNames() []string {
	names := make([]string, 0, len(operators))
	for n := range operators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsComparison reports whether e is a Compare or Between predicate.
func IsComparison(e Expr) bool {
	switch e.(type) {
	case Compare, Between:
		return true
	}
	return false
}
