package query

import (
	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/schema"
)

// Document is the parse tree of one query.
type Document struct {
	OperationName string
	Root          *Root
}

// Root is the single top-level field naming the starting vertex type.
type Root struct {
	TypeName     string
	Pos          compileerr.Pos
	Arguments    []Argument
	Directives   []Directive
	Selections   []*Field
	HasSelection bool
}

// Field is an unresolved selection. The validator decides whether it is a
// property or an edge.
type Field struct {
	Name         string
	Pos          compileerr.Pos
	Arguments    []Argument
	Directives   []Directive
	Selections   []*Field
	HasSelection bool
}

// Argument is name: value.
type Argument struct {
	Name  string
	Value Value
	Pos   compileerr.Pos
}

// Directive is @name(args...).
type Directive struct {
	Name      string
	Arguments []Argument
	Pos       compileerr.Pos
}

// Value is an argument value in the parse tree. Sealed.
type Value interface {
	ValuePos() compileerr.Pos
	valueNode()
}

// StringValue is a quoted string.
type StringValue struct {
	Value string
	Pos   compileerr.Pos
}

// IntValue is an integer literal; Raw is its source text.
type IntValue struct {
	Raw string
	Pos compileerr.Pos
}

// FloatValue is a float literal. Floats parse but never validate as
// directive arguments.
type FloatValue struct {
	Raw string
	Pos compileerr.Pos
}

// BooleanValue is true or false.
type BooleanValue struct {
	Value bool
	Pos   compileerr.Pos
}

// NullValue is null.
type NullValue struct {
	Pos compileerr.Pos
}

// EnumValue is a bare name in value position.
type EnumValue struct {
	Name string
	Pos  compileerr.Pos
}

// ListValue is [v1, v2, ...].
type ListValue struct {
	Items []Value
	Pos   compileerr.Pos
}

// VariableValue is $name.
type VariableValue struct {
	Name string
	Pos  compileerr.Pos
}

// TagValue is %name.
type TagValue struct {
	Name string
	Pos  compileerr.Pos
}

func (v StringValue) ValuePos() compileerr.Pos   { return v.Pos }
func (v IntValue) ValuePos() compileerr.Pos      { return v.Pos }
func (v FloatValue) ValuePos() compileerr.Pos    { return v.Pos }
func (v BooleanValue) ValuePos() compileerr.Pos  { return v.Pos }
func (v NullValue) ValuePos() compileerr.Pos     { return v.Pos }
func (v EnumValue) ValuePos() compileerr.Pos     { return v.Pos }
func (v ListValue) ValuePos() compileerr.Pos     { return v.Pos }
func (v VariableValue) ValuePos() compileerr.Pos { return v.Pos }
func (v TagValue) ValuePos() compileerr.Pos      { return v.Pos }

func (StringValue) valueNode()   {}
func (IntValue) valueNode()      {}
func (FloatValue) valueNode()    {}
func (BooleanValue) valueNode()  {}
func (NullValue) valueNode()     {}
func (EnumValue) valueNode()     {}
func (ListValue) valueNode()     {}
func (VariableValue) valueNode() {}
func (TagValue) valueNode()      {}

// Query is a validated query. Every node carries its resolved schema
// information, so lowering needs no further schema lookups.
type Query struct {
	Name       string
	RootType   string
	Pos        compileerr.Pos
	Selections []Selection
	// Params maps every $parameter to its inferred type.
	Params map[string]schema.Type
	// ParamOrder lists parameters in first-use order.
	ParamOrder []string
	// OutputCount is the number of @output directives.
	OutputCount int
}

// Selection is a resolved field: *ScalarField or *EdgeField. Sealed.
type Selection interface {
	selectionNode()
	FieldName() string
	FieldPos() compileerr.Pos
}

// ScalarField is a property leaf, or the fold-count meta field when Count
// is set.
type ScalarField struct {
	Name    string
	Pos     compileerr.Pos
	Type    schema.Type
	Count   bool
	Output  *OutputDirective
	Tag     *TagDirective
	Filters []*FilterDirective
}

// EdgeField is a traversal to an adjacent vertex.
type EdgeField struct {
	Name       string
	Pos        compileerr.Pos
	Traversal  schema.Traversal
	Optional   *OptionalDirective
	Fold       *FoldDirective
	Recurse    *RecurseDirective
	Selections []Selection
}

func (*ScalarField) selectionNode() {}
func (*EdgeField) selectionNode()   {}

func (f *ScalarField) FieldName() string        { return f.Name }
func (f *ScalarField) FieldPos() compileerr.Pos { return f.Pos }
func (f *EdgeField) FieldName() string          { return f.Name }
func (f *EdgeField) FieldPos() compileerr.Pos   { return f.Pos }

// OutputDirective is @output(name:). Seq is its declaration ordinal.
type OutputDirective struct {
	Alias string
	Seq   int
	Pos   compileerr.Pos
}

// OptionalDirective is @optional.
type OptionalDirective struct {
	Pos compileerr.Pos
}

// FoldDirective is @fold.
type FoldDirective struct {
	Pos compileerr.Pos
}

// TagDirective is @tag(name:).
type TagDirective struct {
	Name string
	Pos  compileerr.Pos
}

// FilterDirective is @filter(op:, args:), resolved against the operator
// table.
type FilterDirective struct {
	Op   ir.OperatorSpec
	Args []Arg
	Pos  compileerr.Pos
}

// RecurseDirective is @recurse(depth:). Depth is an ArgLiteral Int or an
// ArgVariable.
type RecurseDirective struct {
	Depth Arg
	Pos   compileerr.Pos
}

// ArgKind distinguishes filter and recurse argument forms.
type ArgKind int

const (
	ArgLiteral ArgKind = iota
	ArgVariable
	ArgTag
)

// Arg is one resolved directive argument: a literal, a $parameter or a
// %tag. Type is the type the operator expects at this position.
type Arg struct {
	Kind    ArgKind
	Name    string   // parameter or tag name
	Literal ir.Value // set for ArgLiteral
	Type    schema.Type
	Pos     compileerr.Pos
}
