// Package schema is the typed catalog every compilation is checked against:
// vertex types and their properties, edges, the directive allow-list, and the
// backend naming of each logical name.
//
// A *Schema is immutable once Build returns it. Accessors return copies, so
// any number of goroutines may compile against one instance without locking.
package schema

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ScalarKind is the scalar part of a property type.
type ScalarKind string

const (
	String   ScalarKind = "String"
	ID       ScalarKind = "ID"
	Int      ScalarKind = "Int"
	Float    ScalarKind = "Float"
	Boolean  ScalarKind = "Boolean"
	Date     ScalarKind = "Date"
	DateTime ScalarKind = "DateTime"
	Decimal  ScalarKind = "Decimal"
)

var scalarKinds = map[ScalarKind]bool{
	String: true, ID: true, Int: true, Float: true,
	Boolean: true, Date: true, DateTime: true, Decimal: true,
}

// Type is a property type: a scalar kind, optionally wrapped in a list.
type Type struct {
	Kind ScalarKind
	List bool
}

// ParseType parses "String" or "[String]".
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	list := false
	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return Type{}, fmt.Errorf("malformed list type %q", s)
		}
		list = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	k := ScalarKind(s)
	if !scalarKinds[k] {
		return Type{}, fmt.Errorf("unknown scalar type %q", s)
	}
	return Type{Kind: k, List: list}, nil
}

// MustParseType is like ParseType but panics on error.
// Use only in tests or for known-good literals.
func MustParseType(s string) Type {
	t, err := ParseType(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Type) String() string {
	if t.List {
		return "[" + string(t.Kind) + "]"
	}
	return string(t.Kind)
}

// MarshalText renders the type as in schema files.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses "String" or "[String]".
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Elem returns the element type of a list type, or t itself.
func (t Type) Elem() Type { return Type{Kind: t.Kind} }

// ListOf returns the list type whose elements are t.
func (t Type) ListOf() Type { return Type{Kind: t.Kind, List: true} }

// IsZero reports whether t is the zero Type.
func (t Type) IsZero() bool { return t.Kind == "" }

// Textual reports whether values of t compare as text.
func (t Type) Textual() bool {
	switch t.Kind {
	case String, ID:
		return !t.List
	}
	return false
}

// Property is a scalar or list-valued attribute of a vertex type.
type Property struct {
	Name      string
	Type      Type
	Column    string // relational column name
	GraphName string // property key in graph backends
}

// VertexType is a node type in the logical schema.
type VertexType struct {
	Name       string
	Table      string
	PrimaryKey string
	Label      string
	Properties []Property
}

// Property looks up a property by logical name.
func (v VertexType) Property(name string) (Property, bool) {
	for _, p := range v.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Direction is the direction an edge is traversed in.
type Direction int

const (
	Out Direction = iota
	In
)

func (d Direction) String() string {
	if d == In {
		return "in"
	}
	return "out"
}

// Cardinality of an edge.
type Cardinality string

const (
	OneToOne   Cardinality = "one_to_one"
	OneToMany  Cardinality = "one_to_many"
	ManyToOne  Cardinality = "many_to_one"
	ManyToMany Cardinality = "many_to_many"
)

// EdgeSQL describes how an edge is joined in relational backends.
//
// Without Table the edge is a foreign-key join: from.FromColumn = to.ToColumn.
// With Table it is a junction table: Table.FromColumn references the source
// primary key and Table.ToColumn the target primary key.
type EdgeSQL struct {
	Table      string
	FromColumn string
	ToColumn   string
}

// Junction reports whether the edge goes through a junction table.
func (e EdgeSQL) Junction() bool { return e.Table != "" }

// Mapped reports whether any relational mapping was declared.
func (e EdgeSQL) Mapped() bool { return e.FromColumn != "" && e.ToColumn != "" }

// Edge connects two vertex types. It surfaces as OutField on From and as
// InField on To.
type Edge struct {
	Name        string
	From        string
	To          string
	OutField    string
	InField     string
	Label       string
	Cardinality Cardinality
	Recursive   bool
	SQL         EdgeSQL
}

// Traversal is an edge seen from one of its endpoints.
type Traversal struct {
	Edge      Edge
	Direction Direction
	Source    string
	Target    string
}

// FieldKind distinguishes property fields from edge fields.
type FieldKind int

const (
	PropertyField FieldKind = iota
	EdgeField
)

// Field is a resolved field of a vertex type.
type Field struct {
	Kind      FieldKind
	Name      string
	Property  Property  // set when Kind == PropertyField
	Traversal Traversal // set when Kind == EdgeField
}

// Construct is a kind of query construct that can carry directives.
type Construct string

const (
	ScalarConstruct Construct = "scalar"
	EdgeConstruct   Construct = "edge"
)

// Default directive allow-lists.
var (
	DefaultScalarDirectives = []string{"output", "tag", "filter"}
	DefaultEdgeDirectives   = []string{"optional", "fold", "recurse"}
)

// CountField is the meta field that counts the rows of a fold.
const CountField = "_x_count"

// Schema is the immutable, validated catalog. Build it with Build.
type Schema struct {
	types      map[string]VertexType
	typeOrder  []string
	edges      []Edge
	fields     map[string]map[string]Field
	directives map[Construct]map[string]bool
}

// Vertex returns the vertex type with the given name.
func (s *Schema) Vertex(name string) (VertexType, bool) {
	v, ok := s.types[name]
	if !ok {
		return VertexType{}, false
	}
	v.Properties = slices.Clone(v.Properties)
	return v, true
}

// VertexNames returns vertex type names in declaration order.
func (s *Schema) VertexNames() []string {
	return slices.Clone(s.typeOrder)
}

// Edges returns all edges in declaration order.
func (s *Schema) Edges() []Edge {
	return slices.Clone(s.edges)
}

// Field resolves a field of a vertex type.
func (s *Schema) Field(typeName, field string) (Field, bool) {
	fs, ok := s.fields[typeName]
	if !ok {
		return Field{}, false
	}
	f, ok := fs[field]
	return f, ok
}

// FieldNames returns the sorted field names of a vertex type.
func (s *Schema) FieldNames(typeName string) []string {
	fs := s.fields[typeName]
	names := make([]string, 0, len(fs))
	for n := range fs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DirectiveAllowed reports whether directive may decorate construct c.
func (s *Schema) DirectiveAllowed(c Construct, directive string) bool {
	return s.directives[c][directive]
}

// Directives returns the allow-list for construct c, sorted.
func (s *Schema) Directives(c Construct) []string {
	out := make([]string, 0, len(s.directives[c]))
	for d := range s.directives[c] {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Table returns the relational table of a vertex type.
func (s *Schema) Table(typeName string) string { return s.types[typeName].Table }

// PrimaryKey returns the primary key column of a vertex type.
func (s *Schema) PrimaryKey(typeName string) string { return s.types[typeName].PrimaryKey }

// Label returns the graph label of a vertex type.
func (s *Schema) Label(typeName string) string { return s.types[typeName].Label }

// Column returns the relational column of a property.
func (s *Schema) Column(typeName, prop string) string {
	p, ok := s.types[typeName].Property(prop)
	if !ok {
		return prop
	}
	return p.Column
}

// Edge returns the edge with the given name.
func (s *Schema) Edge(name string) (Edge, bool) {
	for _, e := range s.edges {
		if e.Name == name {
			return e, true
		}
	}
	return Edge{}, false
}

// EdgeLabel returns the graph label of an edge.
func (s *Schema) EdgeLabel(name string) string {
	if e, ok := s.Edge(name); ok {
		return e.Label
	}
	return name
}

// PropertyName returns the graph property key of a property.
func (s *Schema) PropertyName(typeName, prop string) string {
	p, ok := s.types[typeName].Property(prop)
	if !ok {
		return prop
	}
	return p.GraphName
}
