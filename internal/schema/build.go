package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Document is the serialized form of a schema, shared by the YAML and CUE
// loaders. Lists keep declaration order stable.
type Document struct {
	Types      []TypeDoc      `yaml:"types" json:"types"`
	Edges      []EdgeDoc      `yaml:"edges,omitempty" json:"edges,omitempty"`
	Directives *DirectivesDoc `yaml:"directives,omitempty" json:"directives,omitempty"`
}

// TypeDoc declares one vertex type.
type TypeDoc struct {
	Name       string        `yaml:"name" json:"name"`
	Table      string        `yaml:"table,omitempty" json:"table,omitempty"`
	PrimaryKey string        `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
	Label      string        `yaml:"label,omitempty" json:"label,omitempty"`
	Properties []PropertyDoc `yaml:"properties" json:"properties"`
}

// PropertyDoc declares one property.
type PropertyDoc struct {
	Name      string `yaml:"name" json:"name"`
	Type      string `yaml:"type" json:"type"`
	Column    string `yaml:"column,omitempty" json:"column,omitempty"`
	GraphName string `yaml:"graph_name,omitempty" json:"graph_name,omitempty"`
}

// EdgeDoc declares one edge.
type EdgeDoc struct {
	Name        string      `yaml:"name" json:"name"`
	From        string      `yaml:"from" json:"from"`
	To          string      `yaml:"to" json:"to"`
	OutField    string      `yaml:"out_field,omitempty" json:"out_field,omitempty"`
	InField     string      `yaml:"in_field,omitempty" json:"in_field,omitempty"`
	Label       string      `yaml:"label,omitempty" json:"label,omitempty"`
	Cardinality string      `yaml:"cardinality,omitempty" json:"cardinality,omitempty"`
	Recursive   bool        `yaml:"recursive,omitempty" json:"recursive,omitempty"`
	SQL         *EdgeSQLDoc `yaml:"sql,omitempty" json:"sql,omitempty"`
}

// EdgeSQLDoc is the relational mapping of an edge.
type EdgeSQLDoc struct {
	Table      string `yaml:"table,omitempty" json:"table,omitempty"`
	FromColumn string `yaml:"from_column" json:"from_column"`
	ToColumn   string `yaml:"to_column" json:"to_column"`
}

// DirectivesDoc narrows the directive allow-list per construct.
type DirectivesDoc struct {
	Scalar []string `yaml:"scalar,omitempty" json:"scalar,omitempty"`
	Edge   []string `yaml:"edge,omitempty" json:"edge,omitempty"`
}

// Schema problem codes (S101-S199).
const (
	ErrNoTypes           = "S101" // at least one type required
	ErrBadName           = "S102" // name is not an identifier
	ErrDuplicateName     = "S103" // duplicate type/property/field name
	ErrBadType           = "S104" // unknown or malformed property type
	ErrUnknownEndpoint   = "S105" // edge endpoint is not a declared type
	ErrRecursiveEndpoint = "S106" // recursive edge must connect a type to itself
	ErrBadCardinality    = "S107" // unknown cardinality
	ErrBadSQLMapping     = "S108" // incomplete relational mapping
	ErrUnknownDirective  = "S109" // allow-list names an unknown directive
	ErrReservedName      = "S110" // name is reserved
)

// Problem is one self-consistency problem found while building a schema.
type Problem struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	return fmt.Sprintf("[%s] %s: %s", p.Code, p.Path, p.Message)
}

// Error aggregates every problem found by Build.
type Error struct {
	Problems []Problem
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return fmt.Sprintf("schema is inconsistent (%d problem(s)): %s", len(e.Problems), strings.Join(parts, "; "))
}

var identRE = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

var knownDirectives = map[string]Construct{
	"output":   ScalarConstruct,
	"tag":      ScalarConstruct,
	"filter":   ScalarConstruct,
	"optional": EdgeConstruct,
	"fold":     EdgeConstruct,
	"recurse":  EdgeConstruct,
}

var cardinalities = map[Cardinality]bool{
	OneToOne: true, OneToMany: true, ManyToOne: true, ManyToMany: true,
}

// Build validates a document and returns the immutable Schema.
// All problems are collected before returning.
func Build(doc Document) (*Schema, error) {
	b := &builder{
		s: &Schema{
			types:      make(map[string]VertexType),
			fields:     make(map[string]map[string]Field),
			directives: make(map[Construct]map[string]bool),
		},
	}
	b.types(doc.Types)
	b.edgeList(doc.Edges)
	b.allowList(doc.Directives)

	if len(b.problems) > 0 {
		return nil, &Error{Problems: b.problems}
	}
	return b.s, nil
}

// MustBuild is like Build but panics on error.
// Use only in tests or when the document is known to be valid.
func MustBuild(doc Document) *Schema {
	s, err := Build(doc)
	if err != nil {
		panic(err)
	}
	return s
}

type builder struct {
	s        *Schema
	problems []Problem
}

func (b *builder) add(code, path, format string, args ...any) {
	b.problems = append(b.problems, Problem{Code: code, Path: path, Message: fmt.Sprintf(format, args...)})
}

func (b *builder) checkName(path, name string) bool {
	if !identRE.MatchString(name) {
		b.add(ErrBadName, path, "%q is not a valid identifier", name)
		return false
	}
	if strings.HasPrefix(name, "__") || name == CountField {
		b.add(ErrReservedName, path, "%q is reserved", name)
		return false
	}
	return true
}

func (b *builder) types(docs []TypeDoc) {
	if len(docs) == 0 {
		b.add(ErrNoTypes, "types", "at least one vertex type is required")
		return
	}
	for i, td := range docs {
		path := fmt.Sprintf("types[%d]", i)
		if !b.checkName(path+".name", td.Name) {
			continue
		}
		if _, dup := b.s.types[td.Name]; dup {
			b.add(ErrDuplicateName, path+".name", "duplicate type %q", td.Name)
			continue
		}
		vt := VertexType{
			Name:       td.Name,
			Table:      orDefault(td.Table, td.Name),
			PrimaryKey: orDefault(td.PrimaryKey, "id"),
			Label:      orDefault(td.Label, td.Name),
		}
		fields := make(map[string]Field)
		for j, pd := range td.Properties {
			ppath := fmt.Sprintf("%s.properties[%d]", path, j)
			if !b.checkName(ppath+".name", pd.Name) {
				continue
			}
			if _, dup := fields[pd.Name]; dup {
				b.add(ErrDuplicateName, ppath+".name", "duplicate property %q on %s", pd.Name, td.Name)
				continue
			}
			t, err := ParseType(pd.Type)
			if err != nil {
				b.add(ErrBadType, ppath+".type", "%v", err)
				continue
			}
			p := Property{
				Name:      pd.Name,
				Type:      t,
				Column:    orDefault(pd.Column, pd.Name),
				GraphName: orDefault(pd.GraphName, pd.Name),
			}
			vt.Properties = append(vt.Properties, p)
			fields[pd.Name] = Field{Kind: PropertyField, Name: pd.Name, Property: p}
		}
		b.s.types[td.Name] = vt
		b.s.typeOrder = append(b.s.typeOrder, td.Name)
		b.s.fields[td.Name] = fields
	}
}

func (b *builder) edgeList(docs []EdgeDoc) {
	seen := make(map[string]bool)
	for i, ed := range docs {
		path := fmt.Sprintf("edges[%d]", i)
		if !b.checkName(path+".name", ed.Name) {
			continue
		}
		if seen[ed.Name] {
			b.add(ErrDuplicateName, path+".name", "duplicate edge %q", ed.Name)
			continue
		}
		seen[ed.Name] = true

		ok := true
		if _, exists := b.s.types[ed.From]; !exists {
			b.add(ErrUnknownEndpoint, path+".from", "unknown type %q", ed.From)
			ok = false
		}
		if _, exists := b.s.types[ed.To]; !exists {
			b.add(ErrUnknownEndpoint, path+".to", "unknown type %q", ed.To)
			ok = false
		}
		if ed.Recursive && ed.From != ed.To {
			b.add(ErrRecursiveEndpoint, path+".recursive", "recursive edge %q must connect a type to itself, got %s -> %s", ed.Name, ed.From, ed.To)
			ok = false
		}
		card := Cardinality(orDefault(ed.Cardinality, string(ManyToMany)))
		if !cardinalities[card] {
			b.add(ErrBadCardinality, path+".cardinality", "unknown cardinality %q", ed.Cardinality)
			ok = false
		}
		var sqlMap EdgeSQL
		if ed.SQL != nil {
			sqlMap = EdgeSQL{Table: ed.SQL.Table, FromColumn: ed.SQL.FromColumn, ToColumn: ed.SQL.ToColumn}
			if !sqlMap.Mapped() {
				b.add(ErrBadSQLMapping, path+".sql", "from_column and to_column are both required")
				ok = false
			}
		}

		e := Edge{
			Name:        ed.Name,
			From:        ed.From,
			To:          ed.To,
			OutField:    orDefault(ed.OutField, "out_"+ed.Name),
			InField:     orDefault(ed.InField, "in_"+ed.Name),
			Label:       orDefault(ed.Label, ed.Name),
			Cardinality: card,
			Recursive:   ed.Recursive,
			SQL:         sqlMap,
		}
		if !b.checkName(path+".out_field", e.OutField) || !b.checkName(path+".in_field", e.InField) {
			ok = false
		}
		if !ok {
			continue
		}
		if b.addEdgeField(path+".out_field", e.From, e.OutField, Traversal{Edge: e, Direction: Out, Source: e.From, Target: e.To}) &&
			b.addEdgeField(path+".in_field", e.To, e.InField, Traversal{Edge: e, Direction: In, Source: e.To, Target: e.From}) {
			b.s.edges = append(b.s.edges, e)
		}
	}
}

func (b *builder) addEdgeField(path, typeName, field string, t Traversal) bool {
	fs := b.s.fields[typeName]
	if _, dup := fs[field]; dup {
		b.add(ErrDuplicateName, path, "field %q already exists on %s", field, typeName)
		return false
	}
	fs[field] = Field{Kind: EdgeField, Name: field, Traversal: t}
	return true
}

func (b *builder) allowList(doc *DirectivesDoc) {
	scalar, edge := DefaultScalarDirectives, DefaultEdgeDirectives
	if doc != nil {
		if doc.Scalar != nil {
			scalar = doc.Scalar
		}
		if doc.Edge != nil {
			edge = doc.Edge
		}
	}
	b.s.directives[ScalarConstruct] = b.directiveSet("directives.scalar", ScalarConstruct, scalar)
	b.s.directives[EdgeConstruct] = b.directiveSet("directives.edge", EdgeConstruct, edge)
}

func (b *builder) directiveSet(path string, c Construct, names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		target, known := knownDirectives[n]
		if !known {
			b.add(ErrUnknownDirective, path, "unknown directive %q", n)
			continue
		}
		if target != c {
			b.add(ErrUnknownDirective, path, "directive %q cannot decorate %s fields", n, c)
			continue
		}
		set[n] = true
	}
	return set
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
