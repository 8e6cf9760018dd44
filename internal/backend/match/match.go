// Package match compiles IR blocks to an OrientDB MATCH statement wrapped in
// an outer SELECT.
//
// Filters that must tolerate a missing optional vertex cannot live in the
// MATCH pattern: OrientDB would treat the vertex as not found instead of
// dropping the row. They are moved to the outer WHERE with an IS NULL
// guard. Folds are projections over the matched vertices.
package match

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/schema"
)

func init() {
	backend.Register(backend.Match, New())
}

// Compiler emits OrientDB MATCH.
type Compiler struct{}

// New returns a MATCH compiler.
func New() *Compiler { return &Compiler{} }

// Compile implements backend.Compiler.
func (c *Compiler) Compile(blocks []ir.Block, s *schema.Schema, bind backend.Bindings) (*backend.CompilationResult, error) {
	tree, err := backend.BuildTree(string(backend.Match), blocks)
	if err != nil {
		return nil, err
	}
	g := &gen{
		s:     s,
		tree:  tree,
		b:     backend.NewBinder(backend.ColonName, bind),
		names: make(map[operandKey]string),
	}
	text, err := g.query()
	if err != nil {
		return nil, err
	}
	return backend.NewResult(backend.Match, text, g.b.Parameters(), tree.Meta)
}

type operandKey struct {
	loc, filter, operand int
}

// mode selects how fields and tags are spelled.
type mode int

const (
	// inPattern is a where: clause inside MATCH; fields are bare and tags
	// come from $matched.
	inPattern mode = iota
	// outer is the WHERE of the wrapping SELECT; everything is qualified by
	// its alias.
	outer
	// inFold is a [...] condition of a fold projection.
	inFold
)

type gen struct {
	s     *schema.Schema
	tree  *backend.Tree
	b     *backend.Binder
	names map[operandKey]string
}

func (g *gen) query() (string, error) {
	for _, n := range g.tree.Root.Subtree() {
		if n.Kind == backend.NodeTraverse && n.Parent.InOptional {
			return "", backend.Unsupported(backend.Match, "traversal inside optional scope", n.Location,
				"optional match nodes must be leaves")
		}
	}

	cols := make([]string, 0, len(g.tree.Outputs))
	for _, o := range g.tree.Outputs {
		col, err := g.projection(o)
		if err != nil {
			return "", err
		}
		cols = append(cols, col+" AS "+alias(o.Alias))
	}

	var patterns, where []string
	for _, n := range g.tree.Root.Subtree() {
		if n.InFold {
			if n.Kind == backend.NodeFold {
				for i, e := range n.Filters {
					if !isCountFilter(e) {
						continue
					}
					p, err := g.outerFilter(n.Parent, n, i, e)
					if err != nil {
						return "", err
					}
					where = append(where, p)
				}
			}
			continue
		}

		var local []string
		for i, e := range n.Filters {
			if n.InOptional || len(ir.OptionalTags(e)) > 0 {
				p, err := g.outerFilter(n, n, i, e)
				if err != nil {
					return "", err
				}
				where = append(where, p)
				continue
			}
			p, err := g.expr(n, i, e, inPattern)
			if err != nil {
				return "", err
			}
			local = append(local, p)
		}
		pat, err := g.pattern(n, local)
		if err != nil {
			return "", err
		}
		patterns = append(patterns, pat)
	}

	var sb strings.Builder
	sb.WriteString("SELECT\n  ")
	sb.WriteString(strings.Join(cols, ",\n  "))
	sb.WriteString("\nFROM (MATCH\n  ")
	sb.WriteString(strings.Join(patterns, ",\n  "))
	sb.WriteString("\nRETURN $matches)")
	if len(where) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(where, "\n  AND "))
	}
	return sb.String(), nil
}

// pattern renders the MATCH element of n.
func (g *gen) pattern(n *backend.Node, where []string) (string, error) {
	attrs := []string{"class: " + g.s.Label(n.Location.Type), "as: " + n.Name()}
	switch len(where) {
	case 0:
	case 1:
		attrs = append(attrs, "where: ("+where[0]+")")
	default:
		attrs = append(attrs, "where: (("+strings.Join(where, ") AND (")+"))")
	}
	if n.Kind == backend.NodeRoot {
		return "{" + strings.Join(attrs, ", ") + "}", nil
	}
	if n.Recurse != nil {
		depth, err := g.value(operandKey{n.Location.ID, -1, 0}, n.Recurse)
		if err != nil {
			return "", err
		}
		attrs = append(attrs, "while: ($depth < "+depth+")")
	}
	if n.Optional {
		attrs = append(attrs, "optional: true")
	}
	return "{as: " + n.Parent.Name() + "}" + g.step(n) + "{" + strings.Join(attrs, ", ") + "}", nil
}

func (g *gen) step(n *backend.Node) string {
	dir := "out"
	if n.Direction == schema.In {
		dir = "in"
	}
	return "." + dir + "('" + g.s.EdgeLabel(n.Edge) + "')"
}

func (g *gen) projection(o ir.Output) (string, error) {
	n := g.tree.Node(o.Location)
	if n == nil {
		return "", internal("output %s at unknown location %s", o.Alias, o.Location)
	}
	prop := g.s.PropertyName(n.Location.Type, o.Field)
	switch {
	case o.IsCount():
		path, err := g.foldPath(n)
		if err != nil {
			return "", err
		}
		return path + ".size()", nil
	case n.InFold:
		path, err := g.foldPath(n.FoldRoot())
		if err != nil {
			return "", err
		}
		return orderedFold(path) + "." + prop, nil
	default:
		return n.Name() + "." + prop, nil
	}
}

// orderedFold expands a fold path from the matched row and sorts the
// vertices by record id, so every projection of one fold lines up and the
// collection order never depends on edge storage order.
func orderedFold(path string) string {
	return "(SELECT expand($parent.$current." + path + ") ORDER BY @rid)"
}

// foldPath renders the method chain from the fold's parent to the node
// holding its outputs, with fold filters as [...] conditions.
func (g *gen) foldPath(f *backend.Node) (string, error) {
	target := g.tree.FoldOutputNode(f)
	path := target.PathFrom(f.Parent)
	onPath := make(map[*backend.Node]bool, len(path))
	for _, n := range path {
		onPath[n] = true
	}

	var sb strings.Builder
	sb.WriteString(f.Parent.Name())
	for _, n := range path {
		for _, c := range n.Children {
			if !onPath[c] {
				return "", backend.Unsupported(backend.Match, "branching fold", c.Location,
					"fold projections follow a single path")
			}
		}
		sb.WriteString(g.step(n))
		var conds []string
		for i, e := range n.Filters {
			if isCountFilter(e) {
				continue
			}
			p, err := g.expr(n, i, e, inFold)
			if err != nil {
				return "", err
			}
			conds = append(conds, "("+p+")")
		}
		if len(conds) > 0 {
			sb.WriteString("[" + strings.Join(conds, " AND ") + "]")
		}
	}
	return sb.String(), nil
}

// outerFilter renders filter i of n for the outer WHERE. owner is the
// location whose absence makes the filter pass.
func (g *gen) outerFilter(owner, n *backend.Node, i int, e ir.Expr) (string, error) {
	body, err := g.expr(n, i, e, outer)
	if err != nil {
		return "", err
	}
	var guards []string
	seen := map[int]bool{owner.Location.ID: true}
	if owner.InOptional {
		guards = append(guards, owner.Name()+" IS NULL")
	}
	for _, t := range ir.OptionalTags(e) {
		if !seen[t.Location.ID] {
			seen[t.Location.ID] = true
			guards = append(guards, t.Location.Name()+" IS NULL")
		}
	}
	if len(guards) == 0 {
		return "(" + body + ")", nil
	}
	return "(" + strings.Join(guards, " OR ") + " OR " + body + ")", nil
}

func (g *gen) expr(n *backend.Node, i int, e ir.Expr, m mode) (string, error) {
	ops := ir.Operands(e)
	var firstErr error
	render := func(j int) string {
		s, err := g.operand(operandKey{n.Location.ID, i, j}, n, ops[j], m)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return s
	}

	var out string
	switch x := e.(type) {
	case ir.Compare:
		op := string(x.Op)
		if x.Op == ir.OpNe {
			op = "<>"
		}
		out = render(0) + " " + op + " " + render(1)
	case ir.Between:
		out = render(0) + " BETWEEN " + render(1) + " AND " + render(2)
	case ir.Membership:
		out = render(0) + " IN " + render(1)
		if x.Negated {
			out = "NOT (" + out + ")"
		}
	case ir.StringMatch:
		s, p := render(0), render(1)
		switch x.Kind {
		case ir.MatchPrefix:
			out = s + " LIKE (" + p + " + '%')"
		case ir.MatchSuffix:
			out = s + " LIKE ('%' + " + p + ")"
		default:
			out = s + " LIKE ('%' + " + p + " + '%')"
		}
	case ir.ListContains:
		out = render(1) + " IN " + render(0)
		if x.Negated {
			out = "NOT (" + out + ")"
		}
	case ir.Intersects:
		out = render(0) + ".intersect(" + render(1) + ").asList().size() > 0"
	case ir.NullCheck:
		out = render(0) + " IS NULL"
		if x.Negated {
			out = strings.TrimSuffix(out, " NULL") + " NOT NULL"
		}
	default:
		return "", internal("unknown predicate %T", e)
	}
	return out, firstErr
}

func (g *gen) operand(key operandKey, n *backend.Node, op ir.Operand, m mode) (string, error) {
	switch o := op.(type) {
	case ir.FieldRef:
		if o.IsCount() {
			f := g.tree.Node(o.Location)
			if f == nil || f.Kind != backend.NodeFold {
				return "", internal("count of %s outside a fold", o.Location)
			}
			path, err := g.foldPath(f)
			if err != nil {
				return "", err
			}
			return path + ".size()", nil
		}
		prop := g.s.PropertyName(o.Location.Type, o.Field)
		if m == outer {
			return o.Location.Name() + "." + prop, nil
		}
		return prop, nil
	case ir.TagRef:
		prop := g.s.PropertyName(o.Location.Type, o.Field)
		switch m {
		case inPattern:
			return "$matched." + o.Location.Name() + "." + prop, nil
		case outer:
			return o.Location.Name() + "." + prop, nil
		default:
			return "", backend.Unsupported(backend.Match, "tag reference inside fold", n.Location,
				"%%%s cannot be referenced from a fold projection", o.Name)
		}
	case ir.Literal, ir.Variable:
		return g.value(key, op)
	default:
		return "", internal("unknown operand %T", op)
	}
}

func (g *gen) value(key operandKey, op ir.Operand) (string, error) {
	name, ok := g.names[key]
	if !ok {
		var err error
		if name, err = g.b.Name(op); err != nil {
			return "", internal("%v", err)
		}
		g.names[key] = name
	}
	return g.b.Ref(name), nil
}

func isCountFilter(e ir.Expr) bool {
	f, ok := ir.Subject(e)
	return ok && f.IsCount()
}

func internal(format string, args ...any) error {
	return &compileerr.InternalConsistencyError{Backend: string(backend.Match), Index: -1, Message: fmt.Sprintf(format, args...)}
}

var plainAlias = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func alias(name string) string {
	if plainAlias.MatchString(name) {
		return name
	}
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}
