// Package sqlgen compiles IR blocks to SQL for SQLite and PostgreSQL.
//
// Every location gets one table alias (v<ID>). Required traversals become
// inner joins; an optional traversal and everything below it is joined as
// one parenthesized LEFT JOIN unit. Folds become correlated scalar
// subqueries that aggregate into a JSON array. Recursion is a WITH
// RECURSIVE CTE per recursing location. Rows are ordered by every
// non-folded primary key so results are deterministic.
package sqlgen

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
	backend.Register(backend.SQLite, &Compiler{d: sqliteDialect{}})
	backend.Register(backend.Postgres, &Compiler{d: postgresDialect{}})
}

// Compiler emits SQL in one dialect.
type Compiler struct {
	d dialect
}

// New returns the compiler for a relational backend.
func New(id backend.ID) (*Compiler, error) {
	switch id {
	case backend.SQLite:
		return &Compiler{d: sqliteDialect{}}, nil
	case backend.Postgres:
		return &Compiler{d: postgresDialect{}}, nil
	default:
		return nil, fmt.Errorf("sqlgen: %s is not a relational backend", id)
	}
}

// Compile implements backend.Compiler.
func (c *Compiler) Compile(blocks []ir.Block, s *schema.Schema, bind backend.Bindings) (*backend.CompilationResult, error) {
	id := c.d.id()
	tree, err := backend.BuildTree(string(id), blocks)
	if err != nil {
		return nil, err
	}
	g := &gen{
		d:     c.d,
		s:     s,
		tree:  tree,
		b:     backend.NewBinder(c.d.style(), bind),
		names: make(map[operandKey]string),
		edges: make(map[int]schema.Edge),
	}
	if err := g.check(); err != nil {
		return nil, err
	}
	text, err := g.query()
	if err != nil {
		return nil, err
	}
	return backend.NewResult(id, text, g.b.Parameters(), tree.Meta)
}

// operandKey identifies one operand of one filter. Filter -1 is the
// recursion depth of the location.
type operandKey struct {
	loc, filter, operand int
}

type gen struct {
	d     dialect
	s     *schema.Schema
	tree  *backend.Tree
	b     *backend.Binder
	names map[operandKey]string
	edges map[int]schema.Edge
}

func (g *gen) internal(format string, args ...any) error {
	return &compileerr.InternalConsistencyError{Backend: string(g.d.id()), Index: -1, Message: fmt.Sprintf(format, args...)}
}

// check resolves every edge and rejects what the relational model cannot
// express before any text is produced.
func (g *gen) check() error {
	for _, n := range g.tree.Root.Subtree() {
		if _, ok := g.s.Vertex(n.Location.Type); !ok {
			return g.internal("unknown vertex type %s at %s", n.Location.Type, n.Location)
		}
		for _, f := range n.Filters {
			if _, ok := ir.Subject(f); !ok {
				return g.internal("filter at %s has no field subject", n.Location)
			}
		}
		if n.Kind == backend.NodeRoot {
			continue
		}
		e, ok := g.s.Edge(n.Edge)
		if !ok {
			return g.internal("unknown edge %s at %s", n.Edge, n.Location)
		}
		if !e.SQL.Mapped() {
			return backend.Unsupported(g.d.id(), "edge without relational mapping", n.Location,
				"edge %s declares no sql columns", e.Name)
		}
		g.edges[n.Location.ID] = e
	}
	return nil
}

func (g *gen) query() (string, error) {
	var sb strings.Builder

	var ctes []string
	for _, n := range g.tree.Root.Subtree() {
		if n.Recurse == nil {
			continue
		}
		cte, err := g.recursion(n)
		if err != nil {
			return "", err
		}
		ctes = append(ctes, cte)
	}
	if len(ctes) > 0 {
		sb.WriteString("WITH RECURSIVE ")
		sb.WriteString(strings.Join(ctes, ",\n"))
		sb.WriteString("\n")
	}

	cols := make([]string, 0, len(g.tree.Outputs))
	for _, o := range g.tree.Outputs {
		col, err := g.column(o)
		if err != nil {
			return "", err
		}
		cols = append(cols, col+" AS "+quote(o.Alias))
	}
	sb.WriteString("SELECT\n  ")
	sb.WriteString(strings.Join(cols, ",\n  "))

	root := g.tree.Root
	sb.WriteString("\nFROM ")
	sb.WriteString(g.table(root) + " AS " + root.Name())
	for _, j := range g.joins(root) {
		sb.WriteString("\n")
		sb.WriteString(j)
	}

	where, err := g.where()
	if err != nil {
		return "", err
	}
	if len(where) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(where, "\n  AND "))
	}

	var order []string
	for _, n := range root.Subtree() {
		if !n.InFold {
			order = append(order, g.pk(n))
		}
	}
	sb.WriteString("\nORDER BY ")
	sb.WriteString(strings.Join(order, ", "))
	return sb.String(), nil
}

// column renders the projection of one output.
func (g *gen) column(o ir.Output) (string, error) {
	n := g.tree.Node(o.Location)
	if n == nil {
		return "", g.internal("output %s at unknown location %s", o.Alias, o.Location)
	}
	switch {
	case o.IsCount():
		return g.count(n)
	case n.InFold:
		f := n.FoldRoot()
		body, err := g.foldBody(f)
		if err != nil {
			return "", err
		}
		value := g.d.jsonElement(g.ref(o.Location, o.Field), o.Type)
		return "(SELECT " + g.d.jsonArray(value, g.foldOrder(f)) + " " + body + ")", nil
	default:
		return g.ref(o.Location, o.Field), nil
	}
}

func (g *gen) count(f *backend.Node) (string, error) {
	body, err := g.foldBody(f)
	if err != nil {
		return "", err
	}
	return "(SELECT COUNT(*) " + body + ")", nil
}

// foldBody renders FROM and WHERE of a correlated fold subquery. Count
// filters stay outside; they restrict the parent row.
func (g *gen) foldBody(f *backend.Node) (string, error) {
	start, cond, rest := g.hop(f)
	from := append([]string{start}, rest...)
	from = append(from, g.joins(f)...)
	conds := []string{cond}
	for _, n := range f.Subtree() {
		for i, e := range n.Filters {
			if isCountFilter(e) {
				continue
			}
			p, err := g.predicate(n, i, e, false)
			if err != nil {
				return "", err
			}
			conds = append(conds, p)
		}
	}
	return "FROM " + strings.Join(from, " ") + " WHERE " + strings.Join(conds, " AND "), nil
}

func (g *gen) foldOrder(f *backend.Node) string {
	var keys []string
	for _, n := range f.Subtree() {
		keys = append(keys, g.pk(n))
	}
	return strings.Join(keys, ", ")
}

// joins renders the traversals below n that are not folded.
func (g *gen) joins(n *backend.Node) []string {
	var out []string
	for _, c := range n.Children {
		if c.Kind == backend.NodeFold {
			continue
		}
		start, cond, rest := g.hop(c)
		inner := append(rest, g.joins(c)...)
		switch {
		case !c.Optional:
			out = append(out, "JOIN "+start+" ON "+cond)
			out = append(out, inner...)
		case len(inner) == 0:
			out = append(out, "LEFT JOIN "+start+" ON "+cond)
		default:
			out = append(out, "LEFT JOIN ("+start+" "+strings.Join(inner, " ")+") ON "+cond)
		}
	}
	return out
}

// hop describes the step from n.Parent to n: the first table expression,
// the condition linking it to the parent, and the joins that complete the
// step.
func (g *gen) hop(n *backend.Node) (start, cond string, rest []string) {
	e := g.edges[n.Location.ID]
	alias := n.Name()
	target := g.table(n) + " AS " + alias
	parentKey := g.pk(n.Parent)

	switch {
	case n.Recurse != nil:
		w := fmt.Sprintf("w%d", n.Location.ID)
		start = fmt.Sprintf("(SELECT DISTINCT root, node FROM r%d) AS %s", n.Location.ID, w)
		cond = w + ".root = " + parentKey
		rest = []string{"JOIN " + target + " ON " + g.pk(n) + " = " + w + ".node"}
	case e.SQL.Junction():
		j := fmt.Sprintf("j%d", n.Location.ID)
		from, to := junctionColumns(e, n.Direction)
		start = ident(e.SQL.Table) + " AS " + j
		cond = j + "." + from + " = " + parentKey
		rest = []string{"JOIN " + target + " ON " + g.pk(n) + " = " + j + "." + to}
	default:
		start = target
		cond = foreignKey(e, n.Direction, n.Parent.Name(), alias)
	}
	return start, cond, rest
}

// recursion renders the CTE enumerating (root, node, depth) for a
// recursing location. Depth 0 is the starting vertex itself.
func (g *gen) recursion(n *backend.Node) (string, error) {
	e := g.edges[n.Location.ID]
	r := fmt.Sprintf("r%d", n.Location.ID)
	table := g.table(n)
	pk := ident(g.s.PrimaryKey(n.Location.Type))

	depth, err := g.operand(operandKey{n.Location.ID, -1, 0}, n.Recurse)
	if err != nil {
		return "", err
	}

	var step string
	if e.SQL.Junction() {
		from, to := junctionColumns(e, n.Direction)
		step = fmt.Sprintf("SELECT %[1]s.root, j.%[2]s, %[1]s.depth + 1 FROM %[1]s JOIN %[3]s AS j ON j.%[4]s = %[1]s.node WHERE %[1]s.depth < %[5]s",
			r, to, ident(e.SQL.Table), from, depth)
	} else {
		step = fmt.Sprintf("SELECT %[1]s.root, c.%[2]s, %[1]s.depth + 1 FROM %[1]s JOIN %[3]s AS p ON p.%[2]s = %[1]s.node JOIN %[3]s AS c ON %[4]s WHERE %[1]s.depth < %[5]s",
			r, pk, table, foreignKey(e, n.Direction, "p", "c"), depth)
	}
	return fmt.Sprintf("%s(root, node, depth) AS (SELECT %s, %s, 0 FROM %s UNION %s)", r, pk, pk, table, step), nil
}

// where renders the outer filters in location order.
func (g *gen) where() ([]string, error) {
	var out []string
	for _, n := range g.tree.Root.Subtree() {
		for i, e := range n.Filters {
			if n.InFold && !(n.Kind == backend.NodeFold && isCountFilter(e)) {
				continue
			}
			p, err := g.predicate(n, i, e, true)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
	}
	return out, nil
}

// predicate renders filter i of n. A filter whose location may be absent,
// or that compares against a tag that may be absent, also passes when the
// vertex is missing.
func (g *gen) predicate(n *backend.Node, i int, e ir.Expr, outer bool) (string, error) {
	body, err := g.expr(n, i, e)
	if err != nil {
		return "", err
	}
	var guards []string
	seen := make(map[int]bool)
	if outer {
		owner := n
		if n.Kind == backend.NodeFold {
			owner = n.Parent
		}
		seen[owner.Location.ID] = true
		if owner.InOptional {
			guards = append(guards, g.pk(owner)+" IS NULL")
		}
	}
	for _, t := range ir.OptionalTags(e) {
		if seen[t.Location.ID] {
			continue
		}
		seen[t.Location.ID] = true
		if tn := g.tree.Node(t.Location); tn != nil {
			guards = append(guards, g.pk(tn)+" IS NULL")
		}
	}
	if len(guards) == 0 {
		return "(" + body + ")", nil
	}
	return "(" + body + " OR " + strings.Join(guards, " OR ") + ")", nil
}

func (g *gen) expr(n *backend.Node, i int, e ir.Expr) (string, error) {
	ops := ir.Operands(e)
	var firstErr error
	render := func(j int) string {
		s, err := g.operand(operandKey{n.Location.ID, i, j}, ops[j])
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
		l := render(0)
		out = l + " " + op + " " + render(1)
	case ir.Between:
		s := render(0)
		lo := render(1)
		out = s + " BETWEEN " + lo + " AND " + render(2)
	case ir.Membership:
		s := render(0)
		out = g.d.membership(s, render(1), x.Negated)
	case ir.StringMatch:
		out = g.d.stringMatch(x.Kind, render(0), func() string { return render(1) })
	case ir.ListContains:
		l := render(0)
		out = g.d.listContains(l, render(1), x.Negated)
	case ir.Intersects:
		l := render(0)
		out = g.d.intersects(l, render(1))
	case ir.NullCheck:
		out = render(0) + " IS NULL"
		if x.Negated {
			out = strings.TrimSuffix(out, " NULL") + " NOT NULL"
		}
	default:
		return "", g.internal("unknown predicate %T", e)
	}
	return out, firstErr
}

func (g *gen) operand(key operandKey, op ir.Operand) (string, error) {
	switch o := op.(type) {
	case ir.FieldRef:
		if o.IsCount() {
			f := g.tree.Node(o.Location)
			if f == nil || f.Kind != backend.NodeFold {
				return "", g.internal("count of %s outside a fold", o.Location)
			}
			return g.count(f)
		}
		return g.ref(o.Location, o.Field), nil
	case ir.TagRef:
		return g.ref(o.Location, o.Field), nil
	case ir.Literal, ir.Variable:
		name, ok := g.names[key]
		if !ok {
			var err error
			if name, err = g.b.Name(op); err != nil {
				return "", g.internal("%v", err)
			}
			g.names[key] = name
		}
		return g.b.Ref(name), nil
	default:
		return "", g.internal("unknown operand %T", op)
	}
}

func (g *gen) table(n *backend.Node) string { return ident(g.s.Table(n.Location.Type)) }

func (g *gen) pk(n *backend.Node) string {
	return n.Name() + "." + ident(g.s.PrimaryKey(n.Location.Type))
}

func (g *gen) ref(loc ir.Location, field string) string {
	return loc.Name() + "." + ident(g.s.Column(loc.Type, field))
}

func isCountFilter(e ir.Expr) bool {
	f, ok := ir.Subject(e)
	return ok && f.IsCount()
}

// junctionColumns returns the junction column matching the step's source
// and the one matching its target.
func junctionColumns(e schema.Edge, dir schema.Direction) (from, to string) {
	from, to = ident(e.SQL.FromColumn), ident(e.SQL.ToColumn)
	if dir == schema.In {
		from, to = to, from
	}
	return from, to
}

// foreignKey renders the join condition of a foreign-key edge between the
// aliases of the step's source and target.
func foreignKey(e schema.Edge, dir schema.Direction, source, target string) string {
	if dir == schema.In {
		return target + "." + ident(e.SQL.FromColumn) + " = " + source + "." + ident(e.SQL.ToColumn)
	}
	return source + "." + ident(e.SQL.FromColumn) + " = " + target + "." + ident(e.SQL.ToColumn)
}

var plainIdent = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ident quotes a schema-supplied name unless it is a plain lower-case
// identifier.
func ident(name string) string {
	if plainIdent.MatchString(name) {
		return name
	}
	return quote(name)
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
