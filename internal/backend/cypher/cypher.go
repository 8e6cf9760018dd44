// Package cypher compiles IR blocks to openCypher for Neo4j 5.
//
// Required traversals are MATCH clauses. An optional traversal and the
// required traversals below it form one OPTIONAL MATCH, so the subtree is
// present or absent as a whole. Folds are CALL subqueries that collect in
// element-id order. All filters are applied in one WITH * WHERE after the
// patterns, guarded for vertices that may be absent.
package cypher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/schema"
)

func init() {
	backend.Register(backend.Cypher, New())
}

// Compiler emits Cypher.
type Compiler struct{}

// New returns a Cypher compiler.
func New() *Compiler { return &Compiler{} }

// Compile implements backend.Compiler.
func (c *Compiler) Compile(blocks []ir.Block, s *schema.Schema, bind backend.Bindings) (*backend.CompilationResult, error) {
	tree, err := backend.BuildTree(string(backend.Cypher), blocks)
	if err != nil {
		return nil, err
	}
	g := &gen{
		s:     s,
		tree:  tree,
		bind:  bind,
		b:     backend.NewBinder(backend.DollarName, bind),
		names: make(map[operandKey]string),
	}
	text, err := g.query()
	if err != nil {
		return nil, err
	}
	return backend.NewResult(backend.Cypher, text, g.b.Parameters(), tree.Meta)
}

type operandKey struct {
	loc, filter, operand int
}

type gen struct {
	s     *schema.Schema
	tree  *backend.Tree
	bind  backend.Bindings
	b     *backend.Binder
	names map[operandKey]string
	// bound lists the pattern variables introduced so far.
	bound   []string
	clauses []string
}

func (g *gen) query() (string, error) {
	root := g.tree.Root
	g.clauses = append(g.clauses, "MATCH "+g.node(root))
	g.bound = append(g.bound, root.Name())
	if err := g.matches(root); err != nil {
		return "", err
	}

	for _, n := range root.Subtree() {
		if n.Kind != backend.NodeFold {
			continue
		}
		call, err := g.fold(n)
		if err != nil {
			return "", err
		}
		g.clauses = append(g.clauses, call)
	}

	var where []string
	for _, n := range root.Subtree() {
		for i, e := range n.Filters {
			owner := n
			switch {
			case n.Kind == backend.NodeFold && isCountFilter(e):
				owner = n.Parent
			case n.InFold:
				continue
			}
			p, err := g.predicate(owner, n, i, e, true)
			if err != nil {
				return "", err
			}
			where = append(where, p)
		}
	}
	if len(where) > 0 {
		g.clauses = append(g.clauses, "WITH *\nWHERE "+strings.Join(where, "\n  AND "))
	}

	cols := make([]string, 0, len(g.tree.Outputs))
	for _, o := range g.tree.Outputs {
		cols = append(cols, g.projection(o)+" AS "+ident(o.Alias))
	}
	g.clauses = append(g.clauses, "RETURN "+strings.Join(cols, ", "))

	var order []string
	for _, n := range root.Subtree() {
		if !n.InFold {
			order = append(order, "elementId("+n.Name()+")")
		}
	}
	g.clauses = append(g.clauses, "ORDER BY "+strings.Join(order, ", "))
	return strings.Join(g.clauses, "\n"), nil
}

// matches emits the pattern clauses for the traversals below n.
func (g *gen) matches(n *backend.Node) error {
	for _, c := range n.Children {
		if c.Kind == backend.NodeFold {
			continue
		}
		if !c.Optional {
			pat, err := g.rel(c)
			if err != nil {
				return err
			}
			g.clauses = append(g.clauses, "MATCH "+pat)
			g.bound = append(g.bound, c.Name())
			if c.Recurse != nil {
				g.clauses = append(g.clauses, "WITH DISTINCT "+strings.Join(g.bound, ", "))
			}
			if err := g.matches(c); err != nil {
				return err
			}
			continue
		}

		unit := g.unit(c)
		pats := make([]string, 0, len(unit))
		for _, u := range unit {
			if u.Recurse != nil {
				return backend.Unsupported(backend.Cypher, "recursion inside optional scope", u.Location,
					"variable-length optional patterns would duplicate rows")
			}
			pat, err := g.rel(u)
			if err != nil {
				return err
			}
			pats = append(pats, pat)
			g.bound = append(g.bound, u.Name())
		}
		g.clauses = append(g.clauses, "OPTIONAL MATCH "+strings.Join(pats, ", "))
		for _, u := range unit {
			for _, cc := range u.Children {
				if cc.Kind == backend.NodeTraverse && cc.Optional {
					if err := g.matchesOf(u, cc); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// matchesOf handles one optional child cc of u by treating it as the only
// child.
func (g *gen) matchesOf(u, cc *backend.Node) error {
	shadow := *u
	shadow.Children = []*backend.Node{cc}
	return g.matches(&shadow)
}

// unit collects c and the required traversals below it.
func (g *gen) unit(c *backend.Node) []*backend.Node {
	out := []*backend.Node{c}
	for _, cc := range c.Children {
		if cc.Kind == backend.NodeTraverse && !cc.Optional {
			out = append(out, g.unit(cc)...)
		}
	}
	return out
}

func (g *gen) node(n *backend.Node) string {
	return "(" + n.Name() + ":" + ident(g.s.Label(n.Location.Type)) + ")"
}

// rel renders the relationship pattern from n.Parent to n.
func (g *gen) rel(n *backend.Node) (string, error) {
	r := "[:" + ident(g.s.EdgeLabel(n.Edge))
	if n.Recurse != nil {
		depth, err := g.depth(n)
		if err != nil {
			return "", err
		}
		r += "*0.." + strconv.FormatInt(depth, 10)
	}
	r += "]"
	if n.Direction == schema.In {
		return "(" + n.Parent.Name() + ")<-" + r + "-" + g.node(n), nil
	}
	return "(" + n.Parent.Name() + ")-" + r + "->" + g.node(n), nil
}

// depth resolves a recursion bound at compile time. Cypher cannot take a
// variable-length bound from a parameter, so the value is written into the
// pattern. The operand is still declared as a bound parameter carrying that
// value, keeping the parameter list and Inputs identical to other backends.
func (g *gen) depth(n *backend.Node) (int64, error) {
	v, err := g.resolveDepth(n)
	if err != nil {
		return 0, err
	}
	key := operandKey{n.Location.ID, -1, 0}
	if _, ok := g.names[key]; !ok {
		name, err := g.b.Name(n.Recurse)
		if err != nil {
			return 0, internal("%v", err)
		}
		g.names[key] = name
	}
	return v, nil
}

func (g *gen) resolveDepth(n *backend.Node) (int64, error) {
	switch d := n.Recurse.(type) {
	case ir.Literal:
		if v, ok := d.Value.(ir.Int); ok {
			return int64(v), nil
		}
	case ir.Variable:
		v, ok := g.bind[d.Name]
		if !ok {
			return 0, backend.Unsupported(backend.Cypher, "unbound recursion depth", n.Location,
				"bind $%s at compile time", d.Name)
		}
		if i, ok := toInt(v); ok {
			return i, nil
		}
		return 0, backend.Unsupported(backend.Cypher, "recursion depth", n.Location, "$%s is %T, want an integer", d.Name, v)
	}
	return 0, internal("recursion depth %T at %s", n.Recurse, n.Location)
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint64:
		return int64(x), true
	}
	return 0, false
}

// fold renders the CALL subquery of fold f. It returns one collected list
// per output and the element count.
func (g *gen) fold(f *backend.Node) (string, error) {
	imports := []string{f.Parent.Name()}
	seen := map[string]bool{f.Parent.Name(): true}
	var pats, conds []string
	for _, n := range f.Subtree() {
		pat, err := g.rel(n)
		if err != nil {
			return "", err
		}
		pats = append(pats, pat)
		for i, e := range n.Filters {
			if isCountFilter(e) {
				continue
			}
			for _, op := range ir.Operands(e) {
				if t, ok := op.(ir.TagRef); ok && !seen[t.Location.Name()] {
					seen[t.Location.Name()] = true
					imports = append(imports, t.Location.Name())
				}
			}
			p, err := g.predicate(nil, n, i, e, false)
			if err != nil {
				return "", err
			}
			conds = append(conds, p)
		}
	}

	var sb strings.Builder
	sb.WriteString("CALL {\n  WITH " + strings.Join(imports, ", "))
	sb.WriteString("\n  OPTIONAL MATCH " + strings.Join(pats, ", "))
	if len(conds) > 0 {
		sb.WriteString("\n  WHERE " + strings.Join(conds, " AND "))
	}
	var vars, keys []string
	for _, n := range f.Subtree() {
		vars = append(vars, n.Name())
		keys = append(keys, "elementId("+n.Name()+")")
	}
	sb.WriteString("\n  WITH " + strings.Join(vars, ", ") + " ORDER BY " + strings.Join(keys, ", "))

	var rets []string
	for _, o := range g.tree.Outputs {
		n := g.tree.Node(o.Location)
		if n == nil || !n.InFold || n.FoldRoot() != f || o.IsCount() {
			continue
		}
		prop := g.s.PropertyName(n.Location.Type, o.Field)
		rets = append(rets, "collect("+n.Name()+"."+ident(prop)+") AS "+foldVar(f, strconv.Itoa(o.Seq)))
	}
	rets = append(rets, "count("+g.tree.FoldOutputNode(f).Name()+") AS "+foldVar(f, "count"))
	sb.WriteString("\n  RETURN " + strings.Join(rets, ", ") + "\n}")
	return sb.String(), nil
}

func foldVar(f *backend.Node, suffix string) string {
	return "fold" + strconv.Itoa(f.Location.ID) + "_" + suffix
}

func (g *gen) projection(o ir.Output) string {
	n := g.tree.Node(o.Location)
	switch {
	case o.IsCount():
		return foldVar(n, "count")
	case n.InFold:
		return foldVar(n.FoldRoot(), strconv.Itoa(o.Seq))
	default:
		return n.Name() + "." + ident(g.s.PropertyName(n.Location.Type, o.Field))
	}
}

// predicate renders filter i of n. When outer is set, owner's absence and
// the absence of optional tags make it pass.
func (g *gen) predicate(owner, n *backend.Node, i int, e ir.Expr, outer bool) (string, error) {
	body, err := g.expr(n, i, e)
	if err != nil {
		return "", err
	}
	var guards []string
	seen := make(map[int]bool)
	if outer && owner != nil {
		seen[owner.Location.ID] = true
		if owner.InOptional {
			guards = append(guards, owner.Name()+" IS NULL")
		}
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
		out = render(0) + " " + op + " " + render(1)
	case ir.Between:
		s := render(0)
		out = render(1) + " <= " + s + " <= " + render(2)
	case ir.Membership:
		out = render(0) + " IN " + render(1)
		if x.Negated {
			out = "NOT " + out
		}
	case ir.StringMatch:
		kw := map[ir.MatchKind]string{
			ir.MatchSubstring: "CONTAINS",
			ir.MatchPrefix:    "STARTS WITH",
			ir.MatchSuffix:    "ENDS WITH",
		}[x.Kind]
		out = render(0) + " " + kw + " " + render(1)
	case ir.ListContains:
		l := render(0)
		out = render(1) + " IN " + l
		if x.Negated {
			out = "NOT " + out
		}
	case ir.Intersects:
		out = "any(x IN " + render(0) + " WHERE x IN " + render(1) + ")"
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

func (g *gen) operand(key operandKey, op ir.Operand) (string, error) {
	switch o := op.(type) {
	case ir.FieldRef:
		if o.IsCount() {
			return "fold" + strconv.Itoa(o.Location.ID) + "_count", nil
		}
		return o.Location.Name() + "." + ident(g.s.PropertyName(o.Location.Type, o.Field)), nil
	case ir.TagRef:
		return o.Location.Name() + "." + ident(g.s.PropertyName(o.Location.Type, o.Field)), nil
	case ir.Literal, ir.Variable:
		name, ok := g.names[key]
		if !ok {
			var err error
			if name, err = g.b.Name(op); err != nil {
				return "", internal("%v", err)
			}
			g.names[key] = name
		}
		return g.b.Ref(name), nil
	default:
		return "", internal("unknown operand %T", op)
	}
}

func isCountFilter(e ir.Expr) bool {
	f, ok := ir.Subject(e)
	return ok && f.IsCount()
}

func internal(format string, args ...any) error {
	return &compileerr.InternalConsistencyError{Backend: string(backend.Cypher), Index: -1, Message: fmt.Sprintf(format, args...)}
}

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ident backtick-quotes a label, key or alias unless it is a plain
// identifier.
func ident(name string) string {
	if plainIdent.MatchString(name) {
		return name
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
