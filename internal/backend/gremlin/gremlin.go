// Package gremlin compiles IR blocks to a TinkerPop 3 Gremlin-Groovy script.
//
// Each location is labelled with as('v<ID>') and every step re-anchors with
// select, so the script reads as a walk over the block list. Parameters are
// script bindings referenced by bare name.
package gremlin

import (
	"fmt"
	"strings"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/schema"
)

func init() {
	backend.Register(backend.Gremlin, New())
}

// Compiler emits Gremlin-Groovy.
type Compiler struct{}

// New returns a Gremlin compiler.
func New() *Compiler { return &Compiler{} }

// Compile implements backend.Compiler.
func (c *Compiler) Compile(blocks []ir.Block, s *schema.Schema, bind backend.Bindings) (*backend.CompilationResult, error) {
	tree, err := backend.BuildTree(string(backend.Gremlin), blocks)
	if err != nil {
		return nil, err
	}
	g := &gen{
		s:     s,
		tree:  tree,
		b:     backend.NewBinder(backend.BareName, bind),
		names: make(map[operandKey]string),
	}
	text, err := g.script()
	if err != nil {
		return nil, err
	}
	return backend.NewResult(backend.Gremlin, text, g.b.Parameters(), tree.Meta)
}

type operandKey struct {
	loc, filter, operand int
}

type gen struct {
	s     *schema.Schema
	tree  *backend.Tree
	b     *backend.Binder
	names map[operandKey]string
	// deferred holds guarded filters emitted after every traversal.
	deferred []string
}

var compareP = map[ir.CompareOp]string{
	ir.OpEq: "eq",
	ir.OpNe: "neq",
	ir.OpLt: "lt",
	ir.OpLe: "lte",
	ir.OpGt: "gt",
	ir.OpGe: "gte",
}

var textP = map[ir.MatchKind]string{
	ir.MatchSubstring: "containing",
	ir.MatchPrefix:    "startingWith",
	ir.MatchSuffix:    "endingWith",
}

func (g *gen) script() (string, error) {
	root := g.tree.Root
	steps := []string{"g.V().hasLabel(" + quote(g.s.Label(root.Location.Type)) + ").as(" + quote(root.Name()) + ")"}
	body, err := g.visit(root)
	if err != nil {
		return "", err
	}
	steps = append(steps, body...)
	steps = append(steps, g.deferred...)

	keys := make([]string, len(g.tree.Outputs))
	for i, o := range g.tree.Outputs {
		keys[i] = quote(o.Alias)
	}
	steps = append(steps, ".project("+strings.Join(keys, ", ")+")")
	for _, o := range g.tree.Outputs {
		by, err := g.projection(o)
		if err != nil {
			return "", err
		}
		steps = append(steps, ".by("+by+")")
	}
	return strings.Join(steps, "\n  "), nil
}

// visit returns the steps for the filters of n and the traversals below
// it. The traverser is positioned on n when the steps start.
func (g *gen) visit(n *backend.Node) ([]string, error) {
	var steps []string
	for i, e := range n.Filters {
		step, err := g.filterStep(n, i, e)
		if err != nil {
			return nil, err
		}
		if guards := g.guards(n, e); len(guards) > 0 {
			g.deferred = append(g.deferred, guarded(guards, "__.select("+quote(n.Name())+")"+step))
			continue
		}
		steps = append(steps, step)
	}

	for _, c := range n.Children {
		if c.Kind == backend.NodeFold {
			for i, e := range c.Filters {
				if !isCountFilter(e) {
					continue
				}
				step, err := g.countFilter(c, i, e)
				if err != nil {
					return nil, err
				}
				if guards := g.guards(n, e); len(guards) > 0 {
					g.deferred = append(g.deferred, guarded(guards, "__"+step))
					continue
				}
				steps = append(steps, step)
			}
			continue
		}

		chain := ".select(" + quote(n.Name()) + ")"
		hop, err := g.hop(c)
		if err != nil {
			return nil, err
		}
		chain += hop + ".as(" + quote(c.Name()) + ")"
		if c.Recurse != nil {
			chain += ".dedup(" + strings.Join(g.bound(c), ", ") + ")"
		}
		inner, err := g.visit(c)
		if err != nil {
			return nil, err
		}
		chain += strings.Join(inner, "")
		if c.Optional {
			chain = ".optional(__" + chain + ")"
		}
		steps = append(steps, chain)
	}
	return steps, nil
}

// hop moves from n.Parent to n.
func (g *gen) hop(n *backend.Node) (string, error) {
	dir := "out"
	if n.Direction == schema.In {
		dir = "in"
	}
	step := "." + dir + "(" + quote(g.s.EdgeLabel(n.Edge)) + ")"
	if n.Recurse != nil {
		times, err := g.value(operandKey{n.Location.ID, -1, 0}, n.Recurse)
		if err != nil {
			return "", err
		}
		step = ".emit().repeat(__" + step + ").times(" + times + ")"
	}
	return step + ".hasLabel(" + quote(g.s.Label(n.Location.Type)) + ")", nil
}

// bound lists the labels certainly present when n is reached, n included.
// A recursion deduplicates on them so each binding row appears once.
func (g *gen) bound(n *backend.Node) []string {
	ancestors := make(map[*backend.Node]bool)
	for cur := n; cur != nil; cur = cur.Parent {
		ancestors[cur] = true
	}
	var labels []string
	for _, m := range g.tree.Nodes[:n.Location.ID+1] {
		if m.InFold || (m.InOptional && !ancestors[m]) {
			continue
		}
		labels = append(labels, quote(m.Name()))
	}
	return labels
}

// guards returns the absence checks that let a filter at owner pass when
// owner or a tagged location may be missing. owner is nil inside folds,
// where the filtered element always exists.
func (g *gen) guards(owner *backend.Node, e ir.Expr) []string {
	var out []string
	seen := make(map[int]bool)
	if owner != nil {
		seen[owner.Location.ID] = true
		if owner.InOptional {
			out = append(out, "__.not(__.select("+quote(owner.Name())+"))")
		}
	}
	for _, t := range ir.OptionalTags(e) {
		if seen[t.Location.ID] {
			continue
		}
		seen[t.Location.ID] = true
		out = append(out, "__.not(__.select("+quote(t.Location.Name())+"))")
	}
	return out
}

func guarded(guards []string, check string) string {
	return ".where(__.or(" + strings.Join(guards, ", ") + ", " + check + "))"
}

// filterStep renders a filter as a step applied to the element of n.
func (g *gen) filterStep(n *backend.Node, i int, e ir.Expr) (string, error) {
	subj, ok := ir.Subject(e)
	if !ok {
		return "", internal("filter at %s has no field subject", n.Location)
	}
	key := quote(g.s.PropertyName(subj.Location.Type, subj.Field))
	val := func(j int, op ir.Operand) (string, error) {
		return g.value(operandKey{n.Location.ID, i, j}, op)
	}

	for _, op := range ir.Operands(e) {
		if _, isTag := op.(ir.TagRef); isTag {
			if _, isCmp := e.(ir.Compare); !isCmp {
				return "", backend.Unsupported(backend.Gremlin, "tag reference in non-comparison filter", n.Location,
					"%s", ir.FormatExpr(e))
			}
		}
	}

	switch x := e.(type) {
	case ir.Compare:
		if t, ok := x.Right.(ir.TagRef); ok {
			tagKey := quote(g.s.PropertyName(t.Location.Type, t.Field))
			return fmt.Sprintf(".where(P.%s(%s)).by(%s).by(%s)", compareP[x.Op], quote(t.Location.Name()), key, tagKey), nil
		}
		v, err := val(1, x.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(".has(%s, P.%s(%s))", key, compareP[x.Op], v), nil
	case ir.Between:
		lo, err := val(1, x.Low)
		if err != nil {
			return "", err
		}
		hi, err := val(2, x.High)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(".has(%s, P.gte(%s).and(P.lte(%s)))", key, lo, hi), nil
	case ir.Membership:
		v, err := val(1, x.Collection)
		if err != nil {
			return "", err
		}
		p := "within"
		if x.Negated {
			p = "without"
		}
		return fmt.Sprintf(".has(%s, P.%s(%s))", key, p, v), nil
	case ir.StringMatch:
		v, err := val(1, x.Pattern)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(".has(%s, TextP.%s(%s))", key, textP[x.Kind], v), nil
	case ir.ListContains:
		v, err := val(1, x.Element)
		if err != nil {
			return "", err
		}
		if x.Negated {
			return fmt.Sprintf(".not(__.has(%s, %s))", key, v), nil
		}
		return fmt.Sprintf(".has(%s, %s)", key, v), nil
	case ir.Intersects:
		v, err := val(1, x.Other)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(".has(%s, P.within(%s))", key, v), nil
	case ir.NullCheck:
		if x.Negated {
			return ".has(" + key + ")", nil
		}
		return ".hasNot(" + key + ")", nil
	default:
		return "", internal("unknown predicate %T", e)
	}
}

// countFilter renders a filter on the fold-count meta field of f as a step
// applied at f's parent.
func (g *gen) countFilter(f *backend.Node, i int, e ir.Expr) (string, error) {
	chain, err := g.foldChain(f)
	if err != nil {
		return "", err
	}
	val := func(j int, op ir.Operand) (string, error) {
		if _, isTag := op.(ir.TagRef); isTag {
			return "", backend.Unsupported(backend.Gremlin, "tag reference in count filter", f.Location, "%s", ir.FormatExpr(e))
		}
		return g.value(operandKey{f.Location.ID, i, j}, op)
	}
	var pred string
	switch x := e.(type) {
	case ir.Compare:
		v, err := val(1, x.Right)
		if err != nil {
			return "", err
		}
		pred = "P." + compareP[x.Op] + "(" + v + ")"
	case ir.Between:
		lo, err := val(1, x.Low)
		if err != nil {
			return "", err
		}
		hi, err := val(2, x.High)
		if err != nil {
			return "", err
		}
		pred = "P.gte(" + lo + ").and(P.lte(" + hi + "))"
	default:
		return "", backend.Unsupported(backend.Gremlin, "count filter", f.Location, "%s", ir.FormatExpr(e))
	}
	return ".where(" + chain + ".count().is(" + pred + "))", nil
}

// foldChain walks from the fold's parent to the node holding its outputs,
// applying every fold filter on the way. Branches off that path become
// existence checks.
func (g *gen) foldChain(f *backend.Node) (string, error) {
	target := g.tree.FoldOutputNode(f)
	onPath := make(map[*backend.Node]bool)
	for cur := target; cur != f.Parent; cur = cur.Parent {
		onPath[cur] = true
	}
	chain, err := g.foldWalk(f, onPath)
	if err != nil {
		return "", err
	}
	return "__.select(" + quote(f.Parent.Name()) + ")" + chain, nil
}

func (g *gen) foldWalk(n *backend.Node, onPath map[*backend.Node]bool) (string, error) {
	hop, err := g.hop(n)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(hop)
	for i, e := range n.Filters {
		if isCountFilter(e) {
			continue
		}
		step, err := g.filterStep(n, i, e)
		if err != nil {
			return "", err
		}
		if guards := g.guards(nil, e); len(guards) > 0 {
			step = guarded(guards, "__.identity()"+step)
		}
		sb.WriteString(step)
	}
	var next *backend.Node
	for _, c := range n.Children {
		if onPath[c] {
			next = c
			continue
		}
		branch, err := g.foldWalk(c, onPath)
		if err != nil {
			return "", err
		}
		sb.WriteString(".where(__" + branch + ")")
	}
	if next != nil {
		rest, err := g.foldWalk(next, onPath)
		if err != nil {
			return "", err
		}
		sb.WriteString(rest)
	}
	return sb.String(), nil
}

func (g *gen) projection(o ir.Output) (string, error) {
	n := g.tree.Node(o.Location)
	if n == nil {
		return "", internal("output %s at unknown location %s", o.Alias, o.Location)
	}
	switch {
	case o.IsCount():
		chain, err := g.foldChain(n)
		if err != nil {
			return "", err
		}
		return chain + ".count()", nil
	case n.InFold:
		chain, err := g.foldChain(n.FoldRoot())
		if err != nil {
			return "", err
		}
		return chain + ".order().by(T.id).values(" + quote(g.s.PropertyName(n.Location.Type, o.Field)) + ").fold()", nil
	}
	value := "__.select(" + quote(n.Name()) + ").values(" + quote(g.s.PropertyName(n.Location.Type, o.Field)) + ")"
	if n.InOptional {
		return "__.coalesce(" + value + ", __.constant(null))", nil
	}
	return value, nil
}

func (g *gen) value(key operandKey, op ir.Operand) (string, error) {
	switch op.(type) {
	case ir.Literal, ir.Variable:
	default:
		return "", internal("operand %T cannot be bound", op)
	}
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
	return &compileerr.InternalConsistencyError{Backend: string(backend.Gremlin), Index: -1, Message: fmt.Sprintf(format, args...)}
}

// quote renders a Groovy single-quoted string.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
