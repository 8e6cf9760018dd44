// Package irbuild lowers a validated query into the linear IR block list.
package irbuild

import (
	"errors"
	"fmt"

	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/query"
)

// context is the traversal state of one location. It is passed by value so
// a child can never leak state back into its parent.
type context struct {
	location   ir.Location
	inFold     bool
	inOptional bool
	depth      int
}

type builder struct {
	q      *query.Query
	limits ir.Limits
	blocks []ir.Block
	nextID int
	tags   map[string]ir.TagRef // tags whose MarkTag has been emitted
}

// Build lowers q into blocks. Each location emits its MarkTags, then its
// Filters, then its Outputs, then its edges in declaration order. Location
// IDs follow depth-first order, root first.
//
// Errors are fail-fast: *compileerr.IRBuildError for forward tag
// references and unresolvable operands, *compileerr.ResourceLimitError when
// a ceiling in limits is exceeded.
func Build(q *query.Query, limits ir.Limits) ([]ir.Block, error) {
	if q == nil {
		return nil, errors.New("irbuild: nil query")
	}
	b := &builder{
		q:      q,
		limits: limits.WithDefaults(),
		nextID: 1,
		tags:   make(map[string]ir.TagRef),
	}

	root := ir.RootLocation(q.RootType)
	if err := b.emit(ir.QueryRoot{Location: root}); err != nil {
		return nil, err
	}
	if err := b.location(q.Selections, context{location: root}); err != nil {
		return nil, err
	}
	if err := ir.CheckNesting("irbuild", b.blocks); err != nil {
		return nil, err
	}
	return b.blocks, nil
}

func (b *builder) emit(blk ir.Block) error {
	if len(b.blocks) >= b.limits.MaxBlocks {
		return &compileerr.ResourceLimitError{
			Limit: compileerr.LimitBlocks,
			Value: len(b.blocks) + 1,
			Max:   b.limits.MaxBlocks,
		}
	}
	b.blocks = append(b.blocks, blk)
	return nil
}

func (b *builder) location(sels []query.Selection, ctx context) error {
	var scalars []*query.ScalarField
	var edges []*query.EdgeField
	for _, sel := range sels {
		switch s := sel.(type) {
		case *query.ScalarField:
			scalars = append(scalars, s)
		case *query.EdgeField:
			edges = append(edges, s)
		default:
			return &compileerr.IRBuildError{
				Code:     compileerr.CodeUnresolvedOperand,
				Location: ctx.location.String(),
				Message:  fmt.Sprintf("unexpected selection %T", sel),
			}
		}
	}

	for _, f := range scalars {
		if f.Tag == nil {
			continue
		}
		if ctx.inFold {
			return &compileerr.IRBuildError{
				Code:     compileerr.CodeUnresolvedOperand,
				Location: ctx.location.String(),
				Message:  fmt.Sprintf("tag %%%s cannot be defined inside a fold", f.Tag.Name),
				Pos:      f.Tag.Pos,
			}
		}
		ref := ir.TagRef{
			Name:     f.Tag.Name,
			Location: ctx.location,
			Field:    f.Name,
			Type:     f.Type,
			Optional: ctx.inOptional,
		}
		if err := b.emit(ir.MarkTag{Name: ref.Name, Location: ref.Location, Field: ref.Field, Type: ref.Type}); err != nil {
			return err
		}
		b.tags[ref.Name] = ref
	}

	for _, f := range scalars {
		subject := ir.FieldRef{Location: ctx.location, Field: f.Name, Type: f.Type}
		for _, fd := range f.Filters {
			args := make([]ir.Operand, len(fd.Args))
			for i, a := range fd.Args {
				op, err := b.operand(a, ctx)
				if err != nil {
					return err
				}
				args[i] = op
			}
			if err := b.emit(ir.Filter{Location: ctx.location, Predicate: fd.Op.Lower(subject, args)}); err != nil {
				return err
			}
		}
	}

	for _, f := range scalars {
		if f.Output == nil {
			continue
		}
		out := ir.Output{
			Location: ctx.location,
			Field:    f.Name,
			Alias:    f.Output.Alias,
			Type:     f.Type,
			Seq:      f.Output.Seq,
		}
		if err := b.emit(out); err != nil {
			return err
		}
	}

	for _, e := range edges {
		if err := b.edge(e, ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) edge(e *query.EdgeField, ctx context) error {
	depth := ctx.depth + 1
	if depth > b.limits.MaxTraversalDepth {
		return &compileerr.ResourceLimitError{
			Limit: compileerr.LimitTraversalDepth,
			Value: depth,
			Max:   b.limits.MaxTraversalDepth,
			Pos:   e.Pos,
		}
	}

	to := ctx.location.Child(b.nextID, e.Name, e.Traversal.Target)
	b.nextID++
	tr := e.Traversal

	if e.Fold != nil {
		open := ir.Fold{Edge: tr.Edge.Name, Field: e.Name, Direction: tr.Direction, From: ctx.location, To: to}
		if err := b.emit(open); err != nil {
			return err
		}
		child := context{location: to, inFold: true, inOptional: ctx.inOptional, depth: depth}
		if err := b.location(e.Selections, child); err != nil {
			return err
		}
		return b.emit(ir.Unfold{From: to, To: ctx.location})
	}

	step := ir.Traverse{
		Edge:      tr.Edge.Name,
		Field:     e.Name,
		Direction: tr.Direction,
		Optional:  e.Optional != nil,
		From:      ctx.location,
		To:        to,
	}
	if e.Recurse != nil {
		depthOp, err := b.recurseDepth(e, ctx)
		if err != nil {
			return err
		}
		step.Recurse = depthOp
	}
	if err := b.emit(step); err != nil {
		return err
	}
	child := context{
		location:   to,
		inFold:     ctx.inFold,
		inOptional: ctx.inOptional || step.Optional,
		depth:      depth,
	}
	if err := b.location(e.Selections, child); err != nil {
		return err
	}
	return b.emit(ir.Backtrack{From: to, To: ctx.location})
}

func (b *builder) recurseDepth(e *query.EdgeField, ctx context) (ir.Operand, error) {
	d := e.Recurse.Depth
	if d.Kind == query.ArgLiteral {
		n, ok := d.Literal.(ir.Int)
		if !ok {
			return nil, &compileerr.IRBuildError{
				Code:     compileerr.CodeUnresolvedOperand,
				Location: ctx.location.String(),
				Message:  fmt.Sprintf("recursion depth %s is not an integer", ir.FormatValue(d.Literal)),
				Pos:      d.Pos,
			}
		}
		if int64(n) > int64(b.limits.MaxRecurseDepth) {
			return nil, &compileerr.ResourceLimitError{
				Limit: compileerr.LimitRecurseDepth,
				Value: int(n),
				Max:   b.limits.MaxRecurseDepth,
				Pos:   d.Pos,
			}
		}
	}
	return b.operand(d, ctx)
}

// operand resolves a directive argument to an IR operand.
func (b *builder) operand(a query.Arg, ctx context) (ir.Operand, error) {
	switch a.Kind {
	case query.ArgLiteral:
		if a.Literal == nil {
			break
		}
		return ir.Literal{Value: a.Literal, Type: a.Type}, nil
	case query.ArgVariable:
		t, ok := b.q.Params[a.Name]
		if !ok {
			break
		}
		return ir.Variable{Name: a.Name, Type: t}, nil
	case query.ArgTag:
		ref, ok := b.tags[a.Name]
		if !ok {
			return nil, &compileerr.IRBuildError{
				Code:     compileerr.CodeForwardTag,
				Location: ctx.location.String(),
				Message:  fmt.Sprintf("tag %%%s is used before the field that defines it", a.Name),
				Pos:      a.Pos,
			}
		}
		return ref, nil
	}
	return nil, &compileerr.IRBuildError{
		Code:     compileerr.CodeUnresolvedOperand,
		Location: ctx.location.String(),
		Message:  fmt.Sprintf("cannot resolve argument %s", describeArg(a)),
		Pos:      a.Pos,
	}
}

func describeArg(a query.Arg) string {
	switch a.Kind {
	case query.ArgVariable:
		return "$" + a.Name
	case query.ArgTag:
		return "%" + a.Name
	}
	if a.Type.IsZero() {
		return "literal"
	}
	return "literal of type " + a.Type.String()
}
