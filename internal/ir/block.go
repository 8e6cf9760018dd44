package ir

import (
	"fmt"

	"github.com/roach88/gqlc/internal/schema"
)

// Block is one unit of the linearized traversal plan.
//
// This is a sealed interface: only types in this package implement it, so
// backend compilers can switch over the full set exhaustively.
//
// A valid block list starts with exactly one QueryRoot, every Traverse is
// closed by one Backtrack and every Fold by one Unfold, and the pairs never
// cross.
type Block interface {
	blockNode()
}

// QueryRoot starts the plan at every vertex of one type.
type QueryRoot struct {
	Location Location
}

// Traverse moves from From to To over an edge.
//
// Optional traversals keep the parent row when no neighbor exists; the
// outputs under To become null. Recurse, when set, is a Literal or Variable
// depth: the traversal then reaches every vertex within 0..depth hops,
// including the starting vertex itself.
type Traverse struct {
	Edge      string
	Field     string
	Direction schema.Direction
	Optional  bool
	Recurse   Operand
	From      Location
	To        Location
}

// Backtrack returns from a Traverse to its parent location.
type Backtrack struct {
	From Location
	To   Location
}

// Fold opens a region whose outputs are collected into one list per parent
// row instead of producing additional rows.
type Fold struct {
	Edge      string
	Field     string
	Direction schema.Direction
	From      Location
	To        Location
}

// Unfold closes a Fold region.
type Unfold struct {
	From Location
	To   Location
}

// Filter restricts the rows at Location.
type Filter struct {
	Location  Location
	Predicate Expr
}

// MarkTag names the value of Field at Location so later filters can refer
// to it.
type MarkTag struct {
	Name     string
	Location Location
	Field    string
	Type     schema.Type
}

// Output projects Field at Location under Alias. Seq is the declaration
// ordinal of the @output directive in the query text.
type Output struct {
	Location Location
	Field    string
	Alias    string
	Type     schema.Type
	Seq      int
}

func (QueryRoot) blockNode() {}
func (Traverse) blockNode()  {}
func (Backtrack) blockNode() {}
func (Fold) blockNode()      {}
func (Unfold) blockNode()    {}
func (Filter) blockNode()    {}
func (MarkTag) blockNode()   {}
func (Output) blockNode()    {}

// BlockKind returns the variant name of b.
func BlockKind(b Block) string {
	switch b.(type) {
	case QueryRoot:
		return "QueryRoot"
	case Traverse:
		return "Traverse"
	case Backtrack:
		return "Backtrack"
	case Fold:
		return "Fold"
	case Unfold:
		return "Unfold"
	case Filter:
		return "Filter"
	case MarkTag:
		return "MarkTag"
	case Output:
		return "Output"
	default:
		return fmt.Sprintf("%T", b)
	}
}

// IsCount reports whether the output projects the fold-count meta field.
func (o Output) IsCount() bool { return o.Field == schema.CountField }
