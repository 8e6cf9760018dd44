package backend

import (
	"fmt"

	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/schema"
)

// NodeKind says how a location was reached.
type NodeKind int

const (
	NodeRoot NodeKind = iota
	NodeTraverse
	NodeFold
)

func (k NodeKind) String() string {
	switch k {
	case NodeRoot:
		return "root"
	case NodeTraverse:
		return "traverse"
	default:
		return "fold"
	}
}

// Node is one location of a compiled plan with the blocks that belong to
// it. Children keep block order.
type Node struct {
	Location  ir.Location
	Kind      NodeKind
	Parent    *Node
	Edge      string
	Field     string
	Direction schema.Direction
	// Optional is the @optional flag of the edge reaching this node.
	Optional bool
	// InOptional is set when this node or any ancestor traversal is
	// optional: the vertex may be absent for a result row.
	InOptional bool
	// InFold is set for a fold target and everything below it.
	InFold  bool
	Recurse ir.Operand

	Tags     []ir.MarkTag
	Filters  []ir.Expr
	Outputs  []ir.Output
	Children []*Node
}

// Name is the backend identifier of the node's location.
func (n *Node) Name() string { return n.Location.Name() }

// FoldRoot returns the fold target n sits under, or nil.
func (n *Node) FoldRoot() *Node {
	var root *Node
	for cur := n; cur != nil && cur.InFold; cur = cur.Parent {
		root = cur
	}
	return root
}

// Subtree returns n and its descendants in depth-first order.
func (n *Node) Subtree() []*Node {
	out := []*Node{n}
	for _, c := range n.Children {
		out = append(out, c.Subtree()...)
	}
	return out
}

// PathFrom returns the nodes from ancestor (exclusive) down to n
// (inclusive), or nil when ancestor is not above n.
func (n *Node) PathFrom(ancestor *Node) []*Node {
	var rev []*Node
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == ancestor {
			out := make([]*Node, len(rev))
			for i := range rev {
				out[i] = rev[len(rev)-1-i]
			}
			return out
		}
		rev = append(rev, cur)
	}
	return nil
}

// Tree is a block list regrouped by location.
type Tree struct {
	Root *Node
	// Nodes is indexed by location ID; IDs are dense and depth-first.
	Nodes []*Node
	// Outputs are the Output blocks in declaration order.
	Outputs []ir.Output
	// Meta is ir.OutputMetadata of the same blocks.
	Meta []ir.OutputInfo
}

// Node returns the node of loc.
func (t *Tree) Node(loc ir.Location) *Node {
	if loc.ID < 0 || loc.ID >= len(t.Nodes) {
		return nil
	}
	return t.Nodes[loc.ID]
}

// FoldOutputNode returns the node holding the non-count outputs of fold f,
// or f itself when there are none.
func (t *Tree) FoldOutputNode(f *Node) *Node {
	for _, n := range f.Subtree() {
		for _, o := range n.Outputs {
			if !o.IsCount() {
				return n
			}
		}
	}
	return f
}

// Stack mirrors Traverse/Backtrack and Fold/Unfold nesting during a single
// pass over a block list.
type Stack struct {
	owner string
	nodes []*Node
}

// NewStack starts a stack at root. owner names the backend in errors.
func NewStack(owner string, root *Node) *Stack {
	return &Stack{owner: owner, nodes: []*Node{root}}
}

// Top returns the innermost open location.
func (s *Stack) Top() *Node { return s.nodes[len(s.nodes)-1] }

// Depth is the number of open locations, root included.
func (s *Stack) Depth() int { return len(s.nodes) }

// Push opens a location.
func (s *Stack) Push(n *Node) { s.nodes = append(s.nodes, n) }

// Pop closes the innermost location, which must have been opened by kind
// and must return to to.
func (s *Stack) Pop(index int, kind NodeKind, to ir.Location) error {
	if len(s.nodes) < 2 {
		return s.fail(index, "close of %s with no open scope", kind)
	}
	top := s.Top()
	if top.Kind != kind {
		return s.fail(index, "close of %s while %s %s is open", kind, top.Kind, top.Location)
	}
	if top.Parent.Location != to {
		return s.fail(index, "%s returns to %s, want %s", kind, to, top.Parent.Location)
	}
	s.nodes = s.nodes[:len(s.nodes)-1]
	return nil
}

func (s *Stack) fail(index int, format string, args ...any) error {
	return &compileerr.InternalConsistencyError{Backend: s.owner, Index: index, Message: fmt.Sprintf(format, args...)}
}

// BuildTree regroups blocks by location in a single pass. Malformed block
// lists yield *compileerr.InternalConsistencyError.
func BuildTree(owner string, blocks []ir.Block) (*Tree, error) {
	fail := func(i int, format string, args ...any) error {
		return &compileerr.InternalConsistencyError{Backend: owner, Index: i, Message: fmt.Sprintf(format, args...)}
	}
	if len(blocks) == 0 {
		return nil, fail(-1, "empty block list")
	}
	qr, ok := blocks[0].(ir.QueryRoot)
	if !ok {
		return nil, fail(0, "first block is %s, want QueryRoot", ir.BlockKind(blocks[0]))
	}

	root := &Node{Location: qr.Location, Kind: NodeRoot}
	t := &Tree{Root: root, Nodes: []*Node{root}}
	st := NewStack(owner, root)

	open := func(i int, n *Node, from ir.Location) error {
		parent := st.Top()
		if from != parent.Location {
			return fail(i, "%s starts at %s but the current location is %s", n.Kind, from, parent.Location)
		}
		n.Parent = parent
		if n.Location.ID != len(t.Nodes) {
			return fail(i, "location %s out of depth-first order", n.Location)
		}
		parent.Children = append(parent.Children, n)
		t.Nodes = append(t.Nodes, n)
		st.Push(n)
		return nil
	}
	at := func(i int, loc ir.Location, kind string) (*Node, error) {
		top := st.Top()
		if top.Location != loc {
			return nil, fail(i, "%s at %s but the current location is %s", kind, loc, top.Location)
		}
		return top, nil
	}

	for i := 1; i < len(blocks); i++ {
		switch b := blocks[i].(type) {
		case ir.QueryRoot:
			return nil, fail(i, "second QueryRoot")
		case ir.Traverse:
			parent := st.Top()
			n := &Node{
				Location:   b.To,
				Kind:       NodeTraverse,
				Edge:       b.Edge,
				Field:      b.Field,
				Direction:  b.Direction,
				Optional:   b.Optional,
				InOptional: parent.InOptional || b.Optional,
				InFold:     parent.InFold,
				Recurse:    b.Recurse,
			}
			if err := open(i, n, b.From); err != nil {
				return nil, err
			}
		case ir.Fold:
			parent := st.Top()
			n := &Node{
				Location:   b.To,
				Kind:       NodeFold,
				Edge:       b.Edge,
				Field:      b.Field,
				Direction:  b.Direction,
				InOptional: parent.InOptional,
				InFold:     true,
			}
			if err := open(i, n, b.From); err != nil {
				return nil, err
			}
		case ir.Backtrack:
			if err := st.Pop(i, NodeTraverse, b.To); err != nil {
				return nil, err
			}
		case ir.Unfold:
			if err := st.Pop(i, NodeFold, b.To); err != nil {
				return nil, err
			}
		case ir.Filter:
			n, err := at(i, b.Location, "Filter")
			if err != nil {
				return nil, err
			}
			n.Filters = append(n.Filters, b.Predicate)
		case ir.MarkTag:
			n, err := at(i, b.Location, "MarkTag")
			if err != nil {
				return nil, err
			}
			n.Tags = append(n.Tags, b)
		case ir.Output:
			n, err := at(i, b.Location, "Output")
			if err != nil {
				return nil, err
			}
			n.Outputs = append(n.Outputs, b)
		default:
			return nil, fail(i, "unknown block %T", b)
		}
	}
	if st.Depth() != 1 {
		return nil, fail(-1, "%d unclosed scope(s), innermost %s", st.Depth()-1, st.Top().Location)
	}

	t.Outputs = ir.Outputs(blocks)
	t.Meta = ir.OutputMetadata(blocks)
	return t, nil
}

// Unsupported builds the error for an IR feature id cannot express.
func Unsupported(id ID, feature string, loc ir.Location, format string, args ...any) error {
	return &compileerr.BackendUnsupportedError{
		Backend:  string(id),
		Feature:  feature,
		Location: loc.String(),
		Message:  fmt.Sprintf(format, args...),
	}
}
