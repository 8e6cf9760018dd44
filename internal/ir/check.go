package ir

import (
	"fmt"
	"sort"

	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/schema"
)

// OutputInfo describes one result column.
type OutputInfo struct {
	Alias        string      `json:"alias" yaml:"alias"`
	Type         schema.Type `json:"type" yaml:"type"`
	Nullable     bool        `json:"nullable" yaml:"nullable"`
	IsCollection bool        `json:"is_collection" yaml:"is_collection"`
}

// OutputMetadata derives the result metadata of a block list, ordered by
// declaration of the @output directives. Every backend reports exactly this
// metadata.
//
// Outputs under an optional traversal are nullable. Outputs under a fold are
// collections and never null (an empty fold is an empty list); the fold
// count is a plain Int.
func OutputMetadata(blocks []Block) []OutputInfo {
	type frame struct {
		optional bool
		fold     bool
	}
	stack := []frame{{}}
	var outs []Output
	var infos []OutputInfo

	for _, b := range blocks {
		top := stack[len(stack)-1]
		switch x := b.(type) {
		case Traverse:
			stack = append(stack, frame{optional: top.optional || x.Optional, fold: top.fold})
		case Fold:
			stack = append(stack, frame{optional: top.optional, fold: true})
		case Backtrack, Unfold:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case Output:
			info := OutputInfo{Alias: x.Alias, Type: x.Type}
			switch {
			case x.IsCount():
				info.Type = schema.Type{Kind: schema.Int}
			case top.fold:
				info.IsCollection = true
			case top.optional:
				info.Nullable = true
			}
			outs = append(outs, x)
			infos = append(infos, info)
		}
	}

	idx := make([]int, len(outs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return outs[idx[a]].Seq < outs[idx[b]].Seq })
	sorted := make([]OutputInfo, len(idx))
	for i, j := range idx {
		sorted[i] = infos[j]
	}
	return sorted
}

// Outputs returns the Output blocks ordered by declaration.
func Outputs(blocks []Block) []Output {
	var outs []Output
	for _, b := range blocks {
		if o, ok := b.(Output); ok {
			outs = append(outs, o)
		}
	}
	sort.SliceStable(outs, func(i, j int) bool { return outs[i].Seq < outs[j].Seq })
	return outs
}

// CheckNesting verifies the structural invariants of a block list: a single
// leading QueryRoot, balanced Traverse/Backtrack and Fold/Unfold pairs, and
// every location-scoped block sitting at the current location. owner names
// the component reporting the fault.
func CheckNesting(owner string, blocks []Block) error {
	fail := func(i int, format string, args ...any) error {
		return &compileerr.InternalConsistencyError{Backend: owner, Index: i, Message: fmt.Sprintf(format, args...)}
	}
	if len(blocks) == 0 {
		return fail(-1, "empty block list")
	}
	if _, ok := blocks[0].(QueryRoot); !ok {
		return fail(0, "first block is %s, want QueryRoot", BlockKind(blocks[0]))
	}

	type frame struct {
		loc  Location
		fold bool
	}
	var stack []frame

	for i, b := range blocks {
		var top Location
		if len(stack) > 0 {
			top = stack[len(stack)-1].loc
		}
		switch x := b.(type) {
		case QueryRoot:
			if i != 0 {
				return fail(i, "second QueryRoot")
			}
			stack = append(stack, frame{loc: x.Location})
		case Traverse:
			if x.From != top {
				return fail(i, "traverse from %s while at %s", x.From, top)
			}
			stack = append(stack, frame{loc: x.To})
		case Fold:
			if x.From != top {
				return fail(i, "fold from %s while at %s", x.From, top)
			}
			stack = append(stack, frame{loc: x.To, fold: true})
		case Backtrack:
			if len(stack) < 2 || stack[len(stack)-1].fold {
				return fail(i, "backtrack without matching traverse")
			}
			if x.From != top || x.To != stack[len(stack)-2].loc {
				return fail(i, "backtrack %s -> %s does not match traverse", x.From, x.To)
			}
			stack = stack[:len(stack)-1]
		case Unfold:
			if len(stack) < 2 || !stack[len(stack)-1].fold {
				return fail(i, "unfold without matching fold")
			}
			if x.From != top || x.To != stack[len(stack)-2].loc {
				return fail(i, "unfold %s -> %s does not match fold", x.From, x.To)
			}
			stack = stack[:len(stack)-1]
		case Filter:
			if x.Location != top {
				return fail(i, "filter at %s while at %s", x.Location, top)
			}
		case MarkTag:
			if x.Location != top {
				return fail(i, "tag %q at %s while at %s", x.Name, x.Location, top)
			}
		case Output:
			if x.Location != top {
				return fail(i, "output %q at %s while at %s", x.Alias, x.Location, top)
			}
		default:
			return fail(i, "unknown block %T", b)
		}
	}
	if len(stack) != 1 {
		return fail(-1, "%d unclosed traversal(s)", len(stack)-1)
	}
	return nil
}
