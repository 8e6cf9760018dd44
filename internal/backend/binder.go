package backend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/gqlc/internal/ir"
)

// LiteralPrefix starts the generated name of every literal parameter. User
// parameter names may not use it.
const LiteralPrefix = "__lit"

func isLiteralName(name string) bool { return strings.HasPrefix(name, LiteralPrefix) }

// PlaceholderStyle selects how a parameter reference is spelled in query
// text.
type PlaceholderStyle int

const (
	// QuestionMark is '?'. Every occurrence is a separate positional
	// parameter.
	QuestionMark PlaceholderStyle = iota
	// DollarNumber is '$1', '$2', ... reusing one index per name.
	DollarNumber
	// DollarName is '$name'.
	DollarName
	// ColonName is ':name'.
	ColonName
	// BareName is 'name', as used by script bindings.
	BareName
)

// Binder hands out placeholders and records the parameter list of one
// compilation. Literals are never spliced into query text; each literal
// operand gets its own __lit<N> parameter.
type Binder struct {
	style    PlaceholderStyle
	bind     Bindings
	decls    map[string]Parameter
	index    map[string]int // name -> 1-based position, named styles only
	params   []Parameter
	literals int
}

// NewBinder creates a Binder. bind supplies compile-time values for user
// parameters; it may be nil.
func NewBinder(style PlaceholderStyle, bind Bindings) *Binder {
	return &Binder{
		style: style,
		bind:  bind,
		decls: make(map[string]Parameter),
		index: make(map[string]int),
	}
}

// Operand returns the placeholder for a Literal or Variable operand. Each
// call for a Literal creates a new parameter; use Name and Ref to mention
// one literal twice.
func (b *Binder) Operand(op ir.Operand) (string, error) {
	name, err := b.Name(op)
	if err != nil {
		return "", err
	}
	return b.Ref(name), nil
}

// Name declares op and returns its parameter name without emitting a
// placeholder.
func (b *Binder) Name(op ir.Operand) (string, error) {
	switch o := op.(type) {
	case ir.Literal:
		name := LiteralPrefix + strconv.Itoa(b.literals)
		b.literals++
		b.declare(Parameter{Name: name, Type: o.Type, Value: ir.Native(o.Value), Bound: true})
		return name, nil
	case ir.Variable:
		p := Parameter{Name: o.Name, Type: o.Type}
		if v, ok := b.bind[o.Name]; ok {
			p.Value, p.Bound = v, true
		}
		b.declare(p)
		return o.Name, nil
	default:
		return "", fmt.Errorf("operand %T cannot be bound as a parameter", op)
	}
}

func (b *Binder) declare(p Parameter) {
	if _, seen := b.decls[p.Name]; seen {
		return
	}
	b.decls[p.Name] = p
	if b.style != QuestionMark {
		b.params = append(b.params, p)
		b.index[p.Name] = len(b.params)
	}
}

// Ref emits a placeholder for a declared parameter.
func (b *Binder) Ref(name string) string {
	switch b.style {
	case QuestionMark:
		b.params = append(b.params, b.decls[name])
		return "?"
	case DollarNumber:
		return "$" + strconv.Itoa(b.index[name])
	case DollarName:
		return "$" + name
	case ColonName:
		return ":" + name
	default:
		return name
	}
}

// Value returns the compile-time value of a declared parameter.
func (b *Binder) Value(name string) (any, bool) {
	p, ok := b.decls[name]
	if !ok {
		return nil, false
	}
	return p.Value, p.Bound
}

// Parameters returns the parameter list in placeholder order.
func (b *Binder) Parameters() []Parameter {
	out := make([]Parameter, len(b.params))
	copy(out, b.params)
	return out
}

func goTypeName(v any) string { return fmt.Sprintf("%T", v) }

func formatNative(v any) string { return fmt.Sprintf("%v", v) }
