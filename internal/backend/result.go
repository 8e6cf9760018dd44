package backend

import (
	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/schema"
)

// OutputInfo describes one result column.
type OutputInfo = ir.OutputInfo

// Parameter is one query parameter in the order the backend expects it.
// Literal operands appear as parameters named __lit<N>. Bound is set when
// the value is known at compile time.
type Parameter struct {
	Name  string      `json:"name" yaml:"name"`
	Type  schema.Type `json:"type" yaml:"type"`
	Value any         `json:"value,omitempty" yaml:"value,omitempty"`
	Bound bool        `json:"bound" yaml:"bound"`
}

// IsLiteral reports whether p stands for a literal written in the query.
func (p Parameter) IsLiteral() bool { return isLiteralName(p.Name) }

// CompilationResult is the output of a backend compiler.
type CompilationResult struct {
	Backend ID     `json:"backend" yaml:"backend"`
	Query   string `json:"query" yaml:"query"`
	// Parameters follow placeholder order for positional dialects and
	// first-use order for named ones. A positional parameter used twice
	// appears twice.
	Parameters []Parameter  `json:"parameters" yaml:"parameters"`
	Outputs    []OutputInfo `json:"outputs" yaml:"outputs"`
	// Fingerprint is a SHA-256 over the canonical encoding of the fields
	// above.
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`
}

// Inputs returns the type of every user parameter the query expects,
// literals excluded.
func (r *CompilationResult) Inputs() map[string]schema.Type {
	in := make(map[string]schema.Type)
	for _, p := range r.Parameters {
		if !p.IsLiteral() {
			in[p.Name] = p.Type
		}
	}
	return in
}

// Unbound returns the names of user parameters without a compile-time
// value, in parameter order and without repeats.
func (r *CompilationResult) Unbound() []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range r.Parameters {
		if p.Bound || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		names = append(names, p.Name)
	}
	return names
}

// NewResult assembles a result and computes its fingerprint. outputs is
// normally ir.OutputMetadata of the compiled blocks.
func NewResult(id ID, query string, params []Parameter, outputs []OutputInfo) (*CompilationResult, error) {
	if params == nil {
		params = []Parameter{}
	}
	r := &CompilationResult{
		Backend:    id,
		Query:      query,
		Parameters: params,
		Outputs:    outputs,
	}
	fp, err := ir.Fingerprint(ir.DomainResult, r.canonical())
	if err != nil {
		return nil, &compileerr.InternalConsistencyError{Backend: string(id), Index: -1, Message: err.Error()}
	}
	r.Fingerprint = fp
	return r, nil
}

func (r *CompilationResult) canonical() map[string]any {
	params := make([]any, len(r.Parameters))
	for i, p := range r.Parameters {
		m := map[string]any{
			"name":  p.Name,
			"type":  p.Type.String(),
			"bound": p.Bound,
		}
		if p.Bound {
			m["value"] = canonicalValue(p.Value)
		}
		params[i] = m
	}
	outs := make([]any, len(r.Outputs))
	for i, o := range r.Outputs {
		outs[i] = map[string]any{
			"alias":         o.Alias,
			"type":          o.Type.String(),
			"nullable":      o.Nullable,
			"is_collection": o.IsCollection,
		}
	}
	return map[string]any{
		"backend":    string(r.Backend),
		"query":      r.Query,
		"parameters": params,
		"outputs":    outs,
	}
}

// canonicalValue maps a bound value into the canonical JSON domain. Values
// outside it (floats, typed slices) are hashed through their %v form, tagged
// with the Go type so "1" and 1 never collide.
func canonicalValue(v any) any {
	if iv, err := ir.FromNative(v); err == nil {
		return iv
	}
	return map[string]any{"go": goTypeName(v), "text": formatNative(v)}
}
