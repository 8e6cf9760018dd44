package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/schema"
)

// record is the stored form of a CompilationResult. Parameter values are
// always written, including zero values that the public JSON form omits.
type record struct {
	Backend     backend.ID           `json:"backend"`
	Query       string               `json:"query"`
	Parameters  []recordParam        `json:"parameters"`
	Outputs     []backend.OutputInfo `json:"outputs"`
	Fingerprint string               `json:"fingerprint"`
}

type recordParam struct {
	Name  string      `json:"name"`
	Type  schema.Type `json:"type"`
	Value any         `json:"value"`
	Bound bool        `json:"bound"`
}

// marshalResult converts a result to JSON TEXT for storage. HTML escaping
// is off so query text is stored as written.
func marshalResult(res *backend.CompilationResult) (string, error) {
	rec := record{
		Backend:     res.Backend,
		Query:       res.Query,
		Parameters:  make([]recordParam, len(res.Parameters)),
		Outputs:     res.Outputs,
		Fingerprint: res.Fingerprint,
	}
	for i, p := range res.Parameters {
		rec.Parameters[i] = recordParam{Name: p.Name, Type: p.Type, Value: p.Value, Bound: p.Bound}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(bytes.TrimSpace(buf.Bytes())), nil
}

// unmarshalResult parses stored JSON TEXT. Numbers are decoded with
// json.Number so integers come back as int64, the type the compiler bound
// them as, and the fingerprint can be recomputed.
func unmarshalResult(data string) (*backend.CompilationResult, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var rec record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}

	res := &backend.CompilationResult{
		Backend:     rec.Backend,
		Query:       rec.Query,
		Parameters:  make([]backend.Parameter, len(rec.Parameters)),
		Outputs:     rec.Outputs,
		Fingerprint: rec.Fingerprint,
	}
	for i, p := range rec.Parameters {
		v, err := normalizeNumbers(p.Value)
		if err != nil {
			return nil, fmt.Errorf("unmarshal result: parameter %s: %w", p.Name, err)
		}
		res.Parameters[i] = backend.Parameter{Name: p.Name, Type: p.Type, Value: v, Bound: p.Bound}
	}
	return res, nil
}

func normalizeNumbers(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		return val.Float64()
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			n, err := normalizeNumbers(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return v, nil
	}
}
