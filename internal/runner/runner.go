// Package runner executes compiled queries against live databases.
//
// Relational results run through database/sql (mattn sqlite3 or pgx);
// cypher results run through the Neo4j driver. The gremlin and match
// backends have no runner.
package runner

//go:generate mockgen -destination=mocks/mock_runner.go -package=runner_mocks github.com/roach88/gqlc/internal/runner Runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/config"
	"github.com/roach88/gqlc/internal/ir"
)

// Rows is a fully read result set. Columns follow the output declaration
// order; collection outputs are []any and never nil.
type Rows struct {
	Columns []string `json:"columns"`
	Records [][]any  `json:"records"`
}

// Maps returns one alias-keyed map per record.
func (r *Rows) Maps() []map[string]any {
	out := make([]map[string]any, len(r.Records))
	for i, rec := range r.Records {
		m := make(map[string]any, len(r.Columns))
		for j, c := range r.Columns {
			m[c] = rec[j]
		}
		out[i] = m
	}
	return out
}

// Runner executes compilation results.
type Runner interface {
	// Run executes res with params supplying every parameter that was not
	// bound at compile time.
	Run(ctx context.Context, res *backend.CompilationResult, params map[string]any) (*Rows, error)
	Close() error
}

// ErrUnbound is wrapped by errors for parameters with no value.
var ErrUnbound = errors.New("unbound parameter")

// ErrNoRunner is returned by Open for backends that cannot be executed.
var ErrNoRunner = errors.New("backend has no runner")

// Open returns the runner for backend id.
func Open(ctx context.Context, id backend.ID, cfg config.RunnerConfig) (Runner, error) {
	switch id {
	case backend.SQLite, backend.Postgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("runner: %s requires a dsn", id)
		}
		return OpenSQL(id, cfg.DSN)
	case backend.Cypher:
		return OpenNeo4j(ctx, cfg.Neo4j)
	case backend.Gremlin, backend.Match:
		return nil, fmt.Errorf("%w: %s", ErrNoRunner, id)
	default:
		return nil, fmt.Errorf("runner: unknown backend %q", id)
	}
}

// values resolves every parameter of res in result order. Compile-time
// bindings win over params. Runtime values are type-checked against the
// parameter type.
func values(res *backend.CompilationResult, params map[string]any) ([]any, error) {
	out := make([]any, len(res.Parameters))
	var missing []string
	for i, p := range res.Parameters {
		if p.Bound {
			out[i] = p.Value
			continue
		}
		v, ok := params[p.Name]
		if !ok {
			missing = append(missing, "$"+p.Name)
			continue
		}
		if !ir.NativeAssignable(v, p.Type) {
			return nil, fmt.Errorf("parameter $%s: value of Go type %T does not fit %s", p.Name, v, p.Type)
		}
		out[i] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnbound, strings.Join(dedupe(missing), ", "))
	}
	return out, nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// decodeCollection turns an aggregated JSON array into []any. Integral
// numbers decode as int64.
func decodeCollection(v any) ([]any, error) {
	var data []byte
	switch x := v.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return x, nil
	case string:
		data = []byte(x)
	case []byte:
		data = x
	default:
		return nil, fmt.Errorf("collection output has unexpected type %T", v)
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var list []any
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("decode collection output: %w", err)
	}
	if list == nil {
		list = []any{}
	}
	for i, e := range list {
		list[i] = normalizeNumber(e)
	}
	return list, nil
}

func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
