package runner

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/schema"
)

// driverNames maps relational backends to database/sql driver names.
var driverNames = map[backend.ID]string{
	backend.SQLite:   "sqlite3",
	backend.Postgres: "pgx",
}

// SQLRunner executes sqlite and postgres results over database/sql.
type SQLRunner struct {
	db *sql.DB
	id backend.ID
}

// OpenSQL opens dsn with the driver for id. SQLite connections are capped
// at one so that ":memory:" databases survive between queries.
func OpenSQL(id backend.ID, dsn string) (*SQLRunner, error) {
	name, ok := driverNames[id]
	if !ok {
		return nil, fmt.Errorf("runner: %s is not a relational backend", id)
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	if id == backend.SQLite {
		db.SetMaxOpenConns(1)
	}
	return &SQLRunner{db: db, id: id}, nil
}

// NewSQLRunner wraps an open handle. The caller keeps ownership of db
// until Close.
func NewSQLRunner(db *sql.DB, id backend.ID) *SQLRunner {
	return &SQLRunner{db: db, id: id}
}

// DB exposes the handle for fixture loading.
func (r *SQLRunner) DB() *sql.DB { return r.db }

// Run implements Runner.
func (r *SQLRunner) Run(ctx context.Context, res *backend.CompilationResult, params map[string]any) (*Rows, error) {
	if res.Backend != r.id {
		return nil, fmt.Errorf("runner: %s runner cannot execute a %s query", r.id, res.Backend)
	}
	vals, err := values(res, params)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(vals))
	for i, v := range vals {
		if args[i], err = r.arg(v, res.Parameters[i].Type); err != nil {
			return nil, fmt.Errorf("parameter $%s: %w", res.Parameters[i].Name, err)
		}
	}

	rows, err := r.db.QueryContext(ctx, res.Query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute %s query: %w", r.id, err)
	}
	defer rows.Close()

	out := &Rows{Columns: make([]string, len(res.Outputs)), Records: [][]any{}}
	for i, o := range res.Outputs {
		out.Columns[i] = o.Alias
	}
	for rows.Next() {
		rec := make([]any, len(res.Outputs))
		ptrs := make([]any, len(rec))
		for i := range rec {
			ptrs[i] = &rec[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, o := range res.Outputs {
			if rec[i], err = r.column(rec[i], o); err != nil {
				return nil, fmt.Errorf("output %q: %w", o.Alias, err)
			}
		}
		out.Records = append(out.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return out, nil
}

// arg adapts a list value to the driver: SQLite takes lists as JSON text
// read back through json_each, pgx takes typed slices for ANY and &&.
func (r *SQLRunner) arg(v any, t schema.Type) (any, error) {
	if !t.List || v == nil {
		return v, nil
	}
	if r.id == backend.SQLite {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return typedSlice(v, t.Elem())
}

// column converts a scanned value for output o.
func (r *SQLRunner) column(v any, o backend.OutputInfo) (any, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if o.IsCollection || (o.Type.List && r.id == backend.SQLite && v != nil) {
		return decodeCollection(v)
	}
	return v, nil
}

// typedSlice converts []any into a slice whose element type pgx can
// encode as a postgres array.
func typedSlice(v any, elem schema.Type) (any, error) {
	list, ok := v.([]any)
	if !ok {
		return v, nil
	}
	switch elem.Kind {
	case schema.Int:
		out := make([]int64, len(list))
		for i, e := range list {
			n, ok := asInt64(e)
			if !ok {
				return nil, fmt.Errorf("element %d: want integer, got %T", i, e)
			}
			out[i] = n
		}
		return out, nil
	case schema.Float:
		out := make([]float64, len(list))
		for i, e := range list {
			switch x := e.(type) {
			case float64:
				out[i] = x
			default:
				n, ok := asInt64(e)
				if !ok {
					return nil, fmt.Errorf("element %d: want number, got %T", i, e)
				}
				out[i] = float64(n)
			}
		}
		return out, nil
	case schema.Boolean:
		out := make([]bool, len(list))
		for i, e := range list {
			b, ok := e.(bool)
			if !ok {
				return nil, fmt.Errorf("element %d: want boolean, got %T", i, e)
			}
			out[i] = b
		}
		return out, nil
	default:
		out := make([]string, len(list))
		for i, e := range list {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: want string, got %T", i, e)
			}
			out[i] = s
		}
		return out, nil
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint32:
		return int64(x), true
	}
	return 0, false
}

// Close implements Runner.
func (r *SQLRunner) Close() error { return r.db.Close() }

// LoadFixtures executes the SQL script at path in one call.
func LoadFixtures(ctx context.Context, db *sql.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixtures: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(data)); err != nil {
		return fmt.Errorf("load fixtures %s: %w", path, err)
	}
	return nil
}
