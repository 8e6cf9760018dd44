package runner

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/config"
)

// Neo4jRunner executes cypher results with the Neo4j driver.
type Neo4jRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

// OpenNeo4j connects to cfg.URI and verifies connectivity.
func OpenNeo4j(ctx context.Context, cfg config.Neo4jConfig) (*Neo4jRunner, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("runner: cypher requires runner.neo4j.uri")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connect to neo4j at %s: %w", cfg.URI, err)
	}
	return NewNeo4jRunner(driver, cfg.Database), nil
}

// NewNeo4jRunner wraps an existing driver. An empty database selects the
// server default.
func NewNeo4jRunner(driver neo4j.DriverWithContext, database string) *Neo4jRunner {
	return &Neo4jRunner{driver: driver, database: database}
}

// Run implements Runner. The query runs in a read transaction routed to
// readers.
func (r *Neo4jRunner) Run(ctx context.Context, res *backend.CompilationResult, params map[string]any) (*Rows, error) {
	if res.Backend != backend.Cypher {
		return nil, fmt.Errorf("runner: cypher runner cannot execute a %s query", res.Backend)
	}
	args, err := namedValues(res, params)
	if err != nil {
		return nil, err
	}

	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if r.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(r.database))
	}
	result, err := neo4j.ExecuteQuery(ctx, r.driver, res.Query, args, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, fmt.Errorf("execute cypher query: %w", err)
	}
	return recordsToRows(res, result.Records)
}

// namedValues resolves the parameters of res into the map the driver
// takes.
func namedValues(res *backend.CompilationResult, params map[string]any) (map[string]any, error) {
	vals, err := values(res, params)
	if err != nil {
		return nil, err
	}
	args := make(map[string]any, len(vals))
	for i, p := range res.Parameters {
		args[p.Name] = vals[i]
	}
	return args, nil
}

// recordsToRows reads each output by alias.
func recordsToRows(res *backend.CompilationResult, records []*neo4j.Record) (*Rows, error) {
	out := &Rows{Columns: make([]string, len(res.Outputs)), Records: make([][]any, 0, len(records))}
	for i, o := range res.Outputs {
		out.Columns[i] = o.Alias
	}
	for _, rec := range records {
		row := make([]any, len(res.Outputs))
		for i, o := range res.Outputs {
			v, ok := rec.Get(o.Alias)
			if !ok {
				return nil, fmt.Errorf("record has no column %q", o.Alias)
			}
			if o.IsCollection && v == nil {
				v = []any{}
			}
			row[i] = v
		}
		out.Records = append(out.Records, row)
	}
	return out, nil
}

// Close implements Runner.
func (r *Neo4jRunner) Close() error {
	return r.driver.Close(context.Background())
}
