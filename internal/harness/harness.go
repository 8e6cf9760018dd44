// Package harness runs conformance scenarios for the query compiler.
//
// A scenario names a schema, a query and a set of backends. Run compiles
// the query for each backend, executes the sqlite result against fixture
// data when the scenario provides some, and evaluates the scenario's
// assertions. RunWithGolden additionally pins every generated query to a
// golden file.
package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/compiler"
	"github.com/roach88/gqlc/internal/runner"
	"github.com/roach88/gqlc/internal/schema"
)

// Run executes a scenario and returns the result.
//
// Each scenario executes in a fresh in-memory SQLite database. A non-nil
// error means the scenario could not run at all; assertion failures are
// reported in the result.
func Run(ctx context.Context, sc *Scenario, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s, err := schema.Load(sc.Schema)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	ids, err := sc.BackendIDs()
	if err != nil {
		return nil, err
	}

	c := compiler.New(s, compiler.WithLogger(logger.With("scenario", sc.Name)))
	result := NewResult()
	for _, id := range ids {
		res, err := c.Compile(ctx, sc.Query, id, sc.Params)
		if err != nil {
			result.CompileErrors[id] = err
			continue
		}
		result.Compiled[id] = res
	}

	if sc.Fixtures != "" {
		rows, err := execute(ctx, sc, result.Compiled[backend.SQLite])
		if err != nil {
			result.AddError(err.Error())
		}
		result.Rows = rows
	}

	for _, msg := range EvaluateAssertions(result, sc.Assertions) {
		result.AddError(msg)
	}
	for _, msg := range unexpectedErrors(result, sc.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// execute runs the sqlite compilation against the scenario fixtures.
func execute(ctx context.Context, sc *Scenario, res *backend.CompilationResult) (*runner.Rows, error) {
	if res == nil {
		return nil, fmt.Errorf("scenario has fixtures but no sqlite compilation to execute")
	}
	r, err := runner.OpenSQL(backend.SQLite, ":memory:")
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if err := runner.LoadFixtures(ctx, r.DB(), sc.Fixtures); err != nil {
		return nil, err
	}
	rows, err := r.Run(ctx, res, sc.RunParams)
	if err != nil {
		return nil, fmt.Errorf("execute sqlite query: %w", err)
	}
	return rows, nil
}

// unexpectedErrors reports compile failures that no unsupported or error
// assertion accounts for.
func unexpectedErrors(result *Result, assertions []Assertion) []string {
	expected := make(map[backend.ID]bool)
	all := false
	for _, a := range assertions {
		switch a.Type {
		case AssertUnsupported:
			expected[backend.ID(a.Backend)] = true
		case AssertError:
			all = true
		}
	}
	var msgs []string
	for _, id := range backend.All() {
		err, failed := result.CompileErrors[id]
		if !failed || all || expected[id] {
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: unexpected compile error: %v", id, err))
	}
	return msgs
}
