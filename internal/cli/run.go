package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/compiler"
	"github.com/roach88/gqlc/internal/config"
	"github.com/roach88/gqlc/internal/runner"
)

// RunnerOpener opens a runner for a backend.
type RunnerOpener func(ctx context.Context, id backend.ID, cfg config.RunnerConfig) (runner.Runner, error)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Schema  string
	Backend string
	DSN     string
	Params  []string

	// OpenRunner allows overriding how the runner is opened (for testing).
	// If nil, defaults to runner.Open.
	OpenRunner RunnerOpener
}

// RunResult is the JSON payload of a successful run.
type RunResult struct {
	Backend backend.ID       `json:"backend"`
	Query   string           `json:"query"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <query-file>",
		Short: "Compile a query and execute it",
		Long: `Compile a query and execute it against a database.

sqlite and postgres queries run over database/sql using --dsn (a file
path or a postgres connection string). cypher queries run against the
Neo4j endpoint configured under runner.neo4j. gremlin and match output
cannot be executed.

Example:
  gqlc run -s people.yaml -b sqlite --dsn people.db friends.graphql
  gqlc run -s people.yaml -b postgres --dsn postgres://localhost/people q.graphql --param min_age=30`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Schema, "schema", "s", "", "schema file (.yaml, .cue or CUE package dir)")
	cmd.Flags().StringVarP(&opts.Backend, "backend", "b", "", "target backend (sqlite|postgres|cypher)")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "database to run against (sqlite path or postgres URL)")
	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "parameter value (name=value, repeatable)")

	return cmd
}

func runQuery(opts *RunOptions, path string, cmd *cobra.Command) error {
	if err := opts.ensure(cmd); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)
	cfg := opts.Config

	traceID := uuid.NewString()
	logger := opts.logger().With("trace_id", traceID)

	id, err := RequireBackend(cfg.Backend)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	s, err := LoadSchema(cfg.Schema)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	params, err := ParseParams(opts.Params)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	files, err := ReadQueryFiles([]string{path})
	if err != nil {
		return outputCommandError(formatter, err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c := compiler.New(s, compiler.WithLimits(cfg.Limits), compiler.WithLogger(logger))
	res, err := c.Compile(ctx, files[0].Text, id, params)
	if err != nil {
		cliErr := ToCLIError(err)
		_ = formatter.Error(cliErr.Code, cliErr.Message, cliErr.Details)
		return WrapExitError(ExitFailure, cliErr.Code, err)
	}

	open := opts.OpenRunner
	if open == nil {
		open = runner.Open
	}
	r, err := open(ctx, id, cfg.Runner)
	if err != nil {
		_ = formatter.Error(ErrCodeRunner, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open runner", err)
	}
	defer func() {
		if closeErr := r.Close(); closeErr != nil {
			logger.Error("error closing runner", "error", closeErr)
		}
	}()

	logger.Debug("executing query", "backend", id, "fingerprint", res.Fingerprint)
	rows, err := r.Run(ctx, res, params)
	if err != nil {
		_ = formatter.Error(ErrCodeRunner, err.Error(), nil)
		return WrapExitError(ExitCommandError, "query execution failed", err)
	}
	logger.Info("query executed", "backend", id, "rows", len(rows.Records))

	if formatter.Format == "json" {
		return json.NewEncoder(formatter.Writer).Encode(CLIResponse{
			Status: "ok",
			Data: RunResult{
				Backend: id,
				Query:   res.Query,
				Columns: rows.Columns,
				Rows:    rows.Maps(),
			},
			TraceID: traceID,
		})
	}
	formatter.VerboseLog("trace %s", traceID)
	renderRows(formatter.Writer, rows)
	return nil
}

// renderRows prints rows as a table followed by a row count.
func renderRows(w io.Writer, rows *runner.Rows) {
	if len(rows.Records) == 0 {
		fmt.Fprintln(w, "(0 rows)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(rows.Columns))
	for i, col := range rows.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, rec := range rows.Records {
		row := make(table.Row, len(rec))
		for i, v := range rec {
			row[i] = formatCell(v)
		}
		t.AppendRow(row)
	}

	t.Render()
	fmt.Fprintf(w, "(%d rows)\n", len(rows.Records))
}

// formatCell renders NULL for nil and JSON for collections.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
