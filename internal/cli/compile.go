package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/compiler"
	"github.com/roach88/gqlc/internal/metrics"
	"github.com/roach88/gqlc/internal/schema"
	"github.com/roach88/gqlc/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Schema      string
	Backend     string
	Params      []string
	Output      string // output file path
	Watch       bool
	Concurrency int
	MetricsFile string
	Cache       string // compile cache database
}

// FileResult is the outcome of compiling one query file.
type FileResult struct {
	File   string                     `json:"file"`
	Result *backend.CompilationResult `json:"result,omitempty"`
	Error  *CLIError                  `json:"error,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <query-file|pattern>...",
		Short: "Compile queries for one backend",
		Long: `Compile query files for one backend.

Files are compiled concurrently against one schema. Patterns use doublestar
syntax, so queries/**/*.graphql matches recursively. Parameters given with
--param are bound at compile time; the rest stay placeholders.

Examples:
  gqlc compile --schema people.yaml --backend postgres friends.graphql
  gqlc compile -s people.yaml -b cypher 'queries/**/*.graphql' --param min_age=30
  gqlc compile -s people.yaml -b sqlite friends.graphql --watch
  gqlc compile -s people.yaml -b postgres friends.graphql --cache .gqlc/cache.db`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Schema, "schema", "s", "", "schema file (.yaml, .cue or CUE package dir)")
	cmd.Flags().StringVarP(&opts.Backend, "backend", "b", "", "target backend (sqlite|postgres|gremlin|match|cypher)")
	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "bind a parameter at compile time (name=value, repeatable)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write results as JSON to this file")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "recompile when a query or the schema changes")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 4, "number of files compiled in parallel")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file after compiling")
	cmd.Flags().StringVar(&opts.Cache, "cache", "", "reuse compilation results stored in this SQLite database")

	return cmd
}

// compileJob is everything one compile pass needs.
type compileJob struct {
	schemaPath  string
	id          backend.ID
	params      map[string]any
	concurrency int
	metricsFile string
	cache       compiler.Cache
}

func runCompile(ctx context.Context, opts *CompileOptions, args []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := opts.ensure(cmd); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)
	cfg := opts.Config

	id, err := RequireBackend(cfg.Backend)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	params, err := ParseParams(opts.Params)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	paths, err := ExpandQueryFiles(args)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	job := compileJob{
		schemaPath:  cfg.Schema,
		id:          id,
		params:      params,
		concurrency: cfg.Concurrency,
		metricsFile: cfg.Metrics.File,
	}
	if cfg.Cache.Path != "" {
		st, err := openCache(cfg.Cache.Path)
		if err != nil {
			return outputCommandError(formatter, err)
		}
		defer st.Close()
		job.cache = st
	}

	failed, err := compileOnce(ctx, opts, job, paths, cmd)
	if err != nil {
		return err
	}
	if !opts.Watch {
		if failed > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d of %d file(s) failed to compile", failed, len(paths)))
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watched := append([]string{cfg.Schema}, paths...)
	formatter.VerboseLog("Watching %d file(s). Press Ctrl-C to stop.", len(watched))
	return WatchFiles(ctx, watched, defaultDebounce, opts.logger(), func(changed string) {
		opts.logger().Info("change detected", "file", changed)
		if _, err := compileOnce(ctx, opts, job, paths, cmd); err != nil {
			opts.logger().Error("recompile failed", "error", err)
		}
	})
}

// compileOnce loads the schema, compiles every file and reports. It
// returns the number of failed files; a non-nil error is a command error.
func compileOnce(ctx context.Context, opts *CompileOptions, job compileJob, paths []string, cmd *cobra.Command) (int, error) {
	formatter := opts.formatter(cmd)

	s, err := LoadSchema(job.schemaPath)
	if err != nil {
		return 0, outputCommandError(formatter, err)
	}
	files, err := readFiles(paths)
	if err != nil {
		return 0, outputCommandError(formatter, err)
	}
	formatter.VerboseLog("Compiling %d file(s) for %s", len(files), job.id)

	var rec *metrics.Recorder
	if job.metricsFile != "" {
		rec = metrics.NewRecorder()
	}
	copts := []compiler.Option{
		compiler.WithLimits(opts.Config.Limits),
		compiler.WithLogger(opts.logger()),
		compiler.WithMetrics(rec),
	}
	if job.cache != nil {
		copts = append(copts, compiler.WithCache(job.cache))
	}
	c := compiler.New(s, copts...)

	results, err := CompileFiles(ctx, c, files, job.id, job.params, job.concurrency)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, "compilation interrupted", err)
	}
	if err := rec.WriteFile(job.metricsFile); err != nil {
		return 0, outputCommandError(formatter, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing metrics file: %v", err)})
	}

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	if opts.Output != "" && failed == 0 {
		if err := writeResultsToFile(results, opts.Output); err != nil {
			return 0, outputCommandError(formatter, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
	}
	if err := outputCompileResults(formatter, results, opts.Output); err != nil {
		return 0, err
	}
	return failed, nil
}

// CompileFiles compiles files concurrently, at most limit at a time. A
// failing file does not stop the others; results keep the order of files.
// The returned error is non-nil only when ctx ends first.
func CompileFiles(ctx context.Context, c *compiler.Compiler, files []QueryFile, id backend.ID, params map[string]any, limit int) ([]FileResult, error) {
	results := make([]FileResult, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := c.Compile(ctx, f.Text, id, params)
			results[i] = FileResult{File: f.Path, Result: res}
			if err != nil {
				cliErr := ToCLIError(err)
				results[i].Error = &cliErr
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// outputCompileResults outputs every file result.
func outputCompileResults(formatter *OutputFormatter, results []FileResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(results)
	}

	w := formatter.Writer
	ok := 0
	for _, r := range results {
		if r.Error != nil {
			writeFileError(w, r.File, r.Error)
			continue
		}
		ok++
		writeCompiled(w, r.File, r.Result)
	}
	fmt.Fprintf(w, "Compiled %d of %d file(s)\n", ok, len(results))
	if outputFile != "" && ok == len(results) {
		fmt.Fprintf(w, "Wrote results to %s\n", outputFile)
	}
	return nil
}

// writeCompiled prints one compilation: header, query, parameters, outputs.
func writeCompiled(w io.Writer, file string, res *backend.CompilationResult) {
	fmt.Fprintf(w, "✓ %s (%s)\n\n", file, res.Backend)
	fmt.Fprintln(w, res.Query)
	fmt.Fprintln(w)
	if len(res.Parameters) > 0 {
		fmt.Fprintln(w, "Parameters:")
		for _, p := range res.Parameters {
			if p.Bound {
				fmt.Fprintf(w, "  %s %s = %v\n", p.Name, p.Type, p.Value)
			} else {
				fmt.Fprintf(w, "  %s %s\n", p.Name, p.Type)
			}
		}
	}
	fmt.Fprintln(w, "Outputs:")
	for _, o := range res.Outputs {
		fmt.Fprintf(w, "  %s %s", o.Alias, o.Type)
		if o.Nullable {
			fmt.Fprint(w, " nullable")
		}
		if o.IsCollection {
			fmt.Fprint(w, " collection")
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Fingerprint: %s\n\n", res.Fingerprint)
}

// writeFileError prints a failed file and, for aggregate errors, each
// violation or problem on its own line.
func writeFileError(w io.Writer, file string, e *CLIError) {
	fmt.Fprintf(w, "✗ %s\n", file)
	switch details := e.Details.(type) {
	case []compileerr.Violation:
		for _, v := range details {
			fmt.Fprintf(w, "  %s\n", v)
		}
	case []schema.Problem:
		for _, p := range details {
			fmt.Fprintf(w, "  %s\n", p)
		}
	default:
		fmt.Fprintf(w, "  %s: %s\n", e.Code, e.Message)
	}
	fmt.Fprintln(w)
}

// outputCommandError outputs a command-level error (exit code 2).
func outputCommandError(formatter *OutputFormatter, err error) error {
	cliErr := ToCLIError(err)
	_ = formatter.Error(cliErr.Code, cliErr.Message, cliErr.Details)
	return WrapExitError(ExitCommandError, cliErr.Code, err)
}

// openCache opens the compile cache, creating its directory if needed.
func openCache(path string) (*store.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &LoadError{Code: ErrCodeCache, Message: fmt.Sprintf("creating cache directory: %v", err)}
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeCache, Message: fmt.Sprintf("opening cache: %v", err)}
	}
	return st, nil
}

// writeResultsToFile writes the results to a file as indented JSON.
func writeResultsToFile(results []FileResult, filename string) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
