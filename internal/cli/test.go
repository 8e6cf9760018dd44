package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/roach88/gqlc/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario name filter (glob pattern)
	GoldenDir string // golden file directory; "" means <scenario dir>/../golden
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-pattern>...",
		Short: "Run conformance scenarios",
		Long: `Run conformance scenarios using the harness framework.

Each scenario compiles a query for its backends, executes the sqlite
result against its fixtures and checks its assertions. Scenarios marked
golden are also compared against golden files.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, malformed scenarios, etc.)

Examples:
  gqlc test 'scenarios/*.yaml'
  gqlc test 'scenarios/**/*.yaml' --filter "optional_*"
  gqlc test 'scenarios/*.yaml' --update
  gqlc test 'scenarios/*.yaml' --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by name glob")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "golden file directory (default: ../golden next to each scenario)")

	return cmd
}

func runTests(opts *TestOptions, patterns []string, cmd *cobra.Command) error {
	if err := opts.ensure(cmd); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	var scenarios []scenarioFile
	for _, pattern := range patterns {
		loaded, err := loadScenarioFiles(pattern)
		if err != nil {
			return outputCommandError(formatter, err)
		}
		scenarios = append(scenarios, loaded...)
	}
	if opts.Filter != "" {
		if !doublestar.ValidatePattern(opts.Filter) {
			return outputCommandError(formatter, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("invalid filter pattern %q", opts.Filter)})
		}
		kept := scenarios[:0]
		for _, sf := range scenarios {
			if ok, _ := doublestar.Match(opts.Filter, sf.scenario.Name); ok {
				kept = append(kept, sf)
			}
		}
		scenarios = kept
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarios)),
		Total:     len(scenarios),
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sf := range scenarios {
		sr := runScenario(ctx, opts, sf)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if formatter.Format == "json" {
		if err := outputTestJSON(cmd, result); err != nil {
			return err
		}
	} else {
		outputTestText(cmd, result)
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
	}
	return nil
}

type scenarioFile struct {
	path     string
	scenario *harness.Scenario
}

// loadScenarioFiles loads every scenario matching pattern. A malformed
// scenario is a command error, not a failure.
func loadScenarioFiles(pattern string) ([]scenarioFile, error) {
	paths, err := ExpandQueryFiles([]string{pattern})
	if err != nil {
		return nil, err
	}
	out := make([]scenarioFile, 0, len(paths))
	for _, p := range paths {
		sc, err := harness.LoadScenario(p)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%s: %v", p, err)}
		}
		out = append(out, scenarioFile{path: p, scenario: sc})
	}
	return out, nil
}

// runScenario executes a single scenario and returns the result.
func runScenario(ctx context.Context, opts *TestOptions, sf scenarioFile) ScenarioResult {
	sc := sf.scenario
	res, err := harness.Run(ctx, sc, opts.logger())
	if err != nil {
		return ScenarioResult{Name: sc.Name, Errors: []string{fmt.Sprintf("execution failed: %v", err)}}
	}
	errs := res.Errors
	if sc.Golden {
		dir := opts.GoldenDir
		if dir == "" {
			dir = filepath.Join(filepath.Dir(sf.path), "..", "golden")
		}
		msgs, err := harness.CompareGolden(dir, sc, res, opts.Update)
		if err != nil {
			return ScenarioResult{Name: sc.Name, Errors: []string{err.Error()}}
		}
		errs = append(errs, msgs...)
	}
	return ScenarioResult{Name: sc.Name, Pass: len(errs) == 0, Errors: errs}
}

func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	return json.NewEncoder(cmd.OutOrStdout()).Encode(CLIResponse{
		Status: "ok",
		Data:   result,
	})
}

func outputTestText(cmd *cobra.Command, result TestResult) {
	w := cmd.OutOrStdout()
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, sr := range result.Scenarios {
		if sr.Pass {
			fmt.Fprintf(w, "✓ %s\n", sr.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
