package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Schema string
}

// ValidationResult holds the validation result of one query file.
type ValidationResult struct {
	File   string      `json:"file"`
	Valid  bool        `json:"valid"`
	Errors []Violation `json:"errors,omitempty"`
}

// Violation is one reportable problem. Non-aggregate errors (parse, IR
// build, limits) become a single Violation.
type Violation struct {
	Code     string `json:"code"`
	Position string `json:"position,omitempty"`
	Path     string `json:"path,omitempty"`
	Message  string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <query-file|pattern>...",
		Short: "Validate queries without generating backend code",
		Long: `Validate query files against a schema without generating backend code.

Parses, validates and lowers each query to IR. Every schema and directive
violation in a file is reported, not just the first.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Schema, "schema", "s", "", "schema file (.yaml, .cue or CUE package dir)")

	return cmd
}

func runValidate(opts *ValidateOptions, args []string, cmd *cobra.Command) error {
	if err := opts.ensure(cmd); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	s, err := LoadSchema(opts.Config.Schema)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	files, err := ReadQueryFiles(args)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	formatter.VerboseLog("Validating %d file(s)", len(files))

	c := compiler.New(s, compiler.WithLimits(opts.Config.Limits), compiler.WithLogger(opts.logger()))
	results := make([]ValidationResult, len(files))
	invalid := 0
	for i, f := range files {
		results[i] = ValidationResult{File: f.Path, Valid: true}
		if err := c.Check(f.Text); err != nil {
			results[i].Valid = false
			results[i].Errors = violations(err)
			invalid++
		}
	}

	if formatter.Format == "json" {
		if err := formatter.Success(results); err != nil {
			return err
		}
	} else {
		outputValidateText(formatter.Writer, results)
	}
	if invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed: %d of %d file(s) invalid", invalid, len(files)))
	}
	return nil
}

// violations flattens err into reportable rows.
func violations(err error) []Violation {
	var ve *compileerr.ValidationError
	if errors.As(err, &ve) {
		out := make([]Violation, len(ve.Violations))
		for i, v := range ve.Violations {
			out[i] = Violation{Code: v.Code, Position: v.Pos.String(), Path: v.Path, Message: v.Message}
		}
		return out
	}
	var pe *compileerr.ParseError
	if errors.As(err, &pe) {
		return []Violation{{Code: pe.ErrorCode(), Position: pe.Pos.String(), Message: pe.Message}}
	}
	cliErr := ToCLIError(err)
	return []Violation{{Code: cliErr.Code, Message: cliErr.Message}}
}

// outputValidateText prints a summary line per file and one table of all
// violations.
func outputValidateText(w io.Writer, results []ValidationResult) {
	var rows []table.Row
	for _, r := range results {
		if r.Valid {
			fmt.Fprintf(w, "✓ %s\n", r.File)
			continue
		}
		fmt.Fprintf(w, "✗ %s (%d error(s))\n", r.File, len(r.Errors))
		for _, v := range r.Errors {
			rows = append(rows, table.Row{r.File, v.Code, v.Position, v.Path, v.Message})
		}
	}
	if len(rows) == 0 {
		return
	}

	fmt.Fprintln(w)
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"File", "Code", "Position", "Path", "Message"})
	t.AppendRows(rows)
	t.Render()
}
