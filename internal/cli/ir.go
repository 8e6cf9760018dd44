package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/gqlc/internal/compiler"
	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/schema"
)

// IROptions holds flags for the ir command.
type IROptions struct {
	*RootOptions
	Schema string
}

// IRDump is the JSON form of a lowered query.
type IRDump struct {
	File    string                 `json:"file"`
	Name    string                 `json:"name,omitempty"`
	Blocks  []any                  `json:"blocks"`
	Params  map[string]schema.Type `json:"params"`
	Outputs []ir.OutputInfo        `json:"outputs"`
}

// NewIRCommand creates the ir command.
func NewIRCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IROptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ir <query-file>",
		Short: "Print the backend-independent IR of a query",
		Long: `Parse, validate and lower a query, then print its IR blocks.

The IR is what every backend consumes; use it to see how directives were
lowered before looking at generated code.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIR(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Schema, "schema", "s", "", "schema file (.yaml, .cue or CUE package dir)")

	return cmd
}

func runIR(opts *IROptions, path string, cmd *cobra.Command) error {
	if err := opts.ensure(cmd); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	s, err := LoadSchema(opts.Config.Schema)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	files, err := ReadQueryFiles([]string{path})
	if err != nil {
		return outputCommandError(formatter, err)
	}

	c := compiler.New(s, compiler.WithLimits(opts.Config.Limits), compiler.WithLogger(opts.logger()))
	plan, err := c.Plan(files[0].Text)
	if err != nil {
		cliErr := ToCLIError(err)
		if formatter.Format == "json" {
			_ = formatter.Error(cliErr.Code, cliErr.Message, cliErr.Details)
		} else {
			writeFileError(formatter.Writer, path, &cliErr)
		}
		return WrapExitError(ExitFailure, cliErr.Code, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(IRDump{
			File:    path,
			Name:    plan.Name,
			Blocks:  ir.Encode(plan.Blocks),
			Params:  plan.Params,
			Outputs: plan.Outputs,
		})
	}

	w := formatter.Writer
	fmt.Fprint(w, ir.Format(plan.Blocks))
	if len(plan.ParamOrder) > 0 {
		fmt.Fprintln(w, "Parameters:")
		for _, name := range plan.ParamOrder {
			fmt.Fprintf(w, "  $%s %s\n", name, plan.Params[name])
		}
	}
	fmt.Fprintf(w, "Blocks: %d, outputs: %d\n", len(plan.Blocks), len(plan.Outputs))
	return nil
}
