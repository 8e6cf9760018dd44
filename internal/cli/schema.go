package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/gqlc/internal/schema"
)

// SchemaReport summarizes a consistent schema.
type SchemaReport struct {
	File  string       `json:"file"`
	Types []TypeReport `json:"types"`
	Edges []EdgeReport `json:"edges"`
}

// TypeReport is one vertex type.
type TypeReport struct {
	Name       string   `json:"name"`
	Table      string   `json:"table,omitempty"`
	Label      string   `json:"label"`
	Properties []string `json:"properties"`
}

// EdgeReport is one edge.
type EdgeReport struct {
	Name        string `json:"name"`
	From        string `json:"from"`
	To          string `json:"to"`
	Fields      string `json:"fields"`
	Cardinality string `json:"cardinality"`
	Recursive   bool   `json:"recursive"`
}

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect schema files",
	}
	cmd.AddCommand(newSchemaCheckCommand(rootOpts))
	return cmd
}

func newSchemaCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <schema-file>",
		Short: "Load a schema and report its types and edges",
		Long: `Load a YAML or CUE schema and check that it is self-consistent.

Every problem is reported, not just the first. Exits 1 when the schema is
inconsistent and 2 when it cannot be read.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaCheck(opts, args[0], cmd)
		},
	}
}

func runSchemaCheck(opts *RootOptions, path string, cmd *cobra.Command) error {
	if err := opts.ensure(cmd); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	s, err := schema.Load(path)
	if err != nil {
		var se *schema.Error
		if !errors.As(err, &se) {
			return outputCommandError(formatter, err)
		}
		if formatter.Format == "json" {
			_ = formatter.Error(ErrCodeSchema, fmt.Sprintf("schema is inconsistent (%d problem(s))", len(se.Problems)), se.Problems)
		} else {
			fmt.Fprintf(formatter.Writer, "✗ %s\n", path)
			for _, p := range se.Problems {
				fmt.Fprintf(formatter.Writer, "  %s\n", p)
			}
		}
		return WrapExitError(ExitFailure, "schema check failed", err)
	}

	report := buildSchemaReport(path, s)
	if formatter.Format == "json" {
		return formatter.Success(report)
	}
	outputSchemaText(formatter.Writer, report)
	return nil
}

func buildSchemaReport(path string, s *schema.Schema) SchemaReport {
	report := SchemaReport{File: path, Types: []TypeReport{}, Edges: []EdgeReport{}}
	for _, name := range s.VertexNames() {
		v, _ := s.Vertex(name)
		props := make([]string, len(v.Properties))
		for i, p := range v.Properties {
			props[i] = p.Name + " " + p.Type.String()
		}
		report.Types = append(report.Types, TypeReport{Name: v.Name, Table: v.Table, Label: v.Label, Properties: props})
	}
	for _, e := range s.Edges() {
		report.Edges = append(report.Edges, EdgeReport{
			Name:        e.Name,
			From:        e.From,
			To:          e.To,
			Fields:      e.OutField + " / " + e.InField,
			Cardinality: string(e.Cardinality),
			Recursive:   e.Recursive,
		})
	}
	return report
}

func outputSchemaText(w io.Writer, report SchemaReport) {
	fmt.Fprintf(w, "✓ %s: %d type(s), %d edge(s)\n\n", report.File, len(report.Types), len(report.Edges))

	types := table.NewWriter()
	types.SetOutputMirror(w)
	types.SetStyle(table.StyleLight)
	types.AppendHeader(table.Row{"Type", "Table", "Label", "Properties"})
	for _, t := range report.Types {
		types.AppendRow(table.Row{t.Name, t.Table, t.Label, strings.Join(t.Properties, ", ")})
	}
	types.Render()

	if len(report.Edges) == 0 {
		return
	}
	fmt.Fprintln(w)
	edges := table.NewWriter()
	edges.SetOutputMirror(w)
	edges.SetStyle(table.StyleLight)
	edges.AppendHeader(table.Row{"Edge", "From", "To", "Fields", "Cardinality", "Recursive"})
	for _, e := range report.Edges {
		edges.AppendRow(table.Row{e.Name, e.From, e.To, e.Fields, e.Cardinality, e.Recursive})
	}
	edges.Render()
}
