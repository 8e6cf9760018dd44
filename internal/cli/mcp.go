package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/compiler"
)

// MCPOptions holds flags for the mcp command.
type MCPOptions struct {
	*RootOptions
	Schema  string
	Backend string
}

// CompileQueryInput is the argument object of the compile-query tool.
type CompileQueryInput struct {
	Query   string                     `json:"query"`
	Backend string                     `json:"backend,omitempty"`
	Params  map[string]json.RawMessage `json:"params,omitempty"`
}

// ValidateQueryInput is the argument object of the validate-query tool.
type ValidateQueryInput struct {
	Query string `json:"query"`
}

// ValidateQueryOutput is the result of the validate-query tool.
type ValidateQueryOutput struct {
	Valid  bool        `json:"valid"`
	Errors []Violation `json:"errors,omitempty"`
}

// NewMCPCommand creates the mcp command.
func NewMCPCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MCPOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the compiler as MCP tools over stdio",
		Long: `Serve compile-query and validate-query as Model Context Protocol tools
over stdin/stdout, against the schema given with --schema.

Logs go to stderr; stdout carries only protocol messages.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Schema, "schema", "s", "", "schema file (.yaml, .cue or CUE package dir)")
	cmd.Flags().StringVarP(&opts.Backend, "backend", "b", "", "default backend for compile-query")

	return cmd
}

func runMCP(opts *MCPOptions, cmd *cobra.Command) error {
	if err := opts.ensure(cmd); err != nil {
		return err
	}
	s, err := LoadSchema(opts.Config.Schema)
	if err != nil {
		// stdout is reserved for the protocol.
		return WrapExitError(ExitCommandError, "failed to load schema", err)
	}
	logger := opts.logger()
	c := compiler.New(s, compiler.WithLimits(opts.Config.Limits), compiler.WithLogger(logger))

	srv := server.NewMCPServer("gqlc", Version, server.WithToolCapabilities(false))
	srv.AddTools(MCPTools(c, opts.Config.BackendID(), logger)...)

	stdio := server.NewStdioServer(srv)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Info("serving MCP over stdio", "tools", 2)
	if err := stdio.Listen(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitCommandError, "mcp server failed", err)
	}
	return nil
}

// MCPTools returns the compiler tools. defaultBackend is used when a
// compile-query call names none; it may be "".
func MCPTools(c *compiler.Compiler, defaultBackend backend.ID, logger *slog.Logger) []server.ServerTool {
	return []server.ServerTool{
		{Tool: CompileQuerySpec(), Handler: CompileQueryHandler(c, defaultBackend, logger)},
		{Tool: ValidateQuerySpec(), Handler: ValidateQueryHandler(c, logger)},
	}
}

// CompileQuerySpec describes the compile-query tool.
func CompileQuerySpec() mcp.Tool {
	return mcp.NewTool("compile-query",
		mcp.WithDescription("Compile a directive-annotated graph query for one backend (sqlite, postgres, gremlin, match or cypher). Returns the generated query text, its parameters and output columns as JSON."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The query text, e.g. { Person { name @output(name: \"n\") } }")),
		mcp.WithString("backend", mcp.Description("Target backend. Defaults to the server's configured backend."), mcp.Enum("sqlite", "postgres", "gremlin", "match", "cypher")),
		mcp.WithObject("params", mcp.Description("Parameter values bound at compile time, keyed by name without the $ sigil.")),
		mcp.WithTitleAnnotation("Compile Query"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

// ValidateQuerySpec describes the validate-query tool.
func ValidateQuerySpec() mcp.Tool {
	return mcp.NewTool("validate-query",
		mcp.WithDescription("Check a graph query against the schema without generating code. Reports every violation found."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The query text")),
		mcp.WithTitleAnnotation("Validate Query"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

// CompileQueryHandler returns the handler of the compile-query tool.
func CompileQueryHandler(c *compiler.Compiler, defaultBackend backend.ID, logger *slog.Logger) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args CompileQueryInput
		if err := request.BindArguments(&args); err != nil {
			logger.Error("error binding arguments", "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		if args.Query == "" {
			return mcp.NewToolResultError("query parameter is required"), nil
		}

		id := defaultBackend
		if args.Backend != "" {
			parsed, err := backend.Parse(args.Backend)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			id = parsed
		}
		if id == "" {
			return mcp.NewToolResultError("backend parameter is required (no default backend configured)"), nil
		}

		params, err := decodeToolParams(args.Params)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		res, err := c.Compile(ctx, args.Query, id, params)
		if err != nil {
			return toolError(ToCLIError(err)), nil
		}
		return toolJSON(res)
	}
}

// ValidateQueryHandler returns the handler of the validate-query tool.
func ValidateQueryHandler(c *compiler.Compiler, logger *slog.Logger) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ValidateQueryInput
		if err := request.BindArguments(&args); err != nil {
			logger.Error("error binding arguments", "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		if args.Query == "" {
			return mcp.NewToolResultError("query parameter is required"), nil
		}

		out := ValidateQueryOutput{Valid: true}
		if err := c.Check(args.Query); err != nil {
			out.Valid = false
			out.Errors = violations(err)
		}
		return toolJSON(out)
	}
}

// decodeToolParams converts raw JSON values with integer precision kept.
func decodeToolParams(raw map[string]json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(raw))
	for name, data := range raw {
		v, err := decodeParam(data)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		params[name] = v
	}
	return params, nil
}

func toolJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func toolError(e CLIError) *mcp.CallToolResult {
	data, err := json.Marshal(e)
	if err != nil {
		return mcp.NewToolResultError(e.Message)
	}
	return mcp.NewToolResultError(string(data))
}
