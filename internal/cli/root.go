package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/gqlc/internal/config"
)

// RootOptions holds global flags for all commands, and the configuration
// merged from them before any command runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Config and Logger are set by the root PersistentPreRunE.
	Config *config.Config
	Logger *slog.Logger
}

// Version is stamped at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the gqlc CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "gqlc",
		Short: "gqlc - graph query compiler",
		Long: `Compile directive-annotated graph queries into SQL (sqlite, postgres),
Gremlin, MATCH and Cypher.

Settings are read from gqlc.yaml, GQLC_* environment variables and flags,
in increasing precedence.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default: ./gqlc.yaml if present)")

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewIRCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewBackendsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewMCPCommand(opts))
	cmd.AddCommand(NewCacheCommand(opts))

	return cmd
}

// load merges configuration for the command about to run and builds the
// logger. The merged format and verbosity replace the raw flag values.
func (o *RootOptions) load(cmd *cobra.Command) error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	cfg, err := config.Load(o.ConfigFile, cmd.Flags())
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeConfig, err)
	}
	level, _ := cfg.LogLevel()

	o.Config = cfg
	// Commands built without the root have no --format flag; keep the
	// format they were given.
	if cmd.Flags().Lookup("format") != nil {
		o.Format = cfg.Format
	}
	o.Verbose = o.Verbose || level <= slog.LevelDebug
	o.Logger = newLogger(cmd.ErrOrStderr(), level)
	if cfg.File != "" {
		o.Logger.Debug("loaded config", "file", cfg.File)
	}
	return nil
}

// ensure loads configuration when the root pre-run has not.
func (o *RootOptions) ensure(cmd *cobra.Command) error {
	if o.Config != nil {
		return nil
	}
	return o.load(cmd)
}

// newLogger builds the CLI logger: text on stderr so that stdout stays
// parseable in json mode.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// formatter returns an OutputFormatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// logger returns the configured logger, or a discarding one when a
// command runs without the root pre-run (unit tests).
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
