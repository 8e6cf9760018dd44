package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/store"
)

// CacheStatsReport is the JSON form of cache stats.
type CacheStatsReport struct {
	Path    string        `json:"path"`
	Stats   store.Stats   `json:"stats"`
	Entries []store.Entry `json:"entries,omitempty"`
}

// NewCacheCommand creates the cache command and its subcommands.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the compile cache",
		Long: `Inspect or clear the compile cache written by compile --cache.

The cache location comes from --cache, GQLC_CACHE__PATH or cache.path in
gqlc.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&path, "cache", "", "compile cache database")

	var entries bool
	statsCmd := &cobra.Command{
		Use:           "stats",
		Short:         "Show cache size and hit counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(rootOpts, cmd, entries)
		},
	}
	statsCmd.Flags().BoolVar(&entries, "entries", false, "list every cached entry")

	clearCmd := &cobra.Command{
		Use:           "clear",
		Short:         "Remove every cached result",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheClear(rootOpts, cmd)
		},
	}

	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}

// openExistingCache opens the configured cache. A missing file is an
// error rather than a silently created empty cache.
func openExistingCache(opts *RootOptions, cmd *cobra.Command) (*store.Store, string, error) {
	if err := opts.ensure(cmd); err != nil {
		return nil, "", err
	}
	path := opts.Config.Cache.Path
	if path == "" {
		return nil, "", &LoadError{Code: ErrCodeCache, Message: "no cache configured: use --cache or set cache.path"}
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, path, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("cache not found: %s", path)}
	}
	st, err := openCache(path)
	return st, path, err
}

func runCacheStats(opts *RootOptions, cmd *cobra.Command, listEntries bool) error {
	st, path, err := openExistingCache(opts, cmd)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return outputCommandError(opts.formatter(cmd), err)
	}
	defer st.Close()
	formatter := opts.formatter(cmd)

	ctx := cmd.Context()
	report := CacheStatsReport{Path: path}
	if report.Stats, err = st.Stats(ctx); err != nil {
		return outputCommandError(formatter, &LoadError{Code: ErrCodeCache, Message: err.Error()})
	}
	if listEntries {
		if report.Entries, err = st.Entries(ctx); err != nil {
			return outputCommandError(formatter, &LoadError{Code: ErrCodeCache, Message: err.Error()})
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(report)
	}
	outputCacheText(formatter.Writer, report)
	return nil
}

func outputCacheText(w io.Writer, report CacheStatsReport) {
	fmt.Fprintf(w, "%s: %d entries, %d hits\n", report.Path, report.Stats.Entries, report.Stats.Hits)
	if report.Stats.Entries == 0 {
		return
	}
	fmt.Fprintln(w)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if report.Entries == nil {
		t.AppendHeader(table.Row{"Backend", "Entries"})
		for _, id := range sortedBackends(report.Stats.ByBackend) {
			t.AppendRow(table.Row{id, report.Stats.ByBackend[id]})
		}
		t.Render()
		return
	}
	t.AppendHeader(table.Row{"Backend", "Key", "Fingerprint", "Hits"})
	for _, e := range report.Entries {
		t.AppendRow(table.Row{e.Backend, shortHash(e.Key), shortHash(e.Fingerprint), e.Hits})
	}
	t.Render()
}

func runCacheClear(opts *RootOptions, cmd *cobra.Command) error {
	st, path, err := openExistingCache(opts, cmd)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return outputCommandError(opts.formatter(cmd), err)
	}
	defer st.Close()
	formatter := opts.formatter(cmd)

	n, err := st.Clear(cmd.Context())
	if err != nil {
		return outputCommandError(formatter, &LoadError{Code: ErrCodeCache, Message: err.Error()})
	}
	opts.logger().Info("cache cleared", "path", path, "removed", n)
	if formatter.Format == "json" {
		return formatter.Success(map[string]any{"path": path, "removed": n})
	}
	fmt.Fprintf(formatter.Writer, "Removed %d entries from %s\n", n, path)
	return nil
}

// sortedBackends lists the backends present in counts in presentation
// order.
func sortedBackends(counts map[backend.ID]int64) []backend.ID {
	var ids []backend.ID
	for _, id := range backend.All() {
		if counts[id] > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
