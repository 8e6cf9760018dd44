package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/gqlc/internal/backend"
)

// BackendInfo describes one backend.
type BackendInfo struct {
	ID         backend.ID `json:"id"`
	Relational bool       `json:"relational"`
	Executable bool       `json:"executable"`
}

// NewBackendsCommand creates the backends command.
func NewBackendsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "backends",
		Short:         "List target backends",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.ensure(cmd); err != nil {
				return err
			}
			formatter := rootOpts.formatter(cmd)
			infos := ListBackends()
			if formatter.Format == "json" {
				return formatter.Success(infos)
			}
			for _, b := range infos {
				kind := "graph"
				if b.Relational {
					kind = "relational"
				}
				runnable := ""
				if b.Executable {
					runnable = ", runnable"
				}
				fmt.Fprintf(formatter.Writer, "%-10s %s%s\n", b.ID, kind, runnable)
			}
			return nil
		},
	}
}

// ListBackends describes every backend in presentation order.
func ListBackends() []BackendInfo {
	ids := backend.All()
	out := make([]BackendInfo, len(ids))
	for i, id := range ids {
		out[i] = BackendInfo{
			ID:         id,
			Relational: id.Relational(),
			Executable: id.Relational() || id == backend.Cypher,
		}
	}
	return out
}
