package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldkit/internal/ir"
	"github.com/roach88/fieldkit/internal/store"
)

// QuarantineEntry is one preserved copy of unreadable stored data.
type QuarantineEntry struct {
	Key   string `json:"key"`
	Bytes int    `json:"bytes"`
	Value string `json:"value,omitempty"`
}

// NewQuarantineCommand creates the quarantine command group.
func NewQuarantineCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Inspect copies of corrupt data set aside before overwrite",
	}
	cmd.AddCommand(
		newQuarantineListCommand(rootOpts),
		newQuarantineShowCommand(rootOpts),
		newQuarantinePurgeCommand(rootOpts),
	)
	return cmd
}

func quarantineEntries(ctx context.Context, kv store.KV) ([]QuarantineEntry, error) {
	keys, err := store.KeysWithPrefix(ctx, kv, store.QuarantinePrefix)
	if err != nil {
		return nil, err
	}
	entries, err := kv.MultiGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([]QuarantineEntry, 0, len(entries))
	for _, e := range entries {
		if e.Found {
			out = append(out, QuarantineEntry{Key: e.Key, Bytes: len(e.Value)})
		}
	}
	return out, nil
}

func newQuarantineListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List quarantined values",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				entries, err := quarantineEntries(ctx, app.KV)
				if err != nil {
					return out.Fail("failed to list quarantine", err)
				}
				return out.Success(entries, func(w io.Writer) {
					if len(entries) == 0 {
						fmt.Fprintln(w, "Nothing quarantined.")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "KEY\tBYTES")
					for _, e := range entries {
						fmt.Fprintf(tw, "%s\t%d\n", e.Key, e.Bytes)
					}
					tw.Flush()
				})
			})
		},
	}
}

func newQuarantineShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <key>",
		Short:         "Print a quarantined value verbatim",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				v, ok, err := app.KV.Get(ctx, args[0])
				if err != nil {
					return out.Fail("failed to read quarantine", err)
				}
				if !ok {
					return out.Fail("failed to read quarantine", ir.Errorf(ir.ErrCodeNotFound, "quarantine.show", args[0], "no such key"))
				}
				entry := QuarantineEntry{Key: args[0], Bytes: len(v), Value: v}
				return out.Success(entry, func(w io.Writer) {
					fmt.Fprintln(w, v)
				})
			})
		},
	}
}

func newQuarantinePurgeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "purge",
		Short:         "Delete every quarantined value",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				entries, err := quarantineEntries(ctx, app.KV)
				if err != nil {
					return out.Fail("failed to list quarantine", err)
				}
				for _, e := range entries {
					if err := app.KV.Remove(ctx, e.Key); err != nil {
						return out.Fail("failed to purge quarantine", err)
					}
				}
				return out.Success(map[string]int{"purged": len(entries)}, func(w io.Writer) {
					fmt.Fprintf(w, "Purged %d quarantined value(s)\n", len(entries))
				})
			})
		},
	}
}
