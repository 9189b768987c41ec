package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldkit/internal/client"
	"github.com/roach88/fieldkit/internal/ir"
)

// dataFlags reads a JSON object from --data or --data-file.
type dataFlags struct {
	Data     string
	DataFile string
}

func (d *dataFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.Data, "data", "", "field values as a JSON object")
	cmd.Flags().StringVar(&d.DataFile, "data-file", "", "read field values from a JSON file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("data", "data-file")
}

func (d *dataFlags) load(stdin io.Reader) (map[string]any, error) {
	raw := []byte(d.Data)
	switch {
	case d.DataFile == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = b
	case d.DataFile != "":
		b, err := os.ReadFile(d.DataFile)
		if err != nil {
			return nil, fmt.Errorf("read data file: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("data must be a JSON object: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and edit queued submissions",
	}
	cmd.AddCommand(
		newQueueListCommand(rootOpts),
		newQueueSubmitCommand(rootOpts),
		newQueueEditCommand(rootOpts),
		newQueueReplaceCommand(rootOpts),
		newQueueStatusCommand(rootOpts),
		newQueueRemoveCommand(rootOpts),
		newQueueClearCommand(rootOpts),
		newQueueDriftCommand(rootOpts),
	)
	return cmd
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List queued submissions in order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, runQueueList)
		},
	}
}

func runQueueList(ctx context.Context, app *App, out *OutputFormatter) error {
	items, err := app.Client.Queue().Get(ctx)
	if err != nil {
		return out.Fail("failed to read queue", err)
	}
	return out.Success(items, func(w io.Writer) {
		if len(items) == 0 {
			fmt.Fprintln(w, "Queue is empty.")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tID\tFORM\tSTATUS\tCREATED\tSCHEMA")
		for i, it := range items {
			created := time.UnixMilli(it.CreatedAt).UTC().Format(time.RFC3339)
			status := string(it.Status)
			if it.LastError != "" {
				status += " (" + it.LastError + ")"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i, it.ID, it.FormName, status, created, shortHash(it.SchemaHash))
		}
		tw.Flush()
	})
}

func newQueueSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	var df dataFlags
	cmd := &cobra.Command{
		Use:   "submit <form>",
		Short: "Queue a submission for a cached form",
		Long: `Queue a submission for a cached form and clear the draft.

The submission records the fingerprint of the cached form so later schema
changes can be detected with "queue drift".

Examples:
  fieldkit queue submit Invoice --data '{"customer":"ACME","qty":2}'
  fieldkit queue submit Invoice --data-file visit.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				data, err := df.load(cmd.InOrStdin())
				if err != nil {
					return out.Fail("invalid data", err)
				}
				item, err := app.Client.Submit(ctx, args[0], data)
				if err != nil {
					return out.Fail("failed to queue submission", err)
				}
				return out.Success(item, func(w io.Writer) {
					fmt.Fprintf(w, "Queued %s (%s)\n", item.ID, item.FormName)
				})
			})
		},
	}
	df.register(cmd)
	return cmd
}

func newQueueEditCommand(rootOpts *RootOptions) *cobra.Command {
	var df dataFlags
	cmd := &cobra.Command{
		Use:           "edit <id>",
		Short:         "Replace the data of a queued submission",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				data, err := df.load(cmd.InOrStdin())
				if err != nil {
					return out.Fail("invalid data", err)
				}
				item, err := app.Client.Queue().Edit(ctx, args[0], data)
				if err != nil {
					return out.Fail("failed to edit submission", err)
				}
				return out.Success(item, func(w io.Writer) {
					fmt.Fprintf(w, "Updated %s\n", item.ID)
				})
			})
		},
	}
	df.register(cmd)
	return cmd
}

func newQueueReplaceCommand(rootOpts *RootOptions) *cobra.Command {
	var df dataFlags
	var status, lastError string
	cmd := &cobra.Command{
		Use:   "replace <index>",
		Short: "Replace the submission at a queue position",
		Long: `Replace the data, status and last error of the submission at a queue
position. The id, form, schema fingerprint and creation time are kept.

Positions shift when submissions are removed; prefer "queue edit" when
the id is known.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				index, err := strconv.Atoi(args[0])
				if err != nil {
					return out.Fail("invalid index", err)
				}
				data, err := df.load(cmd.InOrStdin())
				if err != nil {
					return out.Fail("invalid data", err)
				}
				item := ir.SubmissionItem{Data: data, Status: ir.SubmissionStatus(status), LastError: lastError}
				if err := app.Client.Queue().ReplaceAt(ctx, index, item); err != nil {
					return out.Fail("failed to replace submission", err)
				}
				return out.Success(map[string]int{"replaced": index}, func(w io.Writer) {
					fmt.Fprintf(w, "Replaced submission at %d\n", index)
				})
			})
		},
	}
	df.register(cmd)
	cmd.Flags().StringVar(&status, "status", "", "new status (pending|submitted|failed); empty keeps the current one")
	cmd.Flags().StringVar(&lastError, "last-error", "", "error message to record")
	return cmd
}

func newQueueStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:           "status <id> <pending|submitted|failed>",
		Short:         "Move a submission to a new status",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				status := ir.SubmissionStatus(args[1])
				if !status.Valid() {
					return out.Fail("invalid status", fmt.Errorf("unknown status %q", args[1]))
				}
				item, err := app.Client.Queue().SetStatus(ctx, args[0], status, reason)
				if err != nil {
					return out.Fail("failed to set status", err)
				}
				return out.Success(item, func(w io.Writer) {
					fmt.Fprintf(w, "%s is now %s\n", item.ID, item.Status)
				})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "failure reason, recorded when the status is failed")
	return cmd
}

func newQueueRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <id>",
		Short:         "Remove a submission from the queue",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				if err := app.Client.Queue().Remove(ctx, args[0]); err != nil {
					return out.Fail("failed to remove submission", err)
				}
				return out.Success(map[string]string{"removed": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Removed %s\n", args[0])
				})
			})
		},
	}
}

func newQueueClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:           "clear",
		Short:         "Drop every queued submission",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				out := formatter(rootOpts, cmd)
				_ = out.Error("CLI_ERROR", "refusing to clear the queue without --yes", nil)
				return NewExitError(ExitCommandError, "refusing to clear the queue without --yes")
			}
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				if err := app.Client.Queue().Clear(ctx); err != nil {
					return out.Fail("failed to clear queue", err)
				}
				return out.Success(map[string]bool{"cleared": true}, func(w io.Writer) {
					fmt.Fprintln(w, "Queue cleared.")
				})
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm clearing the queue")
	return cmd
}

func newQueueDriftCommand(rootOpts *RootOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Compare queued submissions with the cached forms",
		Long: `Compare the fingerprint each submission was queued with against the
form currently cached. With --strict the command exits 1 when any
submission has drifted or lost its form.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				return runQueueDrift(ctx, app, out, strict)
			})
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit 1 if any submission drifted")
	return cmd
}

func runQueueDrift(ctx context.Context, app *App, out *OutputFormatter, strict bool) error {
	report, err := app.Client.DriftReport(ctx)
	if err != nil {
		return out.Fail("failed to check drift", err)
	}
	drifted := 0
	for _, d := range report {
		if d.State != client.DriftUnchanged {
			drifted++
		}
	}

	if err := out.Success(report, func(w io.Writer) {
		if len(report) == 0 {
			fmt.Fprintln(w, "Queue is empty.")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tFORM\tSTATE\tQUEUED\tCURRENT")
		for _, d := range report {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.FormName, d.State, shortHash(d.QueuedHash), shortHash(d.CurrentHash))
		}
		tw.Flush()
	}); err != nil {
		return err
	}
	if strict && drifted > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d submission(s) drifted", drifted))
	}
	return nil
}
