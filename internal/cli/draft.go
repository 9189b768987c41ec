package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldkit/internal/ir"
)

// DraftView is the output of draft show.
type DraftView struct {
	State string       `json:"state"`
	Data  ir.DraftData `json:"data,omitempty"`
	Error string       `json:"error,omitempty"`
}

// NewDraftCommand creates the draft command group.
func NewDraftCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Inspect the in-progress form draft",
	}
	cmd.AddCommand(
		newDraftShowCommand(rootOpts),
		newDraftSaveCommand(rootOpts),
		newDraftClearCommand(rootOpts),
	)
	return cmd
}

func newDraftShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Print the saved draft",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, runDraftShow)
		},
	}
}

func runDraftShow(ctx context.Context, app *App, out *OutputFormatter) error {
	res, err := app.Client.Draft().Restore(ctx)
	if err != nil {
		return out.Fail("failed to read draft", err)
	}
	view := DraftView{State: res.State.String(), Data: res.Value}
	if res.Err != nil {
		view.Error = res.Err.Error()
	}
	return out.Success(view, func(w io.Writer) {
		switch res.State {
		case ir.ReadFound:
			b, _ := json.MarshalIndent(res.Value, "", "  ")
			fmt.Fprintln(w, string(b))
		case ir.ReadCorrupt:
			fmt.Fprintln(w, "Draft is unreadable; it will be quarantined on the next save.")
		default:
			fmt.Fprintln(w, "No draft saved.")
		}
	})
}

func newDraftSaveCommand(rootOpts *RootOptions) *cobra.Command {
	var df dataFlags
	cmd := &cobra.Command{
		Use:           "save",
		Short:         "Overwrite the draft",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				data, err := df.load(cmd.InOrStdin())
				if err != nil {
					return out.Fail("invalid data", err)
				}
				if err := app.Client.Draft().Save(ctx, data); err != nil {
					return out.Fail("failed to save draft", err)
				}
				return out.Success(map[string]int{"fields": len(data)}, func(w io.Writer) {
					fmt.Fprintf(w, "Draft saved (%d fields)\n", len(data))
				})
			})
		},
	}
	df.register(cmd)
	return cmd
}

func newDraftClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear",
		Short:         "Discard the draft",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				if err := app.Client.Draft().Clear(ctx); err != nil {
					return out.Fail("failed to clear draft", err)
				}
				return out.Success(map[string]bool{"cleared": true}, func(w io.Writer) {
					fmt.Fprintln(w, "Draft cleared.")
				})
			})
		},
	}
}
