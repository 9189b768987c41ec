package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldkit/internal/ir"
)

// FormSummary is the listing view of one cached form.
type FormSummary struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Fields      int    `json:"fields"`
	Corrupt     bool   `json:"corrupt,omitempty"`
}

// FetchResult is the outcome of downloading one form.
type FetchResult struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewFormsCommand creates the forms command group.
func NewFormsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forms",
		Short: "Manage cached form definitions",
	}
	cmd.AddCommand(
		newFormsListCommand(rootOpts),
		newFormsRemoteCommand(rootOpts),
		newFormsFetchCommand(rootOpts),
		newFormsShowCommand(rootOpts),
		newFormsEvictCommand(rootOpts),
	)
	return cmd
}

func newFormsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List forms available offline",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, runFormsList)
		},
	}
}

func runFormsList(ctx context.Context, app *App, out *OutputFormatter) error {
	schemas := app.Client.Schemas()
	names, err := schemas.ListCachedNames(ctx)
	if err != nil {
		return out.Fail("failed to list forms", err)
	}

	forms := make([]FormSummary, 0, len(names))
	for _, name := range names {
		res, err := schemas.Lookup(ctx, name)
		if err != nil {
			return out.Fail("failed to read form", err)
		}
		fs := FormSummary{Name: name}
		switch res.State {
		case ir.ReadFound:
			fs.Fingerprint = res.Value.Fingerprint()
			fs.Fields = len(res.Value.Fields)
		case ir.ReadCorrupt:
			fs.Corrupt = true
		}
		forms = append(forms, fs)
	}

	return out.Success(forms, func(w io.Writer) {
		if len(forms) == 0 {
			fmt.Fprintln(w, "No forms cached.")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tFIELDS\tFINGERPRINT")
		for _, f := range forms {
			fp := shortHash(f.Fingerprint)
			if f.Corrupt {
				fp = "(corrupt)"
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\n", f.Name, f.Fields, fp)
		}
		tw.Flush()
	})
}

func newFormsRemoteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remote",
		Short:         "List forms served by the metadata server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				app.DetectConnectivity(ctx)
				names, err := app.Client.RemoteForms(ctx)
				if err != nil {
					return out.Fail("failed to list remote forms", err)
				}
				return out.Success(names, func(w io.Writer) {
					for _, n := range names {
						fmt.Fprintln(w, n)
					}
				})
			})
		},
	}
}

func newFormsFetchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <name>...",
		Short: "Download forms for offline use",
		Long: `Download one or more forms from the metadata server and cache them.

A form that fails to download keeps its previously cached copy.

Examples:
  fieldkit forms fetch "Site Visit" Invoice
  fieldkit forms fetch Invoice --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				return runFormsFetch(ctx, app, out, args)
			})
		},
	}
}

func runFormsFetch(ctx context.Context, app *App, out *OutputFormatter, names []string) error {
	app.DetectConnectivity(ctx)
	results, err := app.Client.DownloadForms(ctx, names)
	if err != nil {
		return out.Fail("failed to download forms", err)
	}

	view := make([]FetchResult, len(results))
	failed := 0
	for i, r := range results {
		view[i] = FetchResult{Name: r.Name, Fingerprint: r.Fingerprint}
		if r.Err != nil {
			view[i].Error = r.Err.Error()
			failed++
		}
	}

	if err := out.Success(view, func(w io.Writer) {
		for _, r := range view {
			if r.Error != "" {
				fmt.Fprintf(w, "FAIL  %s: %s\n", r.Name, r.Error)
				continue
			}
			fmt.Fprintf(w, "ok    %s %s\n", r.Name, shortHash(r.Fingerprint))
		}
	}); err != nil {
		return err
	}
	if failed > 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("%d of %d forms failed to download", failed, len(view)))
	}
	return nil
}

func newFormsShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <name>",
		Short:         "Print a cached form definition",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				return runFormsShow(ctx, app, out, args[0])
			})
		},
	}
}

func runFormsShow(ctx context.Context, app *App, out *OutputFormatter, name string) error {
	s, err := app.Client.Schemas().ReadLocal(ctx, name)
	if err != nil {
		return out.Fail("failed to read form", err)
	}
	if s == nil {
		return out.Fail("failed to read form", ir.Errorf(ir.ErrCodeNotFound, "forms.show", name, "form is not cached"))
	}

	data := map[string]any{
		"schema":      s,
		"fingerprint": s.Fingerprint(),
	}
	return out.Success(data, func(w io.Writer) {
		fmt.Fprintf(w, "%s (%s)\n", s.Name, s.Fingerprint())
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FIELD\tTYPE\tLABEL")
		for _, f := range s.Fields {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Fieldname, f.Fieldtype, f.Label)
		}
		tw.Flush()
	})
}

func newFormsEvictCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "evict <name>",
		Short:         "Remove a form from the offline cache",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				if err := app.Client.Schemas().Evict(ctx, args[0]); err != nil {
					return out.Fail("failed to evict form", err)
				}
				return out.Success(map[string]string{"evicted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Evicted %s\n", args[0])
				})
			})
		},
	}
}

// shortHash truncates a fingerprint for tables.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
