package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/fieldkit/internal/api"
	"github.com/roach88/fieldkit/internal/connectivity"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
	Probe  bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local JSON API",
		Long: `Serve the form cache, submission queue and draft over a local JSON API.

With --probe (or probe.enabled in the config) the metadata server is
checked periodically and the connectivity state follows the result.
Otherwise the state starts unknown and is set with PUT /connectivity.

Examples:
  fieldkit serve
  fieldkit serve --listen 127.0.0.1:9000 --probe --remote https://erp.example.com`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				return runServe(ctx, opts, app, out)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&opts.Probe, "probe", false, "probe the metadata server for connectivity")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, app *App, out *OutputFormatter) error {
	addr := app.Config.Server.Listen
	if opts.Listen != "" {
		addr = opts.Listen
	}

	var prober *connectivity.Prober
	switch {
	case opts.Offline:
		app.Client.Signal().Set(connectivity.Offline)
	case opts.Probe || app.Config.Probe.Enabled:
		if prober = app.Prober(); prober == nil {
			return out.Fail("cannot probe", errors.New("no probe URL or remote base URL configured"))
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return out.Fail("failed to listen", err)
	}

	srv := &http.Server{
		Handler: api.New(app.Client,
			api.WithLogger(app.Logger),
			api.WithGatherer(app.Registry),
		),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	out.VerboseLog("Store: %s (%s)", app.Config.StorePath(), app.Config.Store.Backend)
	fmt.Fprintf(out.GetErrWriter(), "fieldkit listening on http://%s\n", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if prober != nil {
		g.Go(func() error {
			prober.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return out.Fail("server error", err)
	}
	app.Logger.Info("server stopped")
	return nil
}
