package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/fieldkit/internal/client"
	"github.com/roach88/fieldkit/internal/config"
	"github.com/roach88/fieldkit/internal/connectivity"
	"github.com/roach88/fieldkit/internal/draft"
	"github.com/roach88/fieldkit/internal/idgen"
	"github.com/roach88/fieldkit/internal/keymutex"
	"github.com/roach88/fieldkit/internal/metadata"
	"github.com/roach88/fieldkit/internal/metrics"
	"github.com/roach88/fieldkit/internal/queue"
	"github.com/roach88/fieldkit/internal/schema"
	"github.com/roach88/fieldkit/internal/store"
)

// App is the wired core a command runs against.
type App struct {
	Config   config.Config
	KV       store.KV
	Client   *client.Client
	Registry *prometheus.Registry
	Logger   *slog.Logger

	opts *RootOptions
}

// loadConfig reads --config (or defaults) and applies flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(opts.ConfigPath); err != nil {
			return config.Config{}, err
		}
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.Backend != "" {
		cfg.Store.Backend = opts.Backend
	}
	if opts.RemoteURL != "" {
		cfg.Remote.BaseURL = opts.RemoteURL
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger writes text logs to w: warnings by default, everything with
// --verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// OpenApp loads configuration, opens the store and wires every component.
// The caller must Close the App.
func OpenApp(opts *RootOptions, stderr io.Writer) (*App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(stderr, opts.Verbose)

	if cfg.Store.Backend != store.BackendMemory {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	kv, err := store.OpenBackend(cfg.Store.Backend, cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	app, err := wire(cfg, kv, logger)
	if err != nil {
		kv.Close()
		return nil, err
	}
	app.opts = opts
	return app, nil
}

func wire(cfg config.Config, kv store.KV, logger *slog.Logger) (*App, error) {
	var provider metadata.Provider
	if cfg.Remote.BaseURL != "" {
		p, err := metadata.NewHTTP(cfg.Remote.BaseURL,
			metadata.WithTimeout(cfg.Remote.Timeout),
			metadata.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		provider = p
	}

	ids, err := idgen.FromName(cfg.IDs.Strategy)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	locks := keymutex.New()

	schemas, err := schema.New(kv, provider,
		schema.WithLogger(logger),
		schema.WithMetrics(m),
		schema.WithLocks(locks),
		schema.WithMemorySize(cfg.MemorySize()),
		schema.WithTimeout(cfg.Remote.Timeout),
	)
	if err != nil {
		return nil, err
	}
	q := queue.New(kv, queue.WithLogger(logger), queue.WithMetrics(m), queue.WithLocks(locks))
	d := draft.New(kv, draft.WithLogger(logger), draft.WithMetrics(m), draft.WithLocks(locks))

	c := client.New(schemas, q, d, connectivity.NewSignal(),
		client.WithIDGenerator(ids),
		client.WithLogger(logger),
	)
	if err := c.Init(context.Background()); err != nil {
		return nil, err
	}

	return &App{
		Config:   cfg,
		KV:       kv,
		Client:   c,
		Registry: reg,
		Logger:   logger,
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.KV.Close()
}

// Prober returns a prober for the configured URL, or nil when there is
// nothing to probe.
func (a *App) Prober() *connectivity.Prober {
	url := a.Config.ProbeURL()
	if url == "" {
		return nil
	}
	return connectivity.NewProber(a.Client.Signal(), url,
		connectivity.WithInterval(a.Config.Probe.Interval),
		connectivity.WithProbeLogger(a.Logger),
	)
}

// DetectConnectivity sets the signal once before a command that may reach
// the network: Offline with --offline or without a remote, otherwise
// whatever a single probe observes.
func (a *App) DetectConnectivity(ctx context.Context) connectivity.State {
	sig := a.Client.Signal()
	if a.opts != nil && a.opts.Offline {
		sig.Set(connectivity.Offline)
		return connectivity.Offline
	}
	p := a.Prober()
	if p == nil {
		sig.Set(connectivity.Offline)
		return connectivity.Offline
	}
	state := p.Probe(ctx)
	sig.Set(state)
	a.Logger.Debug("connectivity probed", "state", state)
	return state
}

// formatter builds the output formatter for cmd.
func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// withApp opens the App, runs fn and closes it. Setup failures are reported
// through the formatter with ExitCommandError.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, app *App, out *OutputFormatter) error) error {
	out := formatter(opts, cmd)
	app, err := OpenApp(opts, cmd.ErrOrStderr())
	if err != nil {
		_ = out.Error("CLI_ERROR", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open fieldkit", err)
	}
	defer app.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, app, out)
}
