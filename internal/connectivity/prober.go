package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// DefaultProbeInterval is the Prober poll period when none is configured.
const DefaultProbeInterval = 30 * time.Second

// Prober periodically checks reachability of a URL and pushes the result
// into a Signal. Any HTTP response counts as Online; a transport error or
// timeout counts as Offline.
type Prober struct {
	signal   *Signal
	url      string
	client   *http.Client
	interval time.Duration
	logger   *slog.Logger
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithInterval sets the poll period.
func WithInterval(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithProbeClient replaces the HTTP client used for probes.
func WithProbeClient(c *http.Client) ProberOption {
	return func(p *Prober) { p.client = c }
}

// WithProbeLogger sets the logger. Defaults to slog.Default().
func WithProbeLogger(l *slog.Logger) ProberOption {
	return func(p *Prober) { p.logger = l }
}

// NewProber creates a Prober for url feeding sig.
func NewProber(sig *Signal, url string, opts ...ProberOption) *Prober {
	p := &Prober{
		signal:   sig,
		url:      url,
		client:   &http.Client{Timeout: 5 * time.Second},
		interval: DefaultProbeInterval,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Probe issues one HEAD request and returns the observed state.
// It does not touch the Signal.
func (p *Prober) Probe(ctx context.Context) State {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return Offline
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("connectivity probe failed", "url", p.url, "error", err)
		return Offline
	}
	resp.Body.Close()
	return Online
}

// Run probes immediately and then every interval until ctx is cancelled.
//
// Run blocks. Start it in a goroutine:
//
//	go prober.Run(ctx)
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("connectivity prober started", "url", p.url, "interval", p.interval)
	p.update(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("connectivity prober stopped")
			return
		case <-ticker.C:
			p.update(ctx)
		}
	}
}

func (p *Prober) update(ctx context.Context) {
	state := p.Probe(ctx)
	if ctx.Err() != nil {
		return
	}
	if p.signal.Set(state) {
		p.logger.Info("connectivity changed", "state", state)
	}
}
