// Package client is the entry point the presentation layer uses.
//
// It composes the schema cache, submission queue, draft slot and
// connectivity signal, and owns the flows that span them: opening a form
// under the current connectivity, submitting a filled form, and reporting
// schema drift of queued submissions.
package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/fieldkit/internal/connectivity"
	"github.com/roach88/fieldkit/internal/draft"
	"github.com/roach88/fieldkit/internal/idgen"
	"github.com/roach88/fieldkit/internal/ir"
	"github.com/roach88/fieldkit/internal/queue"
	"github.com/roach88/fieldkit/internal/schema"
)

// Client is the offline-first core.
//
// Thread-safety: safe for concurrent use.
type Client struct {
	schemas *schema.Cache
	queue   *queue.Queue
	draft   *draft.Slot
	signal  *connectivity.Signal
	ids     idgen.Generator
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithIDGenerator sets the submission id generator. Defaults to ULID.
func WithIDGenerator(g idgen.Generator) Option {
	return func(c *Client) { c.ids = g }
}

// WithClock sets the time source for created_at.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client. A nil signal starts a fresh one in the Unknown
// state.
func New(schemas *schema.Cache, q *queue.Queue, d *draft.Slot, signal *connectivity.Signal, opts ...Option) *Client {
	if signal == nil {
		signal = connectivity.NewSignal()
	}
	c := &Client{
		schemas: schemas,
		queue:   q,
		draft:   d,
		signal:  signal,
		ids:     idgen.NewULID(),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Schemas returns the schema cache.
func (c *Client) Schemas() *schema.Cache { return c.schemas }

// Queue returns the submission queue.
func (c *Client) Queue() *queue.Queue { return c.queue }

// Draft returns the draft slot.
func (c *Client) Draft() *draft.Slot { return c.draft }

// Signal returns the connectivity signal consulted by OpenForm and the
// download operations.
func (c *Client) Signal() *connectivity.Signal { return c.signal }

// Init prepares persistent state for first use.
func (c *Client) Init(ctx context.Context) error {
	return c.queue.Init(ctx)
}

// OpenForm resolves a schema under the current connectivity. It returns
// (nil, nil) when the form is not cached and the device is not online.
func (c *Client) OpenForm(ctx context.Context, name string) (*ir.DocTypeSchema, error) {
	return c.schemas.Resolve(ctx, name, c.signal.Connected())
}

// RefreshForm re-downloads one form, replacing the cached copy. It refuses
// to run unless the signal reports Online.
func (c *Client) RefreshForm(ctx context.Context, name string) (*ir.DocTypeSchema, error) {
	if err := c.requireOnline("client.refresh_form", name); err != nil {
		return nil, err
	}
	return c.schemas.FetchAndCacheRemote(ctx, name)
}

// RemoteForms lists the forms the provider serves. It refuses to run
// unless the signal reports Online.
func (c *Client) RemoteForms(ctx context.Context) ([]string, error) {
	if err := c.requireOnline("client.remote_forms", ""); err != nil {
		return nil, err
	}
	return c.schemas.RemoteNames(ctx)
}

// DownloadForms caches several forms for offline use. It refuses to run
// unless the signal reports Online.
func (c *Client) DownloadForms(ctx context.Context, names []string) ([]schema.PrefetchResult, error) {
	if err := c.requireOnline("client.download_forms", ""); err != nil {
		return nil, err
	}
	return c.schemas.Prefetch(ctx, names)
}

func (c *Client) requireOnline(op, key string) error {
	if c.signal.Connected() {
		return nil
	}
	return ir.Errorf(ir.ErrCodeRemoteFetch, op, key, "not online (connectivity %s)", c.signal.Current())
}

// Submit queues data as a pending submission of formName and clears the
// draft.
//
// The schema must be cached locally (NOT_FOUND otherwise); its fingerprint
// is frozen into the item. A failed draft clear after a successful enqueue
// is logged and does not fail the submission.
func (c *Client) Submit(ctx context.Context, formName string, data map[string]any) (ir.SubmissionItem, error) {
	const op = "client.submit"

	s, err := c.schemas.ReadLocal(ctx, formName)
	if err != nil {
		return ir.SubmissionItem{}, err
	}
	if s == nil {
		return ir.SubmissionItem{}, ir.Errorf(ir.ErrCodeNotFound, op, formName, "form is not cached")
	}
	if data == nil {
		data = map[string]any{}
	}

	item := ir.SubmissionItem{
		ID:         c.ids.Generate(),
		FormName:   formName,
		Data:       data,
		SchemaHash: s.Fingerprint(),
		Status:     ir.StatusPending,
		CreatedAt:  c.now().UnixMilli(),
	}
	queued, err := c.queue.Enqueue(ctx, item)
	if err != nil {
		return ir.SubmissionItem{}, err
	}

	if err := c.draft.Clear(ctx); err != nil {
		c.logger.Warn("draft not cleared after submit", "id", queued.ID, "error", err)
	}
	return queued, nil
}
