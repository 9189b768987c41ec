// Package queue is the durable submission queue.
//
// The whole queue is one JSON array under a single key and every write
// replaces the whole list. Each read-modify-write holds the keymutex lock
// for that key, so overlapping operations are linearized and no appended
// item is lost to a concurrent write.
//
// Reads fail soft: a stored value that is not a JSON array of items reads as
// an empty queue. The corruption is logged and counted, and the raw bytes
// are copied to a quarantine key before anything overwrites them.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/roach88/fieldkit/internal/ir"
	"github.com/roach88/fieldkit/internal/keymutex"
	"github.com/roach88/fieldkit/internal/metrics"
	"github.com/roach88/fieldkit/internal/store"
)

// Key is the store key holding the queue.
const Key = "fieldkit:submission_queue"

// Queue is the submission queue.
//
// Thread-safety: safe for concurrent use.
type Queue struct {
	kv      store.KV
	locks   *keymutex.Map
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithMetrics sets the metrics sink. nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithLocks shares a lock map with other components on the same store.
func WithLocks(m *keymutex.Map) Option {
	return func(q *Queue) { q.locks = m }
}

// WithClock sets the time source used for quarantine keys.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a Queue over kv.
func New(kv store.KV, opts ...Option) *Queue {
	q := &Queue{
		kv:     kv,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	if q.locks == nil {
		q.locks = keymutex.New()
	}
	return q
}

// Init stores an empty queue if none exists. It never overwrites an
// existing value.
func (q *Queue) Init(ctx context.Context) error {
	unlock, err := q.lock(ctx, "queue.init")
	if err != nil {
		return err
	}
	defer unlock()

	_, ok, err := q.kv.Get(ctx, Key)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := q.kv.Set(ctx, Key, "[]"); err != nil {
		return ir.NewError(ir.ErrCodePersist, "queue.init", Key, err)
	}
	return nil
}

// Snapshot reads the queue and reports whether it is present, absent or
// unreadable. Only store I/O failures are returned as errors.
func (q *Queue) Snapshot(ctx context.Context) (ir.Result[[]ir.SubmissionItem], error) {
	items, raw, err := q.load(ctx)
	if err != nil {
		return ir.Result[[]ir.SubmissionItem]{}, err
	}
	switch {
	case raw.corrupt:
		return ir.Corrupt[[]ir.SubmissionItem](raw.err), nil
	case !raw.present:
		return ir.Empty[[]ir.SubmissionItem](), nil
	default:
		return ir.Found(items), nil
	}
}

// Get returns the items in queue order. An absent or corrupt queue reads as
// empty; only store I/O failures are returned.
func (q *Queue) Get(ctx context.Context) ([]ir.SubmissionItem, error) {
	items, _, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Len returns the number of queued items.
func (q *Queue) Len(ctx context.Context) (int, error) {
	items, err := q.Get(ctx)
	return len(items), err
}

// Find returns the item with id.
func (q *Queue) Find(ctx context.Context, id string) (ir.SubmissionItem, bool, error) {
	items, err := q.Get(ctx)
	if err != nil {
		return ir.SubmissionItem{}, false, err
	}
	if i := indexOf(items, id); i >= 0 {
		return items[i], true, nil
	}
	return ir.SubmissionItem{}, false, nil
}

// Enqueue appends item and persists the queue. It returns the item as
// stored: unchanged, except that an empty status becomes pending.
//
// An item without id, with an unknown status, or with an id already queued
// is rejected with INVALID_ITEM. A failed write is PERSIST_ERROR and leaves
// the stored queue as it was.
func (q *Queue) Enqueue(ctx context.Context, item ir.SubmissionItem) (ir.SubmissionItem, error) {
	const op = "queue.enqueue"
	if item.ID == "" {
		return item, ir.Errorf(ir.ErrCodeInvalidItem, op, "", "submission has no id")
	}
	if item.Status == "" {
		item.Status = ir.StatusPending
	}
	if !item.Status.Valid() {
		return item, ir.Errorf(ir.ErrCodeInvalidItem, op, item.ID, "unknown status %q", item.Status)
	}

	err := q.update(ctx, op, func(items []ir.SubmissionItem) ([]ir.SubmissionItem, error) {
		if indexOf(items, item.ID) >= 0 {
			return nil, ir.Errorf(ir.ErrCodeInvalidItem, op, item.ID, "id already queued")
		}
		return append(items, item), nil
	})
	if err != nil {
		return item, err
	}

	q.metrics.Enqueued()
	q.logger.Info("submission queued", "id", item.ID, "form", item.FormName)
	return item, nil
}

// Remove deletes every item with id. Removing an absent id is a no-op.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.update(ctx, "queue.remove", func(items []ir.SubmissionItem) ([]ir.SubmissionItem, error) {
		kept := items[:0:0]
		for _, it := range items {
			if it.ID != id {
				kept = append(kept, it)
			}
		}
		if len(kept) == len(items) {
			return nil, errUnchanged
		}
		return kept, nil
	})
}

// ReplaceAt overwrites the item at index. The stored item keeps its id,
// form_name, schema_hash and created_at; data, status and last_error come
// from item. An empty status keeps the current one.
//
// Positions shift when items are removed, so callers holding a stale index
// should prefer Edit, which addresses items by id.
func (q *Queue) ReplaceAt(ctx context.Context, index int, item ir.SubmissionItem) error {
	const op = "queue.replace_at"
	return q.update(ctx, op, func(items []ir.SubmissionItem) ([]ir.SubmissionItem, error) {
		if index < 0 || index >= len(items) {
			return nil, ir.Errorf(ir.ErrCodeIndexOutOfRange, op, "", "index %d, queue length %d", index, len(items))
		}
		cur := items[index]
		next := item.Status
		if next == "" {
			next = cur.Status
		}
		if err := checkEditable(op, cur, next); err != nil {
			return nil, err
		}
		cur.Data = item.Data
		cur.Status = next
		cur.LastError = item.LastError
		items[index] = cur
		return items, nil
	})
}

// Edit replaces the data of the item with id.
func (q *Queue) Edit(ctx context.Context, id string, data map[string]any) (ir.SubmissionItem, error) {
	const op = "queue.edit"
	var out ir.SubmissionItem
	err := q.update(ctx, op, func(items []ir.SubmissionItem) ([]ir.SubmissionItem, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, ir.Errorf(ir.ErrCodeNotFound, op, id, "no queued submission with this id")
		}
		if err := checkEditable(op, items[i], items[i].Status); err != nil {
			return nil, err
		}
		items[i].Data = data
		out = items[i]
		return items, nil
	})
	return out, err
}

// SetStatus moves the item with id to status. reason is recorded as
// last_error when status is failed and cleared otherwise.
func (q *Queue) SetStatus(ctx context.Context, id string, status ir.SubmissionStatus, reason string) (ir.SubmissionItem, error) {
	const op = "queue.set_status"
	var out ir.SubmissionItem
	err := q.update(ctx, op, func(items []ir.SubmissionItem) ([]ir.SubmissionItem, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, ir.Errorf(ir.ErrCodeNotFound, op, id, "no queued submission with this id")
		}
		if !items[i].Status.CanTransition(status) {
			return nil, ir.Errorf(ir.ErrCodeInvalidTransition, op, id, "%s -> %s", items[i].Status, status)
		}
		items[i].Status = status
		items[i].LastError = ""
		if status == ir.StatusFailed {
			items[i].LastError = reason
		}
		out = items[i]
		return items, nil
	})
	if err == nil {
		q.logger.Info("submission status changed", "id", id, "status", status)
	}
	return out, err
}

// Clear replaces the queue with an empty list.
func (q *Queue) Clear(ctx context.Context) error {
	return q.update(ctx, "queue.clear", func([]ir.SubmissionItem) ([]ir.SubmissionItem, error) {
		return []ir.SubmissionItem{}, nil
	})
}

// checkEditable rejects edits of submitted items and illegal status moves.
func checkEditable(op string, cur ir.SubmissionItem, next ir.SubmissionStatus) error {
	if cur.Status == ir.StatusSubmitted {
		return ir.Errorf(ir.ErrCodeInvalidTransition, op, cur.ID, "submitted items cannot be edited")
	}
	if !cur.Status.CanTransition(next) {
		return ir.Errorf(ir.ErrCodeInvalidTransition, op, cur.ID, "%s -> %s", cur.Status, next)
	}
	return nil
}

func indexOf(items []ir.SubmissionItem, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// rawState describes what load found under Key.
type rawState struct {
	present bool
	corrupt bool
	value   string
	err     error
}

// load decodes the stored queue. Absent and corrupt values both yield an
// empty, non-nil slice.
func (q *Queue) load(ctx context.Context) ([]ir.SubmissionItem, rawState, error) {
	raw, ok, err := q.kv.Get(ctx, Key)
	if err != nil {
		return nil, rawState{}, err
	}
	if !ok {
		return []ir.SubmissionItem{}, rawState{}, nil
	}

	items, derr := decode(raw)
	if derr != nil {
		q.metrics.CorruptRead("queue")
		q.logger.Warn("submission queue is corrupt, reading as empty", "error", derr, "bytes", len(raw))
		cerr := ir.NewError(ir.ErrCodeCorrupt, "queue.load", Key, derr)
		return []ir.SubmissionItem{}, rawState{present: true, corrupt: true, value: raw, err: cerr}, nil
	}
	return items, rawState{present: true, value: raw}, nil
}

func decode(raw string) ([]ir.SubmissionItem, error) {
	b := bytes.TrimSpace([]byte(raw))
	if len(b) == 0 || b[0] != '[' {
		return nil, errNotList
	}
	items := []ir.SubmissionItem{}
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, err
	}
	return items, nil
}
