// Package draft is the autosave slot for the form being edited.
//
// There is exactly one slot for the whole app, not one per form: opening a
// different form and editing it overwrites the previous draft. Save replaces
// the stored mapping wholesale and never merges.
package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/fieldkit/internal/ir"
	"github.com/roach88/fieldkit/internal/keymutex"
	"github.com/roach88/fieldkit/internal/metrics"
	"github.com/roach88/fieldkit/internal/store"
)

// Key is the store key of the draft slot.
const Key = "fieldkit:draft"

var errNotObject = errors.New("stored draft is not a JSON object")

// Slot is the draft autosave slot.
//
// Thread-safety: safe for concurrent use; writes are serialized per key.
type Slot struct {
	kv      store.KV
	locks   *keymutex.Map
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Slot.
type Option func(*Slot)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Slot) { s.logger = l }
}

// WithMetrics sets the metrics sink. nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Slot) { s.metrics = m }
}

// WithLocks shares a lock map with other components on the same store.
func WithLocks(m *keymutex.Map) Option {
	return func(s *Slot) { s.locks = m }
}

// WithClock sets the time source used for quarantine keys.
func WithClock(now func() time.Time) Option {
	return func(s *Slot) { s.now = now }
}

// New creates a Slot over kv.
func New(kv store.KV, opts ...Option) *Slot {
	s := &Slot{
		kv:     kv,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.locks == nil {
		s.locks = keymutex.New()
	}
	return s
}

// Save overwrites the draft with data. A corrupt previous value is
// quarantined first. Write failures are PERSIST_ERROR.
func (s *Slot) Save(ctx context.Context, data ir.DraftData) error {
	const op = "draft.save"
	if data == nil {
		data = ir.DraftData{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return ir.NewError(ir.ErrCodePersist, op, Key, err)
	}

	unlock, err := s.locks.Lock(ctx, Key)
	if err != nil {
		return ir.NewError(ir.ErrCodePersist, op, Key, err)
	}
	defer unlock()

	if err := s.quarantineCorrupt(ctx, op); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, Key, string(b)); err != nil {
		return ir.NewError(ir.ErrCodePersist, op, Key, err)
	}
	return nil
}

// Restore reads the draft. A missing draft is Empty; bytes that are not a
// JSON object are Corrupt, logged and counted. Only store I/O failures are
// returned as errors.
func (s *Slot) Restore(ctx context.Context) (ir.Result[ir.DraftData], error) {
	raw, ok, err := s.kv.Get(ctx, Key)
	if err != nil {
		return ir.Result[ir.DraftData]{}, err
	}
	if !ok {
		return ir.Empty[ir.DraftData](), nil
	}
	data, err := decode(raw)
	if err != nil {
		s.metrics.CorruptRead("draft")
		s.logger.Warn("draft is corrupt, reading as empty", "error", err)
		return ir.Corrupt[ir.DraftData](ir.NewError(ir.ErrCodeCorrupt, "draft.restore", Key, err)), nil
	}
	return ir.Found(data), nil
}

// Clear discards the draft.
func (s *Slot) Clear(ctx context.Context) error {
	const op = "draft.clear"
	unlock, err := s.locks.Lock(ctx, Key)
	if err != nil {
		return ir.NewError(ir.ErrCodePersist, op, Key, err)
	}
	defer unlock()

	if err := s.kv.Remove(ctx, Key); err != nil {
		return ir.NewError(ir.ErrCodePersist, op, Key, err)
	}
	return nil
}

// quarantineCorrupt copies an undecodable stored draft aside. Caller holds
// the lock.
func (s *Slot) quarantineCorrupt(ctx context.Context, op string) error {
	raw, ok, err := s.kv.Get(ctx, Key)
	if err != nil {
		return ir.NewError(ir.ErrCodePersist, op, Key, err)
	}
	if !ok {
		return nil
	}
	if _, derr := decode(raw); derr == nil {
		return nil
	}
	qk, err := store.Quarantine(ctx, s.kv, Key, raw, s.now())
	if err != nil {
		return ir.NewError(ir.ErrCodePersist, op, Key, err)
	}
	s.metrics.Quarantined()
	s.logger.Warn("quarantined corrupt draft", "key", qk)
	return nil
}

func decode(raw string) (ir.DraftData, error) {
	b := bytes.TrimSpace([]byte(raw))
	if len(b) == 0 || b[0] != '{' {
		return nil, errNotObject
	}
	var data ir.DraftData
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	return data, nil
}
