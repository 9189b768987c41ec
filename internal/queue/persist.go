package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/roach88/fieldkit/internal/ir"
	"github.com/roach88/fieldkit/internal/store"
)

var (
	errNotList = errors.New("stored queue is not a JSON array")

	// errUnchanged lets an update func skip the write.
	errUnchanged = errors.New("queue unchanged")
)

func (q *Queue) lock(ctx context.Context, op string) (func(), error) {
	unlock, err := q.locks.Lock(ctx, Key)
	if err != nil {
		return nil, ir.NewError(ir.ErrCodePersist, op, Key, err)
	}
	return unlock, nil
}

// update runs one read-modify-write under the queue lock. fn receives the
// current items and returns the new list; returning errUnchanged skips the
// write.
func (q *Queue) update(ctx context.Context, op string, fn func([]ir.SubmissionItem) ([]ir.SubmissionItem, error)) error {
	unlock, err := q.lock(ctx, op)
	if err != nil {
		return err
	}
	defer unlock()

	items, raw, err := q.load(ctx)
	if err != nil {
		return err
	}

	next, err := fn(items)
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}
	return q.save(ctx, op, next, raw)
}

// save persists items. A corrupt previous value is quarantined first; if
// that copy cannot be written the queue is left untouched.
func (q *Queue) save(ctx context.Context, op string, items []ir.SubmissionItem, prev rawState) error {
	if prev.corrupt {
		qk, err := store.Quarantine(ctx, q.kv, Key, prev.value, q.now())
		if err != nil {
			return ir.NewError(ir.ErrCodePersist, op, Key, err)
		}
		q.metrics.Quarantined()
		q.logger.Warn("quarantined corrupt submission queue", "key", qk)
	}

	if items == nil {
		items = []ir.SubmissionItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return ir.NewError(ir.ErrCodePersist, op, Key, err)
	}
	if err := q.kv.Set(ctx, Key, string(data)); err != nil {
		return ir.NewError(ir.ErrCodePersist, op, Key, err)
	}
	q.metrics.SetQueueLength(len(items))
	return nil
}
