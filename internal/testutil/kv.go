package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/fieldkit/internal/ir"
	"github.com/roach88/fieldkit/internal/store"
)

// ErrInjected is the cause carried by every failure a FailingKV injects.
var ErrInjected = errors.New("injected store failure")

// FailingKV wraps a store.KV and fails reads or writes on demand.
//
// Thread-safety: safe for concurrent use when the wrapped KV is.
type FailingKV struct {
	store.KV

	mu         sync.Mutex
	failReads  bool
	failWrites bool
	writes     map[string]int
}

// NewFailingKV wraps kv. A nil kv wraps a fresh memory store.
func NewFailingKV(kv store.KV) *FailingKV {
	if kv == nil {
		kv = store.NewMemory()
	}
	return &FailingKV{KV: kv, writes: make(map[string]int)}
}

// FailReads toggles injected failures for Get, Keys and MultiGet.
func (f *FailingKV) FailReads(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads = on
}

// FailWrites toggles injected failures for Set and Remove.
func (f *FailingKV) FailWrites(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = on
}

// Writes returns the number of Set and Remove calls that reached the
// wrapped store.
func (f *FailingKV) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.writes {
		total += n
	}
	return total
}

// WritesTo returns the number of Set and Remove calls for key that reached
// the wrapped store.
func (f *FailingKV) WritesTo(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[key]
}

func (f *FailingKV) readFails() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failReads
}

func (f *FailingKV) writeAllowed(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return false
	}
	f.writes[key]++
	return true
}

func (f *FailingKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.readFails() {
		return "", false, ir.NewError(ir.ErrCodeStore, "store.get", key, ErrInjected)
	}
	return f.KV.Get(ctx, key)
}

func (f *FailingKV) Keys(ctx context.Context) ([]string, error) {
	if f.readFails() {
		return nil, ir.NewError(ir.ErrCodeStore, "store.keys", "", ErrInjected)
	}
	return f.KV.Keys(ctx)
}

func (f *FailingKV) MultiGet(ctx context.Context, keys []string) ([]store.Entry, error) {
	if f.readFails() {
		return nil, ir.NewError(ir.ErrCodeStore, "store.multi_get", "", ErrInjected)
	}
	return f.KV.MultiGet(ctx, keys)
}

func (f *FailingKV) Set(ctx context.Context, key, value string) error {
	if !f.writeAllowed(key) {
		return ir.NewError(ir.ErrCodeStore, "store.set", key, ErrInjected)
	}
	return f.KV.Set(ctx, key, value)
}

func (f *FailingKV) Remove(ctx context.Context, key string) error {
	if !f.writeAllowed(key) {
		return ir.NewError(ir.ErrCodeStore, "store.remove", key, ErrInjected)
	}
	return f.KV.Remove(ctx, key)
}
