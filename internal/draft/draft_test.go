package draft

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldkit/internal/ir"
	"github.com/roach88/fieldkit/internal/metrics"
	"github.com/roach88/fieldkit/internal/store"
	"github.com/roach88/fieldkit/internal/testutil"
)

func newTestSlot(kv store.KV) *Slot {
	return New(kv,
		WithLogger(testutil.DiscardLogger()),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
		WithClock(testutil.NewStepClock(testutil.Epoch, time.Second).Now),
	)
}

func TestRestore_Empty(t *testing.T) {
	r, err := newTestSlot(store.NewMemory()).Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ir.ReadEmpty, r.State)
	assert.False(t, r.OK())
}

func TestSave_OverwritesWithoutMerge(t *testing.T) {
	ctx := context.Background()
	s := newTestSlot(store.NewMemory())

	require.NoError(t, s.Save(ctx, ir.DraftData{"a": 1.0}))
	require.NoError(t, s.Save(ctx, ir.DraftData{"b": 2.0}))

	r, err := s.Restore(ctx)
	require.NoError(t, err)
	require.True(t, r.OK())
	assert.Equal(t, ir.DraftData{"b": 2.0}, r.Value)
}

func TestSave_NilIsEmptyObject(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	require.NoError(t, newTestSlot(kv).Save(ctx, nil))

	raw, _, err := kv.Get(ctx, Key)
	require.NoError(t, err)
	assert.Equal(t, "{}", raw)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := newTestSlot(store.NewMemory())
	require.NoError(t, s.Save(ctx, ir.DraftData{"a": "x"}))

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx), "clearing an empty slot is fine")

	r, err := s.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.ReadEmpty, r.State)
}

func TestRestore_Corrupt(t *testing.T) {
	for name, raw := range map[string]string{
		"list":      `[1,2]`,
		"truncated": `{"a":`,
		"null":      `null`,
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv := store.NewMemory()
			require.NoError(t, kv.Set(ctx, Key, raw))

			r, err := newTestSlot(kv).Restore(ctx)
			require.NoError(t, err)
			assert.Equal(t, ir.ReadCorrupt, r.State)
			assert.True(t, ir.IsCorrupt(r.Err))
		})
	}
}

func TestSave_QuarantinesCorrupt(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	require.NoError(t, kv.Set(ctx, Key, `[1,2]`))

	require.NoError(t, newTestSlot(kv).Save(ctx, ir.DraftData{"a": "x"}))

	raw, ok, err := kv.Get(ctx, store.QuarantineKey(Key, testutil.Epoch))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[1,2]`, raw)
}

func TestSave_PersistError(t *testing.T) {
	kv := testutil.NewFailingKV(nil)
	kv.FailWrites(true)

	err := newTestSlot(kv).Save(context.Background(), ir.DraftData{"a": 1})
	assert.True(t, ir.IsPersistError(err))

	err = newTestSlot(kv).Clear(context.Background())
	assert.True(t, ir.IsPersistError(err))
}
