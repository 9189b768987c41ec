package client

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldkit/internal/connectivity"
	"github.com/roach88/fieldkit/internal/draft"
	"github.com/roach88/fieldkit/internal/idgen"
	"github.com/roach88/fieldkit/internal/ir"
	"github.com/roach88/fieldkit/internal/keymutex"
	"github.com/roach88/fieldkit/internal/metrics"
	"github.com/roach88/fieldkit/internal/queue"
	"github.com/roach88/fieldkit/internal/schema"
	"github.com/roach88/fieldkit/internal/store"
	"github.com/roach88/fieldkit/internal/testutil"
)

type fixture struct {
	client   *Client
	kv       *testutil.FailingKV
	provider *testutil.CountingProvider
}

func invoice() *ir.DocTypeSchema {
	return &ir.DocTypeSchema{
		Name: "Invoice",
		Fields: []ir.FieldDefinition{
			{Fieldname: "customer", Fieldtype: ir.FieldTypeLink, Options: "Customer"},
			{Fieldname: "qty", Fieldtype: ir.FieldTypeInt},
		},
	}
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	kv := testutil.NewFailingKV(store.NewMemory())
	p := testutil.NewCountingProvider(invoice())
	m := metrics.New(prometheus.NewRegistry())
	locks := keymutex.New()
	log := testutil.DiscardLogger()

	sc, err := schema.New(kv, p, schema.WithLogger(log), schema.WithMetrics(m), schema.WithLocks(locks))
	require.NoError(t, err)
	q := queue.New(kv, queue.WithLogger(log), queue.WithMetrics(m), queue.WithLocks(locks))
	d := draft.New(kv, draft.WithLogger(log), draft.WithMetrics(m), draft.WithLocks(locks))

	if len(ids) == 0 {
		ids = []string{"sub-1", "sub-2", "sub-3"}
	}
	c := New(sc, q, d, connectivity.NewSignal(),
		WithIDGenerator(idgen.NewFixedGenerator(ids...)),
		WithClock(testutil.NewStepClock(testutil.Epoch, time.Second).Now),
		WithLogger(log),
	)
	require.NoError(t, c.Init(context.Background()))
	return &fixture{client: c, kv: kv, provider: p}
}

func TestOpenForm_FollowsSignal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.client.OpenForm(ctx, "Invoice")
	require.NoError(t, err)
	assert.Nil(t, s, "unknown connectivity never reaches the network")
	assert.Equal(t, 0, f.provider.Calls())

	f.client.Signal().Set(connectivity.Offline)
	s, err = f.client.OpenForm(ctx, "Invoice")
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, 0, f.provider.Calls())

	f.client.Signal().Set(connectivity.Online)
	s, err = f.client.OpenForm(ctx, "Invoice")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 1, f.provider.Calls())

	f.client.Signal().Set(connectivity.Offline)
	s, err = f.client.OpenForm(ctx, "Invoice")
	require.NoError(t, err)
	assert.NotNil(t, s, "cached forms open offline")
	assert.Equal(t, 1, f.provider.Calls())
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.Signal().Set(connectivity.Online)
	_, err := f.client.OpenForm(ctx, "Invoice")
	require.NoError(t, err)
	require.NoError(t, f.client.Draft().Save(ctx, ir.DraftData{"customer": "ACME"}))

	item, err := f.client.Submit(ctx, "Invoice", map[string]any{"customer": "ACME", "qty": 3.0})
	require.NoError(t, err)

	assert.Equal(t, ir.SubmissionItem{
		ID:         "sub-1",
		FormName:   "Invoice",
		Data:       map[string]any{"customer": "ACME", "qty": 3.0},
		SchemaHash: invoice().Fingerprint(),
		Status:     ir.StatusPending,
		CreatedAt:  testutil.Epoch.UnixMilli(),
	}, item)

	items, err := f.client.Queue().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.SubmissionItem{item}, items)

	r, err := f.client.Draft().Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.ReadEmpty, r.State, "submit clears the draft")
}

func TestSubmit_WorksOffline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.Signal().Set(connectivity.Online)
	_, err := f.client.OpenForm(ctx, "Invoice")
	require.NoError(t, err)

	f.client.Signal().Set(connectivity.Offline)
	_, err = f.client.Submit(ctx, "Invoice", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.provider.Calls())
}

func TestSubmit_UncachedForm(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.Submit(context.Background(), "Invoice", map[string]any{})
	assert.True(t, ir.IsNotFound(err), "got %v", err)

	n, err := f.client.Queue().Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSubmit_PersistErrorKeepsDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.Signal().Set(connectivity.Online)
	_, err := f.client.OpenForm(ctx, "Invoice")
	require.NoError(t, err)
	require.NoError(t, f.client.Draft().Save(ctx, ir.DraftData{"customer": "ACME"}))

	f.kv.FailWrites(true)
	_, err = f.client.Submit(ctx, "Invoice", map[string]any{"customer": "ACME"})
	assert.True(t, ir.IsPersistError(err))

	f.kv.FailWrites(false)
	r, err := f.client.Draft().Restore(ctx)
	require.NoError(t, err)
	assert.True(t, r.OK(), "a failed submit must not lose the draft")
}

func TestDownloadForms_RequiresOnline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.client.DownloadForms(ctx, []string{"Invoice"})
	assert.True(t, ir.IsRemoteFetchError(err))
	assert.Equal(t, 0, f.provider.Calls())

	f.client.Signal().Set(connectivity.Online)
	res, err := f.client.DownloadForms(ctx, []string{"Invoice"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.NoError(t, res[0].Err)
}

func TestDriftReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.Signal().Set(connectivity.Online)
	_, err := f.client.OpenForm(ctx, "Invoice")
	require.NoError(t, err)

	first, err := f.client.Submit(ctx, "Invoice", map[string]any{"qty": 1.0})
	require.NoError(t, err)

	// The provider changes the form; a re-download updates the cache.
	changed := invoice()
	changed.Fields[1].Fieldtype = ir.FieldTypeData
	f.provider.Put(changed)
	_, err = f.client.Schemas().FetchAndCacheRemote(ctx, "Invoice")
	require.NoError(t, err)

	second, err := f.client.Submit(ctx, "Invoice", map[string]any{"qty": "2"})
	require.NoError(t, err)

	orphan := ir.SubmissionItem{ID: "legacy", FormName: "Retired", SchemaHash: "abc", Status: ir.StatusFailed}
	_, err = f.client.Queue().Enqueue(ctx, orphan)
	require.NoError(t, err)

	report, err := f.client.DriftReport(ctx)
	require.NoError(t, err)
	require.Len(t, report, 3)

	assert.Equal(t, first.ID, report[0].ID)
	assert.Equal(t, DriftChanged, report[0].State)
	assert.Equal(t, changed.Fingerprint(), report[0].CurrentHash)

	assert.Equal(t, second.ID, report[1].ID)
	assert.Equal(t, DriftUnchanged, report[1].State)

	assert.Equal(t, DriftSchemaMissing, report[2].State)
	assert.Empty(t, report[2].CurrentHash)
}

func TestRefreshAndRemoteForms_RequireOnline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.client.RefreshForm(ctx, "Invoice")
	assert.True(t, ir.IsRemoteFetchError(err))
	_, err = f.client.RemoteForms(ctx)
	assert.True(t, ir.IsRemoteFetchError(err))
	assert.Equal(t, 0, f.provider.Calls())

	f.client.Signal().Set(connectivity.Online)
	s, err := f.client.RefreshForm(ctx, "Invoice")
	require.NoError(t, err)
	assert.Equal(t, "Invoice", s.Name)

	names, err := f.client.RemoteForms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Invoice"}, names)
}
