package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldkit/internal/client"
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

type harness struct {
	srv      *Server
	client   *client.Client
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

func newHarness(t *testing.T) *harness {
	t.Helper()
	kv := store.NewMemory()
	p := testutil.NewCountingProvider(invoice())
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	locks := keymutex.New()
	log := testutil.DiscardLogger()

	sc, err := schema.New(kv, p, schema.WithLogger(log), schema.WithMetrics(m), schema.WithLocks(locks))
	require.NoError(t, err)
	q := queue.New(kv, queue.WithLogger(log), queue.WithMetrics(m), queue.WithLocks(locks))
	d := draft.New(kv, draft.WithLogger(log), draft.WithMetrics(m), draft.WithLocks(locks))
	c := client.New(sc, q, d, connectivity.NewSignal(),
		client.WithIDGenerator(idgen.NewFixedGenerator("sub-1", "sub-2", "sub-3")),
		client.WithClock(testutil.NewStepClock(testutil.Epoch, time.Second).Now),
		client.WithLogger(log),
	)
	require.NoError(t, c.Init(context.Background()))

	return &harness{
		srv:      New(c, WithLogger(log), WithGatherer(reg)),
		client:   c,
		provider: p,
	}
}

func (h *harness) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func (h *harness) online(t *testing.T) {
	t.Helper()
	rec := h.do(t, http.MethodPut, "/connectivity", `{"state":"online"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]problem](t, rec)["error"].Code
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestConnectivity(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/connectivity", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"unknown"}`, rec.Body.String())

	rec = h.do(t, http.MethodPut, "/connectivity", `{"state":"offline"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"offline","changed":true}`, rec.Body.String())

	rec = h.do(t, http.MethodPut, "/connectivity", `{"state":"offline"}`)
	assert.JSONEq(t, `{"state":"offline","changed":false}`, rec.Body.String())

	rec = h.do(t, http.MethodPut, "/connectivity", `{"state":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeBadRequest, errorCode(t, rec))
	assert.Equal(t, connectivity.Offline, h.client.Signal().Current())
}

func TestOpenForm_OfflineMissIsNotFound(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/forms/Invoice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(ir.ErrCodeNotFound), errorCode(t, rec))
	assert.Equal(t, 0, h.provider.Calls())
}

func TestOpenForm_OnlineFetchesAndCaches(t *testing.T) {
	h := newHarness(t)
	h.online(t)

	rec := h.do(t, http.MethodGet, "/forms/Invoice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[formView](t, rec)
	assert.Equal(t, "Invoice", view.Schema.Name)
	assert.Equal(t, invoice().Fingerprint(), view.Fingerprint)

	rec = h.do(t, http.MethodGet, "/forms", "")
	assert.JSONEq(t, `{"forms":["Invoice"]}`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/forms/Invoice", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.provider.GetCalls("Invoice"), "second open served from cache")
}

func TestOpenForm_EscapedName(t *testing.T) {
	h := newHarness(t)
	h.provider.Put(&ir.DocTypeSchema{Name: "Client Visit/2"})
	h.online(t)

	rec := h.do(t, http.MethodGet, "/forms/Client%20Visit%2F2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Client Visit/2", decodeBody[formView](t, rec).Schema.Name)
}

func TestRemoteForms_RequireOnline(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/forms/remote", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, string(ir.ErrCodeRemoteFetch), errorCode(t, rec))

	rec = h.do(t, http.MethodPost, "/forms/Invoice/fetch", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 0, h.provider.Calls())

	h.online(t)
	rec = h.do(t, http.MethodGet, "/forms/remote", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"forms":["Invoice"]}`, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/forms/Invoice/fetch", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDownloadAndEvict(t *testing.T) {
	h := newHarness(t)
	h.online(t)

	rec := h.do(t, http.MethodPost, "/forms/download", `{"names":["Invoice","Missing"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[map[string][]downloadResult](t, rec)["results"]
	require.Len(t, got, 2)
	assert.Equal(t, invoice().Fingerprint(), got[0].Fingerprint)
	assert.Empty(t, got[0].Error)
	assert.NotEmpty(t, got[1].Error)

	rec = h.do(t, http.MethodDelete, "/forms/Invoice", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, "/forms", "")
	assert.JSONEq(t, `{"forms":[]}`, rec.Body.String())
}

func TestSubmitAndEditQueue(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/queue", `{"form_name":"Invoice","data":{"qty":1}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code, "form not cached yet")

	h.online(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/forms/Invoice", "").Code)

	rec = h.do(t, http.MethodPost, "/queue", `{"form_name":"Invoice","data":{"qty":1}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	item := decodeBody[ir.SubmissionItem](t, rec)
	assert.Equal(t, "sub-1", item.ID)
	assert.Equal(t, ir.StatusPending, item.Status)
	assert.Equal(t, invoice().Fingerprint(), item.SchemaHash)

	rec = h.do(t, http.MethodPatch, "/queue/items/sub-1", `{"data":{"qty":2}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody[ir.SubmissionItem](t, rec).Data["qty"])

	rec = h.do(t, http.MethodPut, "/queue/0", `{"data":{"qty":3},"status":"failed","last_error":"timeout"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, "/queue", "")
	items := decodeBody[map[string][]ir.SubmissionItem](t, rec)["items"]
	require.Len(t, items, 1)
	assert.Equal(t, "sub-1", items[0].ID)
	assert.Equal(t, ir.StatusFailed, items[0].Status)
	assert.Equal(t, "timeout", items[0].LastError)

	rec = h.do(t, http.MethodPost, "/queue/items/sub-1/status", `{"status":"submitted"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "failed items go back to pending first")

	rec = h.do(t, http.MethodPost, "/queue/items/sub-1/status", `{"status":"pending"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[ir.SubmissionItem](t, rec).LastError)

	rec = h.do(t, http.MethodPost, "/queue/items/sub-1/status", `{"status":"submitted"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPatch, "/queue/items/sub-1", `{"data":{"qty":4}}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(ir.ErrCodeInvalidTransition), errorCode(t, rec))

	rec = h.do(t, http.MethodDelete, "/queue/items/sub-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(t, http.MethodGet, "/queue", "")
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestQueueErrors(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{"replace past end", http.MethodPut, "/queue/5", `{"data":{}}`, http.StatusNotFound, string(ir.ErrCodeIndexOutOfRange)},
		{"replace bad index", http.MethodPut, "/queue/x", `{"data":{}}`, http.StatusBadRequest, codeBadRequest},
		{"edit missing", http.MethodPatch, "/queue/items/nope", `{"data":{}}`, http.StatusNotFound, string(ir.ErrCodeNotFound)},
		{"status unknown", http.MethodPost, "/queue/items/nope/status", `{"status":"lost"}`, http.StatusBadRequest, codeBadRequest},
		{"submit without form", http.MethodPost, "/queue", `{"data":{}}`, http.StatusBadRequest, string(ir.ErrCodeInvalidItem)},
		{"submit bad json", http.MethodPost, "/queue", `{"form_name":`, http.StatusBadRequest, codeBadRequest},
		{"submit empty body", http.MethodPost, "/queue", "", http.StatusBadRequest, codeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestClearQueue(t *testing.T) {
	h := newHarness(t)
	h.online(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/forms/Invoice", "").Code)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/queue", `{"form_name":"Invoice"}`).Code)

	rec := h.do(t, http.MethodDelete, "/queue", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	n, err := h.client.Queue().Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrift(t *testing.T) {
	h := newHarness(t)
	h.online(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/forms/Invoice", "").Code)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/queue", `{"form_name":"Invoice"}`).Code)

	changed := invoice()
	changed.Fields = append(changed.Fields, ir.FieldDefinition{Fieldname: "notes", Fieldtype: ir.FieldTypeText})
	h.provider.Put(changed)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/forms/Invoice/fetch", "").Code)

	rec := h.do(t, http.MethodGet, "/queue/drift", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[map[string][]client.Drift](t, rec)["drift"]
	require.Len(t, report, 1)
	assert.Equal(t, client.DriftChanged, report[0].State)
	assert.Equal(t, invoice().Fingerprint(), report[0].QueuedHash)
	assert.Equal(t, changed.Fingerprint(), report[0].CurrentHash)
}

func TestDraft(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/draft", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"empty","data":null}`, rec.Body.String())

	rec = h.do(t, http.MethodPut, "/draft", `{"customer":"ACME","qty":2}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, "/draft", "")
	assert.JSONEq(t, `{"state":"found","data":{"customer":"ACME","qty":2}}`, rec.Body.String())

	rec = h.do(t, http.MethodPut, "/draft", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodDelete, "/draft", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(t, http.MethodGet, "/draft", "")
	assert.JSONEq(t, `{"state":"empty","data":null}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.online(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/forms/Invoice", "").Code)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/queue", `{"form_name":"Invoice"}`).Code)

	rec := h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "fieldkit_queue_length 1")
	assert.Contains(t, body, "fieldkit_queue_enqueued_total 1")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(ir.ErrCodeNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(ir.ErrCodeInvalidTransition))
	assert.Equal(t, http.StatusBadGateway, statusFor(ir.ErrCodeRemoteFetch))
	assert.Equal(t, http.StatusInternalServerError, statusFor(ir.ErrCodePersist))
	assert.Equal(t, http.StatusInternalServerError, statusFor(ir.ErrCodeCorrupt))
}
