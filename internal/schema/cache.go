// Package schema caches remote form schemas (doctypes) for offline use.
//
// The store is the only durable copy: every successful fetch writes the full
// schema blob under fieldkit:doctype:<name> before returning, so a restart
// never loses a cached form. Every read goes to the store, so writes and
// evictions made by another process on the same file are seen at once. A
// bounded ARC cache of decoded schemas, tagged with the bytes they were
// decoded from, only saves the decode when the stored copy is unchanged.
//
// Resolve is the path UI collaborators use. It prefers the local copy and
// reaches the network only when the local copy is missing and the caller
// asserts connectivity. It never touches the network while offline.
package schema

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/fieldkit/internal/ir"
	"github.com/roach88/fieldkit/internal/keymutex"
	"github.com/roach88/fieldkit/internal/metadata"
	"github.com/roach88/fieldkit/internal/metrics"
	"github.com/roach88/fieldkit/internal/store"
)

// Store keys.
const (
	KeyPrefix = "fieldkit:doctype:"
	NamesKey  = "fieldkit:doctype_names"
)

// Defaults.
const (
	DefaultMemorySize = 64
	DefaultTimeout    = metadata.DefaultTimeout
)

// Key returns the store key of a cached schema.
func Key(name string) string {
	return KeyPrefix + name
}

// Cache is the schema cache.
//
// Thread-safety: safe for concurrent use. Writes to one schema key and to
// the names index are serialized through a keymutex.Map.
type Cache struct {
	kv       store.KV
	provider metadata.Provider
	locks    *keymutex.Map
	mem      *lru.ARCCache
	memSize  int
	group    singleflight.Group
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics sets the metrics sink. nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithLocks shares a lock map with other components on the same store.
func WithLocks(m *keymutex.Map) Option {
	return func(c *Cache) { c.locks = m }
}

// WithMemorySize bounds the in-memory ARC cache. 0 disables it.
func WithMemorySize(n int) Option {
	return func(c *Cache) { c.memSize = n }
}

// WithTimeout bounds each remote call.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a Cache over kv. provider may be nil, in which case every
// remote operation fails with REMOTE_FETCH_ERROR.
func New(kv store.KV, provider metadata.Provider, opts ...Option) (*Cache, error) {
	c := &Cache{
		kv:       kv,
		provider: provider,
		memSize:  DefaultMemorySize,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.locks == nil {
		c.locks = keymutex.New()
	}
	if c.memSize > 0 {
		mem, err := lru.NewARC(c.memSize)
		if err != nil {
			return nil, err
		}
		c.mem = mem
	}
	return c, nil
}

// Lookup reads the local copy of name and reports whether it is present,
// absent or unreadable. Only store I/O failures are returned as errors.
func (c *Cache) Lookup(ctx context.Context, name string) (ir.Result[*ir.DocTypeSchema], error) {
	raw, ok, err := c.kv.Get(ctx, Key(name))
	if err != nil {
		return ir.Result[*ir.DocTypeSchema]{}, err
	}
	if !ok {
		c.forget(name)
		c.metrics.CacheMiss()
		return ir.Empty[*ir.DocTypeSchema](), nil
	}

	if s, ok := c.recall(name, raw); ok {
		c.metrics.CacheHit(metrics.LayerMemory)
		return ir.Found(s), nil
	}

	var s ir.DocTypeSchema
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		c.metrics.CorruptRead("doctype")
		c.logger.Warn("cached doctype is corrupt", "name", name, "error", err)
		return ir.Corrupt[*ir.DocTypeSchema](ir.NewError(ir.ErrCodeCorrupt, "schema.read_local", Key(name), err)), nil
	}
	if s.Name == "" {
		s.Name = name
	}

	c.metrics.CacheHit(metrics.LayerStore)
	c.remember(name, raw, &s)
	return ir.Found(clone(&s)), nil
}

// ReadLocal returns the cached schema, or (nil, nil) when name was never
// cached. Malformed stored bytes yield a CORRUPT_DATA error.
func (c *Cache) ReadLocal(ctx context.Context, name string) (*ir.DocTypeSchema, error) {
	r, err := c.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	switch r.State {
	case ir.ReadFound:
		return r.Value, nil
	case ir.ReadCorrupt:
		return nil, r.Err
	default:
		return nil, nil
	}
}

// Resolve returns the local schema when present. On a miss it fetches
// remotely only if connected; offline it returns (nil, nil) without any
// remote attempt. A corrupt local entry counts as a miss.
func (c *Cache) Resolve(ctx context.Context, name string, connected bool) (*ir.DocTypeSchema, error) {
	r, err := c.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if r.State == ir.ReadFound {
		return r.Value, nil
	}
	if r.State == ir.ReadCorrupt {
		c.logger.Warn("treating corrupt doctype as cache miss", "name", name, "connected", connected)
	}
	if !connected {
		c.logger.Debug("offline cache miss", "name", name)
		return nil, nil
	}
	return c.FetchAndCacheRemote(ctx, name)
}

// FetchAndCacheRemote downloads name from the provider, persists the blob and
// records the name in the names index. Concurrent calls for the same name
// share one remote request. The shared request is bounded by the cache
// timeout only; a caller whose ctx ends stops waiting without failing the
// others.
//
// Provider failures are REMOTE_FETCH_ERROR; a failed blob write is returned
// as the store's STORE_ERROR. A failed index update is logged only, since
// ListCachedNames rebuilds the index from the blobs.
func (c *Cache) FetchAndCacheRemote(ctx context.Context, name string) (*ir.DocTypeSchema, error) {
	ch := c.group.DoChan(name, func() (any, error) {
		return c.fetchAndStore(context.WithoutCancel(ctx), name)
	})
	select {
	case <-ctx.Done():
		return nil, ir.NewError(ir.ErrCodeRemoteFetch, "schema.fetch", name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug("joined in-flight doctype fetch", "name", name)
		}
		return clone(res.Val.(*ir.DocTypeSchema)), nil
	}
}

func (c *Cache) fetchAndStore(ctx context.Context, name string) (*ir.DocTypeSchema, error) {
	const op = "schema.fetch"
	if c.provider == nil {
		return nil, ir.Errorf(ir.ErrCodeRemoteFetch, op, name, "no metadata provider configured")
	}

	fctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	s, err := c.provider.GetDocType(fctx, name)
	c.metrics.RemoteFetch(err)
	if err != nil {
		if !ir.IsRemoteFetchError(err) {
			err = ir.NewError(ir.ErrCodeRemoteFetch, op, name, err)
		}
		c.logger.Warn("remote doctype fetch failed", "name", name, "error", err)
		return nil, err
	}
	if s.Name == "" {
		s.Name = name
	}

	data, err := json.Marshal(s)
	if err != nil {
		return nil, ir.NewError(ir.ErrCodeRemoteFetch, op, name, err)
	}

	unlock, err := c.locks.Lock(ctx, Key(name))
	if err != nil {
		return nil, ir.NewError(ir.ErrCodeStore, op, Key(name), err)
	}
	err = c.kv.Set(ctx, Key(name), string(data))
	if err == nil {
		c.remember(name, string(data), s)
	}
	unlock()
	if err != nil {
		return nil, err
	}

	if err := c.addToIndex(ctx, name); err != nil {
		c.logger.Warn("names index update failed", "name", name, "error", err)
	}

	c.logger.Debug("cached doctype", "name", name, "fields", len(s.Fields), "fingerprint", s.Fingerprint())
	return s, nil
}

// Evict removes the cached schema and its names index entry.
func (c *Cache) Evict(ctx context.Context, name string) error {
	const op = "schema.evict"

	unlock, err := c.locks.Lock(ctx, Key(name))
	if err != nil {
		return ir.NewError(ir.ErrCodeStore, op, Key(name), err)
	}
	err = c.kv.Remove(ctx, Key(name))
	c.forget(name)
	unlock()
	if err != nil {
		return err
	}

	if err := c.removeFromIndex(ctx, name); err != nil {
		return err
	}
	c.logger.Debug("evicted doctype", "name", name)
	return nil
}

// RemoteNames lists every doctype the provider serves.
func (c *Cache) RemoteNames(ctx context.Context) ([]string, error) {
	const op = "schema.remote_names"
	if c.provider == nil {
		return nil, ir.Errorf(ir.ErrCodeRemoteFetch, op, "", "no metadata provider configured")
	}

	fctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	names, err := c.provider.ListDocTypes(fctx)
	c.metrics.RemoteFetch(err)
	if err != nil {
		if !ir.IsRemoteFetchError(err) {
			err = ir.NewError(ir.ErrCodeRemoteFetch, op, "", err)
		}
		return nil, err
	}
	return names, nil
}

// memEntry is a decoded schema and the stored bytes it was decoded from.
type memEntry struct {
	raw    string
	schema *ir.DocTypeSchema
}

// recall returns a copy of the decoded schema for name when it was decoded
// from exactly raw. A stale entry is dropped.
func (c *Cache) recall(name, raw string) (*ir.DocTypeSchema, bool) {
	if c.mem == nil {
		return nil, false
	}
	v, ok := c.mem.Get(name)
	if !ok {
		return nil, false
	}
	e := v.(memEntry)
	if e.raw != raw {
		c.mem.Remove(name)
		return nil, false
	}
	return clone(e.schema), true
}

func (c *Cache) remember(name, raw string, s *ir.DocTypeSchema) {
	if c.mem != nil {
		c.mem.Add(name, memEntry{raw: raw, schema: clone(s)})
	}
}

func (c *Cache) forget(name string) {
	if c.mem != nil {
		c.mem.Remove(name)
	}
}

// clone copies s deeply enough that callers may modify the result.
func clone(s *ir.DocTypeSchema) *ir.DocTypeSchema {
	cp := *s
	cp.Fields = append([]ir.FieldDefinition(nil), s.Fields...)
	cp.Meta = maps.Clone(s.Meta)
	return &cp
}
