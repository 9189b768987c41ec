package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/fieldkit/internal/ir"
)

// CountingProvider is an in-memory metadata.Provider that records every
// call, so tests can assert on the number of remote round trips.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type CountingProvider struct {
	mu        sync.Mutex
	schemas   map[string]*ir.DocTypeSchema
	err       error
	gate      chan struct{}
	getCalls  map[string]int
	listCalls int
}

// NewCountingProvider creates a provider serving the given schemas.
func NewCountingProvider(schemas ...*ir.DocTypeSchema) *CountingProvider {
	p := &CountingProvider{
		schemas:  make(map[string]*ir.DocTypeSchema),
		getCalls: make(map[string]int),
	}
	for _, s := range schemas {
		p.schemas[s.Name] = s
	}
	return p
}

// Put adds or replaces a served schema.
func (p *CountingProvider) Put(s *ir.DocTypeSchema) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.schemas[s.Name] = s
}

// FailWith makes every subsequent call return err. nil restores normal
// behavior.
func (p *CountingProvider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Hold makes GetDocType block until Release is called.
func (p *CountingProvider) Hold() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gate = make(chan struct{})
}

// Release unblocks callers parked by Hold.
func (p *CountingProvider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gate != nil {
		close(p.gate)
		p.gate = nil
	}
}

// GetDocType implements metadata.Provider.
func (p *CountingProvider) GetDocType(ctx context.Context, name string) (*ir.DocTypeSchema, error) {
	p.mu.Lock()
	p.getCalls[name]++
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ir.NewError(ir.ErrCodeRemoteFetch, "metadata.get_doctype", name, ctx.Err())
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, ir.NewError(ir.ErrCodeRemoteFetch, "metadata.get_doctype", name, p.err)
	}
	s, ok := p.schemas[name]
	if !ok {
		return nil, ir.Errorf(ir.ErrCodeRemoteFetch, "metadata.get_doctype", name, "http 404")
	}
	cp := *s
	cp.Fields = append([]ir.FieldDefinition(nil), s.Fields...)
	return &cp, nil
}

// ListDocTypes implements metadata.Provider.
func (p *CountingProvider) ListDocTypes(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	if p.err != nil {
		return nil, ir.NewError(ir.ErrCodeRemoteFetch, "metadata.list_doctypes", "", p.err)
	}
	names := make([]string, 0, len(p.schemas))
	for n := range p.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Calls returns the total number of provider calls of any kind.
func (p *CountingProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, n := range p.getCalls {
		total += n
	}
	return total + p.listCalls
}

// GetCalls returns the number of GetDocType calls for name.
func (p *CountingProvider) GetCalls(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getCalls[name]
}
