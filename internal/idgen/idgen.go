// Package idgen generates submission identifiers.
//
// Submission ids are the queue's sole identity key, so they must be unique
// and should sort by creation time. The default is a monotonic ULID; UUIDv7
// is available for deployments that already key records by UUID.
package idgen

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator produces unique string identifiers.
type Generator interface {
	Generate() string
}

// Strategy names accepted by FromName.
const (
	StrategyULID   = "ulid"
	StrategyUUIDv7 = "uuidv7"
)

// FromName returns the generator for a configured strategy.
func FromName(name string) (Generator, error) {
	switch name {
	case StrategyULID, "":
		return NewULID(), nil
	case StrategyUUIDv7:
		return UUIDv7Generator{}, nil
	default:
		return nil, fmt.Errorf("unknown id strategy %q", name)
	}
}

// ULIDGenerator generates lexicographically sortable ULIDs.
//
// Monotonic entropy guarantees that ids minted within the same millisecond
// still sort in creation order, so queue ids are strictly increasing within
// a process.
//
// Thread-safety: safe for concurrent use via internal mutex.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewULID creates a ULID generator backed by crypto/rand.
func NewULID() *ULIDGenerator {
	return NewULIDWith(rand.Reader, time.Now)
}

// NewULIDWith creates a ULID generator with explicit entropy and clock.
// Used in tests for reproducible ids.
func NewULIDWith(entropy io.Reader, now func() time.Time) *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(entropy, 0),
		now:     now,
	}
}

// Generate returns a 26-character Crockford base32 ULID.
//
// Panics if the entropy source fails (should never happen with crypto/rand).
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

// UUIDv7Generator generates time-sortable UUIDv7 strings.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7 (36 characters).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids for testing.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedGenerator("sub-1", "sub-2")
//	gen.Generate() // "sub-1"
//	gen.Generate() // "sub-2"
//	gen.Generate() // panic: all ids exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics if all ids have been consumed, to catch tests that create more
// submissions than they expect.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
