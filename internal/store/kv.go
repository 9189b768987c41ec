package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/fieldkit/internal/ir"
)

// KV is the key-value store adapter.
type KV interface {
	// Get returns the value under key. found is false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys returns every stored key in byte order.
	Keys(ctx context.Context) ([]string, error)

	// MultiGet returns one Entry per requested key, in request order.
	MultiGet(ctx context.Context, keys []string) ([]Entry, error)

	// Close releases the underlying resources.
	Close() error
}

// Entry is one MultiGet result.
type Entry struct {
	Key   string
	Value string
	Found bool
}

// KeysWithPrefix filters kv.Keys by prefix.
func KeysWithPrefix(ctx context.Context, kv KV, prefix string) ([]string, error) {
	keys, err := kv.Keys(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Backend names accepted by OpenBackend.
const (
	BackendSQLite  = "sqlite"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

// OpenBackend opens the named backend at path. path is ignored for memory.
func OpenBackend(backend, path string) (KV, error) {
	switch backend {
	case BackendSQLite, "":
		s, err := Open(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendLevelDB:
		s, err := OpenLevel(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

var errClosed = errors.New("store is closed")

func storeErr(op, key string, err error) error {
	return ir.NewError(ir.ErrCodeStore, "store."+op, key, err)
}
