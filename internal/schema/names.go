package schema

import (
	"context"
	"encoding/json"
	"slices"
	"strings"

	"github.com/roach88/fieldkit/internal/ir"
	"github.com/roach88/fieldkit/internal/store"
)

// ListCachedNames returns the names of every cached schema in byte order.
//
// The per-form blobs are authoritative: the list comes from a key-prefix
// scan, and the persisted names index is rewritten whenever it disagrees.
func (c *Cache) ListCachedNames(ctx context.Context) ([]string, error) {
	keys, err := store.KeysWithPrefix(ctx, c.kv, KeyPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, KeyPrefix))
	}

	unlock, err := c.locks.Lock(ctx, NamesKey)
	if err != nil {
		return nil, ir.NewError(ir.ErrCodeStore, "schema.list", NamesKey, err)
	}
	defer unlock()

	index, err := c.readIndex(ctx)
	if err != nil {
		c.logger.Warn("names index unreadable", "error", err)
	}
	if err != nil || !slices.Equal(index, names) {
		if err := c.writeIndex(ctx, names); err != nil {
			c.logger.Warn("names index repair failed", "error", err)
		} else {
			c.logger.Info("repaired names index", "indexed", len(index), "cached", len(names))
		}
	}
	return names, nil
}

// KnownNames returns the persisted names index as is, without checking it
// against the cached blobs. A missing or corrupt index reads as empty.
func (c *Cache) KnownNames(ctx context.Context) ([]string, error) {
	names, err := c.readIndex(ctx)
	if err != nil && !ir.IsCorrupt(err) {
		return nil, err
	}
	return names, nil
}

// readIndex decodes the names index. A corrupt value is reported with a
// CORRUPT_DATA error alongside a nil slice.
func (c *Cache) readIndex(ctx context.Context) ([]string, error) {
	raw, ok, err := c.kv.Get(ctx, NamesKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		c.metrics.CorruptRead("names_index")
		return nil, ir.NewError(ir.ErrCodeCorrupt, "schema.read_index", NamesKey, err)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

func (c *Cache) writeIndex(ctx context.Context, names []string) error {
	if names == nil {
		names = []string{}
	}
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, NamesKey, string(data))
}

func (c *Cache) addToIndex(ctx context.Context, name string) error {
	return c.updateIndex(ctx, func(names []string) []string {
		if i, found := slices.BinarySearch(names, name); !found {
			names = slices.Insert(names, i, name)
		}
		return names
	})
}

func (c *Cache) removeFromIndex(ctx context.Context, name string) error {
	return c.updateIndex(ctx, func(names []string) []string {
		if i, found := slices.BinarySearch(names, name); found {
			names = slices.Delete(names, i, i+1)
		}
		return names
	})
}

// updateIndex applies fn to the index under the index lock. A corrupt index
// is rebuilt from a key-prefix scan before fn runs.
func (c *Cache) updateIndex(ctx context.Context, fn func([]string) []string) error {
	unlock, err := c.locks.Lock(ctx, NamesKey)
	if err != nil {
		return ir.NewError(ir.ErrCodeStore, "schema.update_index", NamesKey, err)
	}
	defer unlock()

	names, err := c.readIndex(ctx)
	if ir.IsCorrupt(err) {
		c.logger.Warn("rebuilding corrupt names index", "error", err)
		keys, kerr := store.KeysWithPrefix(ctx, c.kv, KeyPrefix)
		if kerr != nil {
			return kerr
		}
		names = names[:0]
		for _, k := range keys {
			names = append(names, strings.TrimPrefix(k, KeyPrefix))
		}
	} else if err != nil {
		return err
	}

	before := slices.Clone(names)
	names = fn(names)
	if slices.Equal(before, names) && err == nil {
		return nil
	}
	return c.writeIndex(ctx, names)
}
