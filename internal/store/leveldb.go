package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelStore is the LevelDB KV backend.
// LevelDB iterates keys in byte order, which matches the KV contract.
type LevelStore struct {
	db *leveldb.DB
}

var _ KV = (*LevelStore)(nil)

// OpenLevel opens or creates a LevelDB database in directory path.
// A database left unreadable by a crash is recovered before giving up.
func OpenLevel(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		if !lerrors.IsCorrupted(err) {
			return nil, fmt.Errorf("failed to open leveldb: %w", err)
		}
		db, err = leveldb.RecoverFile(path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to recover leveldb: %w", err)
		}
	}
	return &LevelStore{db: db}, nil
}

// Close closes the database.
func (s *LevelStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the value stored under key.
func (s *LevelStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, storeErr("get", key, err)
	}
	v, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("get", key, err)
	}
	return string(v), true, nil
}

// Set stores value under key with a synced write.
func (s *LevelStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return storeErr("set", key, err)
	}
	if err := s.db.Put([]byte(key), []byte(value), &opt.WriteOptions{Sync: true}); err != nil {
		return storeErr("set", key, err)
	}
	return nil
}

// Remove deletes key. LevelDB treats deleting an absent key as success.
func (s *LevelStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return storeErr("remove", key, err)
	}
	if err := s.db.Delete([]byte(key), &opt.WriteOptions{Sync: true}); err != nil {
		return storeErr("remove", key, err)
	}
	return nil
}

// Keys returns every key in byte order.
func (s *LevelStore) Keys(ctx context.Context) ([]string, error) {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	keys := []string{}
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, storeErr("keys", "", err)
		}
		keys = append(keys, string(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, storeErr("keys", "", err)
	}
	return keys, nil
}

// MultiGet reads every key from one snapshot, so the answers are mutually
// consistent even while writers continue.
func (s *LevelStore) MultiGet(ctx context.Context, keys []string) ([]Entry, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, storeErr("multi_get", "", err)
	}
	defer snap.Release()

	out := make([]Entry, len(keys))
	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return nil, storeErr("multi_get", k, err)
		}
		v, err := snap.Get([]byte(k), nil)
		switch {
		case errors.Is(err, leveldb.ErrNotFound):
			out[i] = Entry{Key: k}
		case err != nil:
			return nil, storeErr("multi_get", k, err)
		default:
			out[i] = Entry{Key: k, Value: string(v), Found: true}
		}
	}
	return out, nil
}
