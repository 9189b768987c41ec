package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("get", key, err)
	}
	return value, true, nil
}

// Keys returns every key in byte order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key COLLATE BINARY ASC`)
	if err != nil {
		return nil, storeErr("keys", "", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, storeErr("keys", "", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("keys", "", err)
	}
	return keys, nil
}

// MultiGet fetches several keys in one query.
// Results follow the order of keys; duplicates are answered once per request.
func (s *Store) MultiGet(ctx context.Context, keys []string) ([]Entry, error) {
	if len(keys) == 0 {
		return []Entry{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, storeErr("multi_get", "", err)
	}
	defer rows.Close()

	found := make(map[string]string, len(keys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, storeErr("multi_get", "", err)
		}
		found[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("multi_get", "", err)
	}

	out := make([]Entry, len(keys))
	for i, k := range keys {
		v, ok := found[k]
		out[i] = Entry{Key: k, Value: v, Found: ok}
	}
	return out, nil
}
