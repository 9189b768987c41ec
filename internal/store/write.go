package store

import (
	"context"
	"time"
)

// Set upserts value under key.
// The previous value, if any, is replaced in a single statement so readers
// never observe a partially written document.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`,
		key,
		value,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return storeErr("set", key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is a no-op.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return storeErr("remove", key, err)
	}
	return nil
}
