package store

import (
	"context"
	"strconv"
	"time"
)

// QuarantinePrefix namespaces copies of values that could not be decoded.
const QuarantinePrefix = "fieldkit:quarantine:"

// QuarantineKey returns the key a corrupt value of key is copied to at t.
func QuarantineKey(key string, t time.Time) string {
	return QuarantinePrefix + key + ":" + strconv.FormatInt(t.UnixNano(), 10)
}

// Quarantine copies raw aside before the caller overwrites key, and returns
// the key it was written to.
func Quarantine(ctx context.Context, kv KV, key, raw string, t time.Time) (string, error) {
	qk := QuarantineKey(key, t)
	if err := kv.Set(ctx, qk, raw); err != nil {
		return "", err
	}
	return qk, nil
}
