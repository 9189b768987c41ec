// Package store provides the durable key-value adapter every fieldkit
// component writes through.
//
// The KV contract:
//   - Get / Set / Remove on a single string key
//   - Keys lists every key in byte order
//   - MultiGet returns entries in the order requested
//
// Values are UTF-8 text holding one JSON document per key. No multi-key
// transaction is offered: writes to different keys are independent and
// writes to the same key are last-write-wins. Components that read, modify
// and write a key must serialize themselves (see internal/keymutex).
//
// # Backends
//
//   - SQLite (Open): default, one table kv(key, value, updated_at)
//   - LevelDB (OpenLevel): embedded LSM store for devices without SQLite
//   - Memory (NewMemory): tests and ephemeral runs
//
// # SQLite Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Every I/O failure is returned as an *ir.Error with code STORE_ERROR.
package store
