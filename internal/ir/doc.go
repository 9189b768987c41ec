// Package ir provides the data model shared by every fieldkit package.
//
// This package contains type definitions, the schema fingerprint, and the
// error taxonomy. All other internal packages import ir; ir imports nothing
// internal. This keeps ir the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - Every persisted value is one JSON document per store key
//   - Schema fingerprints are computed only by Fingerprint in hash.go
//   - A SubmissionItem's ID and SchemaHash never change after enqueue
//   - Reads that may hit corrupt data return a Result, not a bare zero value
package ir
