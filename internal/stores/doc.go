// Package stores provides the Redis-backed store for single-use reset and
// verification tokens.
//
// # Design
//
// Records are versioned, binary-encoded and keyed by a hash of the token
// value, never the raw value. Consume uses a WATCH/MULTI optimistic
// transaction with retry on contention so that exactly one caller receives
// a given record.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for token records.
// It does NOT generate tokens, decide expiry outcomes or emit events; those
// belong to the flow functions in internal/flows.
//
// # What this package must NOT do
//
//   - Import idpcore or any sibling internal package.
//   - Log or persist raw token values.
package stores
