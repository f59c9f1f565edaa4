// Package internal contains helpers private to idpcore: token generation,
// hashing and redaction.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for every Engine operation
//   - httpapi: chi router exposing the engine to HTTP collaborators
//   - limiters: Redis-backed consecutive-failure counter
//   - logging: context-aware structured logger over log/slog
//   - stores: Redis-backed single-use token store
//
// # What this package must NOT do
//
//   - Export types that appear in the public idpcore API.
//   - Be imported by any package outside the idpcore module.
package internal
