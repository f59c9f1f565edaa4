// Package audit implements async event dispatching for authentication and
// administration outcomes.
//
// # Components
//
//   - [Sink]: event consumer interface (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: one outcome record with type, username, admin, reason and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. The Engine and flow
// functions decide which events to emit.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import idpcore or any sibling internal package.
//   - Carry raw passwords or token values in any field.
package audit
