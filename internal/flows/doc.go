// Package flows contains the orchestration behind every Engine operation.
//
// Each flow (RunAuthenticate, RunAddRole, RunCheckToken, ...) accepts a typed
// dependency struct of plain functions plus the metric IDs, audit event names
// and sentinel errors it reports with. Flow-local record types keep the
// package free of any import of the root module.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import idpcore (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency funcs.
package flows
