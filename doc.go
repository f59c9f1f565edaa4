// Package idpcore is the authentication decision engine and delegated
// administration model of an identity provider.
//
// An [Engine] verifies credentials against pluggable password hash schemes,
// counts consecutive failures and locks accounts at a configured threshold,
// and decides which administrator may manage which user and grant which
// roles. Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// idpcore is the public surface: [Engine], [Builder], [Config], the record
// types and the collaborator interfaces ([AccountStore], [RoleStore],
// [GroupStore], [TokenStore], [RetryTracker], [Directory], [Notifier]).
// Flow orchestration, Redis counters and token storage, logging and audit
// dispatch live under internal/.
//
// Persistence adapters live in store/memory and store/postgres; the HTTP
// notification client in notify; the admin API and CLI in internal/httpapi
// and cmd/idpadmin.
//
// # Administrators
//
// Every mutating call takes the acting administrator as an explicit
// [Principal]. Nothing is read from process-global state.
package idpcore
