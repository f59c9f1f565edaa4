// Package limiters provides the Redis-backed consecutive-failure counter
// used by the authentication engine's lockout policy.
//
// # Limiters
//
//   - [RetryCounter]: per-username failure count with an atomic
//     increment and idle expiry. It is cleared only by the caller.
//
// # Architecture boundaries
//
// The counter owns its Redis key namespace and error type. It reports counts;
// the engine decides to lock the account.
//
// # What this package must NOT do
//
//   - Import the root package or any sibling internal package.
//   - Mutate account records.
package limiters
