// Package middleware adapts idpcore access tokens to net/http.
//
// [Guard] turns a bearer token into an idpcore.Principal stored in the
// request context. [RequireAuthority] rejects principals that hold none of
// the listed authorities. Neither makes management decisions; those belong
// to the engine.
package middleware
