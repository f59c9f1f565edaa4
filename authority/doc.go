// Package authority normalizes role and group codes and answers membership
// questions over granted authorities.
//
// Role codes are stored without the "ROLE_" prefix and compared in their
// canonical, prefixed form. Group codes are stored as given, trimmed and
// upper-cased.
//
// # What this package must NOT do
//
//   - Access storage or the network.
//   - Decide which roles an administrator may assign; the Engine does that.
package authority
