// Package password verifies and produces password hashes across several
// stored formats.
//
// # Stored formats
//
// A stored hash carries an optional scheme tag in braces:
//
//	{bcrypt}$2a$10$...
//	{argon2id}$argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
//	S:<40 hex sha1><20 hex salt>          (untagged legacy directory hash)
//
// [Schemes] maps a tag to a [Scheme]. Hashes without a tag are handed to the
// fallback scheme, which for this service is the legacy SHA-1 format
// inherited from the external directory. Adding a format is adding a table
// entry.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Log plaintext passwords.
//   - Enforce password policy (length, reuse); the Engine does that.
package password
