// Package jwt issues and verifies the short-lived access tokens that carry
// an administrator's username and authorities to the admin API.
package jwt
