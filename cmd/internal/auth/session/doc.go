// Package session implements ava's device-scoped session model.
//
// A user has at most one session per device, where a device is identified by
// its User-Agent string. Logging in again from the same device replaces the
// old session; refreshing deletes the row and mints a new one in the same
// transaction, so a refresh token rotates at most once.
//
// Access and refresh tokens are HS256 JWTs. Refresh tokens are stored only as
// a digest (see cmd/security/token), and the row's expires_at is authoritative.
package session
