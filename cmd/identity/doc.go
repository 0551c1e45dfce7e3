// Package identity is the user directory behind ava's auth core.
//
// It owns user registration, lookups by login and email, and the password
// credential row. Password hashing itself lives in cmd/security/password; the
// store only ever sees encoded hashes.
//
// The sentinel kinds in kinds.go are shared by the session and recovery
// packages and map one-to-one onto API status codes.
package identity
