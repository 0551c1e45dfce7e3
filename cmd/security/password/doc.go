// Package password provides secret hashing and password policy for ava.
//
// It includes:
// - Argon2id hashing in PHC string format (default)
// - bcrypt hashing and verification of legacy $2a$/$2b$/$2y$ hashes
// - Password policy validation, kept separate from hashing
//
// Security notes:
// - Hash strings are treated as untrusted input during Compare and are validated accordingly.
// - Compare refuses hashes with parameters that exceed reasonable bounds.
package password
