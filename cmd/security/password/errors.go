package password

import "errors"

// Public, stable errors for callers.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
	ErrMissingUpper     = errors.New("password must contain an upper-case letter")
	ErrMissingDigit     = errors.New("password must contain a digit")
	ErrInvalidHash      = errors.New("invalid password hash")
	ErrSecretTooLong    = errors.New("secret exceeds 72 bytes")
)
