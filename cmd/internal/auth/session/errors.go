package session

import (
	"errors"
	"fmt"

	"ava/cmd/identity"
)

var (
	// ErrInvalidToken is returned when a token fails signature, issuer, type or time checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSessionNotFound covers a missing session, a device or token mismatch and an
	// expired session alike.
	ErrSessionNotFound = fmt.Errorf("session not found: %w", identity.ErrNotFound)

	// ErrDeviceConflict is returned by stores when a second row for the same
	// (user, user agent) pair would be created.
	ErrDeviceConflict = errors.New("session already exists for device")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
