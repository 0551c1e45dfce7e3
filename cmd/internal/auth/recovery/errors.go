package recovery

import (
	"errors"
	"fmt"

	"ava/cmd/identity"
)

var (
	// ErrCodeNotFound: no recovery code exists for the email.
	ErrCodeNotFound = fmt.Errorf("recovery code not found: %w", identity.ErrNotFound)

	// ErrCodeRejected covers both a wrong and an expired code.
	ErrCodeRejected = fmt.Errorf("recovery code rejected: %w", identity.ErrInvalidInput)

	// ErrPasswordPolicy wraps the concrete password policy failure.
	ErrPasswordPolicy = fmt.Errorf("new password rejected: %w", identity.ErrInvalidInput)

	// ErrDeliveryFailed is returned only when delivery is required.
	ErrDeliveryFailed = errors.New("recovery code delivery failed")

	ErrConfig = errors.New("recovery: invalid config")
)
