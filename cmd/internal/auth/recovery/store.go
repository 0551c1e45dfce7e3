package recovery

import (
	"context"
	"time"

	"ava/cmd/identity/ids"
)

// Record is the stored recovery code of one user. CodeHash is a password.Hasher encoding.
type Record struct {
	UserID    ids.UserID
	CodeHash  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is the persistence boundary for recovery codes.
//
// A user has at most one record. Replace swaps it atomically.
type Store interface {
	Replace(ctx context.Context, rec Record) error
	// GetByEmail returns ErrCodeNotFound when the email is unknown or has no record.
	GetByEmail(ctx context.Context, email string) (Record, error)
	// Consume deletes the user's record only if it still carries codeHash.
	// It returns ErrCodeNotFound when the record is gone or was replaced, so
	// of several concurrent callers holding the same record exactly one wins.
	Consume(ctx context.Context, userID ids.UserID, codeHash string) error
	// Delete is idempotent.
	Delete(ctx context.Context, userID ids.UserID) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// EmailResolver maps an email to a user id. identity.Store satisfies it.
type EmailResolver interface {
	GetUserIDByEmail(ctx context.Context, email string) (ids.UserID, error)
}
