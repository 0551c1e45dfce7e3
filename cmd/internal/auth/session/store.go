package session

import (
	"context"
	"net"
	"time"

	"ava/cmd/identity/ids"
)

// Device describes the client that owns a session. Only UserAgent takes part
// in session identity; IP is informational.
type Device struct {
	UserAgent string
	IP        net.IP
}

// Row mirrors the sessions table.
type Row struct {
	ID               ids.SessionID
	UserID           ids.UserID
	RefreshTokenHash string
	UserAgent        string
	IP               net.IP
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Key is the exact-match lookup used by logout and refresh.
type Key struct {
	UserID      ids.UserID
	UserAgent   string
	RefreshHash string
}

// Store abstracts persistence for session rows.
//
// Lookups return ErrSessionNotFound when nothing matches. Create returns
// ErrDeviceConflict when a row for the same (user, user agent) already exists.
type Store interface {
	// GetByDevice returns the session for (userID, userAgent). Inside InTx the
	// row is locked until the transaction ends.
	GetByDevice(ctx context.Context, userID ids.UserID, userAgent string) (Row, error)

	// Get returns the session matching all fields of k. Inside InTx the row is locked.
	Get(ctx context.Context, k Key) (Row, error)

	Create(ctx context.Context, row Row) error
	Delete(ctx context.Context, id ids.SessionID) error

	// DeleteAllForUser removes every session of the user and returns the count.
	DeleteAllForUser(ctx context.Context, userID ids.UserID) (int64, error)

	// DeleteExpired removes sessions with expires_at < now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// InTx runs fn against a transactional view of the store. fn's error rolls back.
	InTx(ctx context.Context, fn func(Store) error) error
}
