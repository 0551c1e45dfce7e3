// Package ids provides the opaque identifier types shared by identity and auth packages.
//
// IDs are ULIDs internally and only become plain strings at the HTTP and SQL boundaries.
package ids

import (
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrInvalidID is returned when a string is not a valid ULID.
var ErrInvalidID = errors.New("invalid id")

// UserID identifies a user.
type UserID string

// SessionID identifies a session row.
type SessionID string

func (id UserID) String() string    { return string(id) }
func (id SessionID) String() string { return string(id) }

// IsZero reports whether the id is empty.
func (id UserID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

// IsZero reports whether the id is empty.
func (id SessionID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

// NewULID returns a new ULID string (26 chars).
// ULIDs are lexicographically sortable and work well in distributed systems.
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewUserID returns a fresh user id.
func NewUserID(now time.Time) (UserID, error) {
	s, err := NewULID(now)
	if err != nil {
		return "", err
	}
	return UserID(s), nil
}

// NewSessionID returns a fresh session id.
func NewSessionID(now time.Time) (SessionID, error) {
	s, err := NewULID(now)
	if err != nil {
		return "", err
	}
	return SessionID(s), nil
}

// ParseUserID validates s as a ULID and returns it as a UserID in canonical (upper-case) form.
func ParseUserID(s string) (UserID, error) {
	id, err := ulid.ParseStrict(strings.TrimSpace(s))
	if err != nil {
		return "", ErrInvalidID
	}
	return UserID(id.String()), nil
}
