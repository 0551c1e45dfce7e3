package identity

import (
	"context"
	"strings"
	"time"

	"ava/cmd/identity/ids"
)

// User is the directory view of an account. Credentials are never part of it.
type User struct {
	ID          ids.UserID
	Login       string
	Email       string
	Tel         *string
	DisplayName string
	DateOfBirth *time.Time
	CreatedAt   time.Time
}

// CreateUserInput describes a registration.
// PasswordHash must already be an encoded hash; stores never see plaintext passwords.
type CreateUserInput struct {
	Login        string
	Email        string
	Tel          *string
	DisplayName  *string
	DateOfBirth  *time.Time
	PasswordHash string
	Now          time.Time
}

// Credentials is the login-time projection of a user.
type Credentials struct {
	UserID       ids.UserID
	PasswordHash string
}

// Store is the user directory persistence boundary.
//
// Lookups by login and email are case-insensitive (see NormalizeLogin, NormalizeEmail).
// Missing rows are reported as NotFoundError.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	GetUserIDByLogin(ctx context.Context, login string) (ids.UserID, error)
	GetUserIDByEmail(ctx context.Context, email string) (ids.UserID, error)
	GetCredentialsByLogin(ctx context.Context, login string) (Credentials, error)
	GetUserByID(ctx context.Context, id ids.UserID) (User, error)

	// UpdatePassword replaces the stored credential. It is the only mutation of a
	// password after registration.
	UpdatePassword(ctx context.Context, id ids.UserID, passwordHash string, now time.Time) error

	// DeleteUser removes the user; sessions and recovery codes cascade.
	DeleteUser(ctx context.Context, id ids.UserID) error
}

// validateCreate normalizes in and checks the fields every store requires.
func validateCreate(op string, in CreateUserInput) (CreateUserInput, error) {
	in.Login = trimSpace(in.Login)
	in.Email = trimSpace(in.Email)
	in.Tel = trimPtr(in.Tel)
	in.DisplayName = trimPtr(in.DisplayName)

	if in.Login == "" {
		return in, invalid(op, "login is required")
	}
	if in.Email == "" {
		return in, invalid(op, "email is required")
	}
	if trimSpace(in.PasswordHash) == "" {
		return in, invalid(op, "password hash is required")
	}
	if !ValidLogin(in.Login) {
		return in, invalid(op, "login must be 2-50 letters or digits")
	}
	if !ValidEmail(in.Email) {
		return in, invalid(op, "email is not a valid address")
	}
	if in.Tel != nil {
		n := NormalizeTel(*in.Tel)
		switch {
		case n == "":
			in.Tel = nil
		case !ValidTel(n):
			return in, invalid(op, "tel is not a valid phone number")
		default:
			in.Tel = &n
		}
	}
	if in.DisplayName == nil {
		dn := in.Login
		in.DisplayName = &dn
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}

func trimSpace(s string) string { return strings.TrimSpace(s) }

// trimPtr trims a string pointer, returning nil if result is empty.
func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

// invalid standardizes invalid input errors.
func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}
