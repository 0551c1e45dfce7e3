package session

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"ava/cmd/identity"
	"ava/cmd/identity/ids"
	"ava/cmd/security/token"
)

// Service orchestrates session creation, rotation and termination and keeps
// the one-session-per-device invariant.
type Service struct {
	store  Store
	tokens TokenGenerator
	hasher token.Hasher
}

// Issued is the result of creating or rotating a session.
type Issued struct {
	SessionID    ids.SessionID
	UserID       ids.UserID
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// LogoutInput identifies the session to end. All fields must match exactly.
type LogoutInput struct {
	UserID       ids.UserID
	RefreshToken string
	UserAgent    string
}

// RefreshInput identifies the session to rotate. IP is recorded on the new row.
type RefreshInput struct {
	UserID       ids.UserID
	RefreshToken string
	UserAgent    string
	IP           net.IP
}

// NewService constructs a Service. The token hasher digests refresh tokens for storage.
func NewService(store Store, tokens TokenGenerator, hasher token.Hasher) *Service {
	return &Service{store: store, tokens: tokens, hasher: hasher}
}

// CreateSession replaces any session for (userID, dev.UserAgent) with a new one.
//
// Lookup, delete and insert run in one transaction. A concurrent login from
// the same device surfaces as ErrDeviceConflict and is retried once, so
// exactly one row survives and the last writer wins.
func (s *Service) CreateSession(ctx context.Context, now time.Time, userID ids.UserID, dev Device) (Issued, error) {
	const op = "session.CreateSession"

	if userID.IsZero() {
		return Issued{}, identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "missing user_id"}
	}

	var out Issued
	err := s.inTxRetryDevice(ctx, func(st Store) error {
		var err error
		out, err = s.issue(ctx, st, now, userID, dev)
		return err
	})
	if err != nil {
		return Issued{}, err
	}
	return out, nil
}

// Logout deletes the session matching in exactly.
// A present but expired session is still deleted successfully.
func (s *Service) Logout(ctx context.Context, in LogoutInput) error {
	if in.UserID.IsZero() || in.RefreshToken == "" {
		return ErrSessionNotFound
	}

	return s.store.InTx(ctx, func(st Store) error {
		row, err := st.Get(ctx, s.key(in.UserID, in.UserAgent, in.RefreshToken))
		if err != nil {
			return err
		}
		return st.Delete(ctx, row.ID)
	})
}

// UpdateRefreshTokens rotates the session matching in exactly.
//
// A missing row and an expired row both yield ErrSessionNotFound. On success
// the old row is gone, so the presented refresh token cannot rotate again.
func (s *Service) UpdateRefreshTokens(ctx context.Context, now time.Time, in RefreshInput) (Issued, error) {
	if in.UserID.IsZero() || in.RefreshToken == "" {
		return Issued{}, ErrSessionNotFound
	}

	k := s.key(in.UserID, in.UserAgent, in.RefreshToken)

	var out Issued
	err := s.inTxRetryDevice(ctx, func(st Store) error {
		row, err := st.Get(ctx, k)
		if err != nil {
			return err
		}
		if row.ExpiresAt.Before(now) {
			return ErrSessionNotFound
		}
		if err := st.Delete(ctx, row.ID); err != nil {
			return err
		}
		out, err = s.issue(ctx, st, now, in.UserID, Device{UserAgent: in.UserAgent, IP: in.IP})
		return err
	})
	if err != nil {
		return Issued{}, err
	}
	return out, nil
}

// ValidateAccessToken verifies an access token. It does not consult the store.
func (s *Service) ValidateAccessToken(tok string, now time.Time) (AccessClaims, error) {
	return s.tokens.VerifyAccess(tok, now)
}

// RefreshSubject returns the user a refresh token was issued to.
func (s *Service) RefreshSubject(tok string) (ids.UserID, error) {
	return s.tokens.RefreshSubject(tok)
}

// TerminateAll deletes every session of the user (logout everywhere).
func (s *Service) TerminateAll(ctx context.Context, userID ids.UserID) (int64, error) {
	if userID.IsZero() {
		return 0, identity.OpError{Op: "session.TerminateAll", Kind: identity.ErrInvalidInput, Msg: "missing user_id"}
	}
	return s.store.DeleteAllForUser(ctx, userID)
}

// PurgeExpired deletes sessions whose refresh window has passed.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.store.DeleteExpired(ctx, now)
}

// issue evicts the device's current session and inserts a new one. It must run inside InTx.
func (s *Service) issue(ctx context.Context, st Store, now time.Time, userID ids.UserID, dev Device) (Issued, error) {
	existing, err := st.GetByDevice(ctx, userID, dev.UserAgent)
	switch {
	case err == nil:
		if err := st.Delete(ctx, existing.ID); err != nil {
			return Issued{}, err
		}
	case errors.Is(err, ErrSessionNotFound):
	default:
		return Issued{}, err
	}

	pair, err := s.tokens.Generate(userID, now)
	if err != nil {
		return Issued{}, err
	}

	id, err := ids.NewSessionID(now)
	if err != nil {
		return Issued{}, err
	}

	if err := st.Create(ctx, Row{
		ID:               id,
		UserID:           userID,
		RefreshTokenHash: s.hasher.Hex(pair.RefreshToken),
		UserAgent:        dev.UserAgent,
		IP:               dev.IP,
		CreatedAt:        now,
		ExpiresAt:        pair.RefreshExp,
	}); err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:    id,
		UserID:       userID,
		AccessToken:  pair.AccessToken,
		AccessExp:    pair.AccessExp,
		RefreshToken: pair.RefreshToken,
		RefreshExp:   pair.RefreshExp,
	}, nil
}

func (s *Service) inTxRetryDevice(ctx context.Context, fn func(Store) error) error {
	err := s.store.InTx(ctx, fn)
	if errors.Is(err, ErrDeviceConflict) {
		err = s.store.InTx(ctx, fn)
	}
	return err
}

func (s *Service) key(userID ids.UserID, userAgent, refreshToken string) Key {
	return Key{
		UserID:      userID,
		UserAgent:   userAgent,
		RefreshHash: s.hasher.Hex(strings.TrimSpace(refreshToken)),
	}
}
