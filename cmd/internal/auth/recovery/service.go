package recovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"ava/cmd/identity"
	"ava/cmd/identity/ids"
	"ava/cmd/internal/notify"
	"ava/cmd/security/password"
)

// Users is the part of the user directory recovery depends on.
type Users interface {
	GetUserIDByEmail(ctx context.Context, email string) (ids.UserID, error)
	UpdatePassword(ctx context.Context, id ids.UserID, passwordHash string, now time.Time) error
}

// Policy validates a new password. password.Config satisfies it.
type Policy interface {
	Validate(password string) error
}

// ConfirmInput is the payload of ConfirmRecovery.
type ConfirmInput struct {
	Email       string
	Code        string
	NewPassword string
}

// Service issues and redeems recovery codes.
type Service struct {
	cfg    Config
	store  Store
	users  Users
	hasher password.Hasher
	policy Policy
	sender notify.Sender
	logger *slog.Logger
	random io.Reader
}

// Option configures the Service.
type Option func(*Service) error

// WithLogger sets the logger used for delivery failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) error {
		if l == nil {
			return errors.New("recovery: nil logger")
		}
		s.logger = l
		return nil
	}
}

// WithRandom replaces the code entropy source (tests).
func WithRandom(r io.Reader) Option {
	return func(s *Service) error {
		if r == nil {
			return errors.New("recovery: nil random source")
		}
		s.random = r
		return nil
	}
}

func NewService(cfg Config, store Store, users Users, hasher password.Hasher, policy Policy, sender notify.Sender, opts ...Option) (*Service, error) {
	if store == nil || users == nil || hasher == nil || policy == nil || sender == nil {
		return nil, fmt.Errorf("%w: missing dependency", ErrConfig)
	}
	if err := cfg.Code.Validate(); err != nil {
		return nil, err
	}
	if cfg.CodeTTL <= 0 {
		return nil, fmt.Errorf("%w: code ttl", ErrConfig)
	}

	s := &Service{
		cfg:    cfg,
		store:  store,
		users:  users,
		hasher: hasher,
		policy: policy,
		sender: sender,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// RequestRecovery issues a fresh code for email, replacing any previous one,
// and sends it to that address.
//
// An unknown email yields a NotFound error and writes nothing. A notifier
// failure is logged and swallowed unless Config.RequireDelivery is set.
func (s *Service) RequestRecovery(ctx context.Context, now time.Time, email string) error {
	const op = "recovery.RequestRecovery"

	email = identity.NormalizeEmail(email)
	if email == "" {
		return identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "missing email"}
	}

	userID, err := s.users.GetUserIDByEmail(ctx, email)
	if err != nil {
		return err
	}

	code, err := s.cfg.Code.Generate(s.random)
	if err != nil {
		return err
	}
	codeHash, err := s.hasher.Hash(code)
	if err != nil {
		return err
	}

	if err := s.store.Replace(ctx, Record{
		UserID:    userID,
		CodeHash:  codeHash,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.CodeTTL),
	}); err != nil {
		return err
	}

	if err := s.sender.Send(ctx, s.message(email, code)); err != nil {
		s.logger.WarnContext(ctx, "recovery.email.send.fail",
			"user_id", userID.String(),
			"required", s.cfg.RequireDelivery,
			"err", err,
		)
		if s.cfg.RequireDelivery {
			return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
		}
	}
	return nil
}

// ConfirmRecovery replaces the password of the user owning email when code
// matches the stored one and has not expired.
//
// A wrong code and an expired code both return ErrCodeRejected. The code is
// consumed before the password is written, so concurrent confirmations of one
// code change the password at most once; the losers, and a confirmation whose
// code was superseded by a newer request meanwhile, get ErrCodeNotFound. If
// the password write then fails the code is spent and a new one must be
// requested.
func (s *Service) ConfirmRecovery(ctx context.Context, now time.Time, in ConfirmInput) error {
	rec, err := s.store.GetByEmail(ctx, identity.NormalizeEmail(in.Email))
	if err != nil {
		return err
	}

	fresh := now.Before(rec.ExpiresAt)
	match := s.hasher.Compare(s.cfg.Code.Normalize(in.Code), rec.CodeHash)
	if !fresh || !match {
		return ErrCodeRejected
	}

	if err := s.policy.Validate(in.NewPassword); err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordPolicy, err)
	}
	newHash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return err
	}

	if err := s.store.Consume(ctx, rec.UserID, rec.CodeHash); err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, rec.UserID, newHash, now)
}

// PurgeExpired deletes codes that expired more than Config.Retention ago.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.store.DeleteExpired(ctx, now.Add(-s.cfg.Retention))
}

func (s *Service) message(to, code string) notify.Message {
	var b strings.Builder
	b.WriteString("Your password recovery code: ")
	b.WriteString(code)
	b.WriteString("\n\nThe code is valid for ")
	b.WriteString(s.cfg.CodeTTL.String())
	b.WriteString(". If you did not request it, ignore this message.\n")
	return notify.Message{To: to, Subject: "Password recovery", Body: b.String()}
}
