package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ava/cmd/identity/ids"
)

// PostgresStore implements the user directory over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultSchema is the schema used when WithSchema is not given.
const DefaultSchema = "ava"

// WithSchema sets the Postgres schema used by the identity store (default "ava").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !PgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// CreateUser inserts the user and its credential row in one transaction.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	in, err := validateCreate(op, in)
	if err != nil {
		return User{}, err
	}

	userID, err := ids.NewUserID(in.Now)
	if err != nil {
		return User{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	users := pgIdent(s.schema, "users")
	creds := pgIdent(s.schema, "user_credentials")

	_, err = tx.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, login, login_norm, email, email_norm, tel, display_name, date_of_birth, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		userID.String(),
		in.Login,
		NormalizeLogin(in.Login),
		in.Email,
		NormalizeEmail(in.Email),
		in.Tel,
		*in.DisplayName,
		in.DateOfBirth,
		in.Now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+creds+` (user_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		userID.String(), in.PasswordHash, in.Now,
	)
	if err != nil {
		// If FK fails here, it indicates programming/schema inconsistency.
		return User{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}

	return User{
		ID:          userID,
		Login:       in.Login,
		Email:       in.Email,
		Tel:         in.Tel,
		DisplayName: *in.DisplayName,
		DateOfBirth: in.DateOfBirth,
		CreatedAt:   in.Now,
	}, nil
}

func (s *PostgresStore) GetUserIDByLogin(ctx context.Context, login string) (ids.UserID, error) {
	const op = "identity.GetUserIDByLogin"

	n := NormalizeLogin(login)
	if n == "" {
		return "", invalid(op, "login is required")
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM `+pgIdent(s.schema, "users")+` WHERE login_norm = $1`, n,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", NotFoundError{Op: op, Resource: "user"}
		}
		return "", err
	}
	return ids.UserID(id), nil
}

func (s *PostgresStore) GetUserIDByEmail(ctx context.Context, email string) (ids.UserID, error) {
	const op = "identity.GetUserIDByEmail"

	n := NormalizeEmail(email)
	if n == "" {
		return "", invalid(op, "email is required")
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM `+pgIdent(s.schema, "users")+` WHERE email_norm = $1`, n,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", NotFoundError{Op: op, Resource: "user"}
		}
		return "", err
	}
	return ids.UserID(id), nil
}

// GetCredentialsByLogin returns the user id and encoded password hash for login.
func (s *PostgresStore) GetCredentialsByLogin(ctx context.Context, login string) (Credentials, error) {
	const op = "identity.GetCredentialsByLogin"

	n := NormalizeLogin(login)
	if n == "" {
		return Credentials{}, invalid(op, "login is required")
	}

	users := pgIdent(s.schema, "users")
	creds := pgIdent(s.schema, "user_credentials")

	var out Credentials
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, c.password_hash
		   FROM `+users+` u
		   JOIN `+creds+` c ON c.user_id = u.id
		  WHERE u.login_norm = $1`, n,
	).Scan(&id, &out.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credentials{}, NotFoundError{Op: op, Resource: "user"}
		}
		return Credentials{}, err
	}
	out.UserID = ids.UserID(id)
	return out, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id ids.UserID) (User, error) {
	const op = "identity.GetUserByID"

	if id.IsZero() {
		return User{}, invalid(op, "missing user_id")
	}

	var (
		out User
		raw string
		tel *string
		dob *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, login, email, tel, display_name, date_of_birth, created_at
		   FROM `+pgIdent(s.schema, "users")+`
		  WHERE id = $1`, id.String(),
	).Scan(&raw, &out.Login, &out.Email, &tel, &out.DisplayName, &dob, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	out.ID = ids.UserID(raw)
	out.Tel = tel
	out.DateOfBirth = dob
	return out, nil
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, id ids.UserID, passwordHash string, now time.Time) error {
	const op = "identity.UpdatePassword"

	if id.IsZero() {
		return invalid(op, "missing user_id")
	}
	if strings.TrimSpace(passwordHash) == "" {
		return invalid(op, "password hash is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "user_credentials")+`
		    SET password_hash = $2, updated_at = $3
		  WHERE user_id = $1`,
		id.String(), passwordHash, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id ids.UserID) error {
	const op = "identity.DeleteUser"

	if id.IsZero() {
		return invalid(op, "missing user_id")
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+pgIdent(s.schema, "users")+` WHERE id = $1`, id.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// ---- helpers ----

// PgIdentIsValid checks if a string is a safe Postgres identifier.
func PgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names. Fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_users_login_norm":
		return "login", true
	case "uq_users_email_norm":
		return "email", true
	case "uq_users_tel":
		return "tel", true
	default:
		switch {
		case strings.Contains(c, "login"):
			return "login", true
		case strings.Contains(c, "email"):
			return "email", true
		case strings.Contains(c, "tel"):
			return "tel", true
		default:
			return "unique", true
		}
	}
}
