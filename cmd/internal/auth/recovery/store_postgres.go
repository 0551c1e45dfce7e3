package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ava/cmd/identity"
	"ava/cmd/identity/ids"
)

// PostgresStore persists recovery codes in the recovery_codes table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("recovery: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = identity.DefaultSchema
	}
	if !identity.PgIdentIsValid(schema) {
		return nil, fmt.Errorf("recovery: invalid schema identifier")
	}
	return &PostgresStore{pool: pool, schema: schema}, nil
}

func (s *PostgresStore) ident(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

// Replace deletes the user's previous code and inserts rec in one transaction.
func (s *PostgresStore) Replace(ctx context.Context, rec Record) error {
	const op = "recovery.Replace"

	if rec.UserID.IsZero() || rec.CodeHash == "" {
		return identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "missing user_id or code hash"}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	codes := s.ident("recovery_codes")
	if _, err := tx.Exec(ctx, `DELETE FROM `+codes+` WHERE user_id = $1`, rec.UserID.String()); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO `+codes+` (user_id, code_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
		    created_at = EXCLUDED.created_at,
		    expires_at = EXCLUDED.expires_at
	`, rec.UserID.String(), rec.CodeHash, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return identity.NotFoundError{Op: op, Resource: "user"}
		}
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (Record, error) {
	var (
		rec    Record
		userID string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT r.user_id, r.code_hash, r.created_at, r.expires_at
		FROM `+s.ident("recovery_codes")+` r
		JOIN `+s.ident("users")+` u ON u.id = r.user_id
		WHERE u.email_norm = $1
	`, identity.NormalizeEmail(email)).Scan(&userID, &rec.CodeHash, &rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrCodeNotFound
	}
	if err != nil {
		return Record{}, err
	}
	rec.UserID = ids.UserID(userID)
	return rec, nil
}

func (s *PostgresStore) Consume(ctx context.Context, userID ids.UserID, codeHash string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.ident("recovery_codes")+` WHERE user_id = $1 AND code_hash = $2`,
		userID.String(), codeHash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrCodeNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID ids.UserID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.ident("recovery_codes")+` WHERE user_id = $1`, userID.String())
	return err
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.ident("recovery_codes")+` WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Store = (*PostgresStore)(nil)
