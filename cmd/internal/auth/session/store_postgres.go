package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ava/cmd/identity"
	"ava/cmd/identity/ids"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store over the sessions table.
//
// The pool is owned by the caller. Inside InTx the store is rebound to the
// transaction, so lookups use SELECT ... FOR UPDATE and hold the row lock
// until commit.
type PostgresStore struct {
	pool   *pgxpool.Pool
	db     querier
	schema string
}

// NewPostgresStore creates a Postgres-backed session store in the given schema.
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = identity.DefaultSchema
	}
	if !identity.PgIdentIsValid(schema) {
		return nil, fmt.Errorf("session: invalid schema identifier")
	}
	return &PostgresStore{pool: pool, db: pool, schema: schema}, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "sessions"}.Sanitize()
}

const sessionColumns = `id, user_id, refresh_token_hash, user_agent, host(ip), created_at, expires_at`

func (s *PostgresStore) GetByDevice(ctx context.Context, userID ids.UserID, userAgent string) (Row, error) {
	return s.scanOne(s.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM `+s.table()+`
		WHERE user_id = $1 AND user_agent = $2
		FOR UPDATE
	`, userID.String(), userAgent))
}

func (s *PostgresStore) Get(ctx context.Context, k Key) (Row, error) {
	return s.scanOne(s.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM `+s.table()+`
		WHERE user_id = $1 AND user_agent = $2 AND refresh_token_hash = $3
		FOR UPDATE
	`, k.UserID.String(), k.UserAgent, k.RefreshHash))
}

func (s *PostgresStore) Create(ctx context.Context, row Row) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO `+s.table()+` (
			id, user_id, refresh_token_hash, user_agent, ip, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5::inet, $6, $7)
	`, row.ID.String(), row.UserID.String(), row.RefreshTokenHash, row.UserAgent, ipOrNil(row.IP), row.CreatedAt, row.ExpiresAt)
	if err != nil {
		if isDeviceConflict(err) {
			return ErrDeviceConflict
		}
		return err
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id ids.SessionID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM `+s.table()+` WHERE id = $1`, id.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAllForUser(ctx context.Context, userID ids.UserID) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM `+s.table()+` WHERE user_id = $1`, userID.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM `+s.table()+` WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InTx runs fn in a READ COMMITTED transaction. Nested calls reuse the outer transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&PostgresStore{db: tx, schema: s.schema}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) scanOne(r pgx.Row) (Row, error) {
	var (
		row    Row
		id     string
		userID string
		ipText *string
	)
	err := r.Scan(&id, &userID, &row.RefreshTokenHash, &row.UserAgent, &ipText, &row.CreatedAt, &row.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}
	row.ID = ids.SessionID(id)
	row.UserID = ids.UserID(userID)
	if ipText != nil {
		row.IP = net.ParseIP(*ipText)
	}
	return row, nil
}

func ipOrNil(ip net.IP) any {
	if len(ip) == 0 {
		return nil
	}
	return ip.String()
}

func isDeviceConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == "uq_sessions_user_device"
}

var _ Store = (*PostgresStore)(nil)
