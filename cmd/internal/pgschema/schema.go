// Package pgschema holds the PostgreSQL DDL for ava's auth core.
//
// Every statement is idempotent (IF NOT EXISTS), so Apply can run at startup
// and inside throw-away integration-test schemas.
package pgschema

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DDL renders the full schema for the given Postgres schema name.
func DDL(schema string) (string, error) {
	schema = strings.TrimSpace(schema)
	if !identRe.MatchString(schema) {
		return "", fmt.Errorf("pgschema: invalid schema identifier %q", schema)
	}

	q := func(name string) string { return pgx.Identifier{schema, name}.Sanitize() }

	users := q("users")
	creds := q("user_credentials")
	sessions := q("sessions")
	recovery := q("recovery_codes")
	audit := q("audit_log")

	return fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %[1]s;

CREATE TABLE IF NOT EXISTS %[2]s (
  id TEXT PRIMARY KEY,
  login TEXT NOT NULL,
  login_norm TEXT NOT NULL,
  email TEXT NOT NULL,
  email_norm TEXT NOT NULL,
  tel TEXT NULL,
  display_name TEXT NOT NULL,
  date_of_birth DATE NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT chk_users_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT uq_users_login_norm UNIQUE (login_norm),
  CONSTRAINT uq_users_email_norm UNIQUE (email_norm),
  CONSTRAINT uq_users_tel UNIQUE (tel)
);

CREATE TABLE IF NOT EXISTS %[3]s (
  user_id TEXT PRIMARY KEY REFERENCES %[2]s(id) ON DELETE CASCADE,
  password_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS %[4]s (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES %[2]s(id) ON DELETE CASCADE,
  refresh_token_hash TEXT NOT NULL,
  user_agent TEXT NOT NULL,
  ip INET NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  expires_at TIMESTAMPTZ NOT NULL,

  CONSTRAINT chk_sessions_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT chk_sessions_refresh_hash_len CHECK (char_length(refresh_token_hash) = 64),
  CONSTRAINT chk_sessions_expires_after_created CHECK (expires_at > created_at),
  CONSTRAINT uq_sessions_user_device UNIQUE (user_id, user_agent)
);

CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON %[4]s (expires_at);

CREATE TABLE IF NOT EXISTS %[5]s (
  user_id TEXT PRIMARY KEY REFERENCES %[2]s(id) ON DELETE CASCADE,
  code_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recovery_codes_expires_at ON %[5]s (expires_at);

CREATE TABLE IF NOT EXISTS %[6]s (
  id BIGSERIAL PRIMARY KEY,
  user_id TEXT NULL,
  session_id TEXT NULL,
  action TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  ip INET NULL,
  user_agent TEXT NULL,
  meta JSONB NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_user_id ON %[6]s (user_id);
`, pgx.Identifier{schema}.Sanitize(), users, creds, sessions, recovery, audit), nil
}

// Apply creates the schema and all tables if they do not exist.
func Apply(ctx context.Context, db Execer, schema string) error {
	if db == nil {
		return fmt.Errorf("pgschema: nil db")
	}
	sql, err := DDL(schema)
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("pgschema: apply: %w", err)
	}
	return nil
}
