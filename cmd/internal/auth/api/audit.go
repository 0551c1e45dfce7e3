package authapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ava/cmd/identity"
	"ava/cmd/identity/ids"
)

// AuditEvent is one row of the audit trail. Meta must not carry secrets.
type AuditEvent struct {
	Action    string
	UserID    ids.UserID
	SessionID ids.SessionID
	IP        net.IP
	UserAgent string
	Meta      map[string]any
}

// Auditor records security-relevant events.
type Auditor interface {
	Record(ctx context.Context, ev AuditEvent) error
}

// NopAuditor drops events. Used when Postgres is disabled.
type NopAuditor struct{}

func (NopAuditor) Record(context.Context, AuditEvent) error { return nil }

// PostgresAuditor appends events to the audit_log table.
type PostgresAuditor struct {
	pool  *pgxpool.Pool
	table string
}

func NewPostgresAuditor(pool *pgxpool.Pool, schema string) (*PostgresAuditor, error) {
	if pool == nil {
		return nil, fmt.Errorf("authapi: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = identity.DefaultSchema
	}
	if !identity.PgIdentIsValid(schema) {
		return nil, fmt.Errorf("authapi: invalid schema identifier")
	}
	return &PostgresAuditor{pool: pool, table: pgx.Identifier{schema, "audit_log"}.Sanitize()}, nil
}

func (a *PostgresAuditor) Record(ctx context.Context, ev AuditEvent) error {
	action := strings.TrimSpace(ev.Action)
	if action == "" {
		return identity.OpError{Op: "authapi.audit", Kind: identity.ErrInvalidInput, Msg: "missing action"}
	}

	var ipVal any
	if ev.IP != nil {
		ipVal = ev.IP.String()
	}

	var metaVal *string
	if len(ev.Meta) > 0 {
		b, err := json.Marshal(ev.Meta)
		if err != nil {
			return err
		}
		s := string(b)
		metaVal = &s
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO `+a.table+` (
			user_id, session_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, now(), $4::inet, $5, $6::jsonb)
	`, idOrNil(ev.UserID.String()), idOrNil(ev.SessionID.String()), action, ipVal, trimOrNil(ev.UserAgent), metaVal)
	return err
}

func (h *Handler) audit(ctx context.Context, ev AuditEvent) {
	if err := h.auditor.Record(ctx, ev); err != nil {
		h.log.Error("auth.audit.insert.fail", "err", err, "action", ev.Action)
	}
}

func idOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
