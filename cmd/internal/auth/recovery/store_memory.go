package recovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"ava/cmd/identity"
	"ava/cmd/identity/ids"
)

// MemoryStore keeps recovery records in process. Development mode and tests.
type MemoryStore struct {
	mu    sync.Mutex
	users EmailResolver
	recs  map[ids.UserID]Record
}

func NewMemoryStore(users EmailResolver) *MemoryStore {
	return &MemoryStore{users: users, recs: make(map[ids.UserID]Record)}
}

func (m *MemoryStore) Replace(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.UserID.IsZero() || rec.CodeHash == "" {
		return identity.OpError{Op: "recovery.Replace", Kind: identity.ErrInvalidInput, Msg: "missing user_id or code hash"}
	}
	m.mu.Lock()
	m.recs[rec.UserID] = rec
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetByEmail(ctx context.Context, email string) (Record, error) {
	id, err := resolve(ctx, m.users, email)
	if err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return Record{}, ErrCodeNotFound
	}
	return rec, nil
}

func (m *MemoryStore) Consume(ctx context.Context, userID ids.UserID, codeHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[userID]
	if !ok || rec.CodeHash != codeHash {
		return ErrCodeNotFound
	}
	delete(m.recs, userID)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, userID ids.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.recs, userID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.recs {
		if rec.ExpiresAt.Before(before) {
			delete(m.recs, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

// resolve maps an unknown email onto ErrCodeNotFound.
func resolve(ctx context.Context, users EmailResolver, email string) (ids.UserID, error) {
	id, err := users.GetUserIDByEmail(ctx, email)
	if errors.Is(err, identity.ErrNotFound) {
		return "", ErrCodeNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

var _ Store = (*MemoryStore)(nil)
