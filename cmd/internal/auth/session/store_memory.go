package session

import (
	"context"
	"maps"
	"sync"
	"time"

	"ava/cmd/identity/ids"
)

// MemoryStore is an in-process Store for development mode and tests.
//
// InTx holds the store lock for the whole callback and restores the previous
// state when the callback fails.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[ids.SessionID]Row
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[ids.SessionID]Row)}
}

func (m *MemoryStore) GetByDevice(ctx context.Context, userID ids.UserID, userAgent string) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.GetByDevice(ctx, userID, userAgent)
}

func (m *MemoryStore) Get(ctx context.Context, k Key) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.Get(ctx, k)
}

func (m *MemoryStore) Create(ctx context.Context, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.Create(ctx, row)
}

func (m *MemoryStore) Delete(ctx context.Context, id ids.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.Delete(ctx, id)
}

func (m *MemoryStore) DeleteAllForUser(ctx context.Context, userID ids.UserID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.DeleteAllForUser(ctx, userID)
}

func (m *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.DeleteExpired(ctx, now)
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := maps.Clone(m.rows)
	if err := fn(memView{m}); err != nil {
		m.rows = snapshot
		return err
	}
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// memView operates on the rows with the lock already held.
type memView struct{ m *MemoryStore }

func (v memView) GetByDevice(ctx context.Context, userID ids.UserID, userAgent string) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	for _, r := range v.m.rows {
		if r.UserID == userID && r.UserAgent == userAgent {
			return r, nil
		}
	}
	return Row{}, ErrSessionNotFound
}

func (v memView) Get(ctx context.Context, k Key) (Row, error) {
	r, err := v.GetByDevice(ctx, k.UserID, k.UserAgent)
	if err != nil {
		return Row{}, err
	}
	if r.RefreshTokenHash != k.RefreshHash {
		return Row{}, ErrSessionNotFound
	}
	return r, nil
}

func (v memView) Create(ctx context.Context, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := v.GetByDevice(ctx, row.UserID, row.UserAgent); err == nil {
		return ErrDeviceConflict
	}
	v.m.rows[row.ID] = row
	return nil
}

func (v memView) Delete(ctx context.Context, id ids.SessionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := v.m.rows[id]; !ok {
		return ErrSessionNotFound
	}
	delete(v.m.rows, id)
	return nil
}

func (v memView) DeleteAllForUser(ctx context.Context, userID ids.UserID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for id, r := range v.m.rows {
		if r.UserID == userID {
			delete(v.m.rows, id)
			n++
		}
	}
	return n, nil
}

func (v memView) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for id, r := range v.m.rows {
		if r.ExpiresAt.Before(now) {
			delete(v.m.rows, id)
			n++
		}
	}
	return n, nil
}

func (v memView) InTx(_ context.Context, fn func(Store) error) error { return fn(v) }

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = memView{}
)
