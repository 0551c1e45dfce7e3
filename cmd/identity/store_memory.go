package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"ava/cmd/identity/ids"
)

// MemoryStore is an in-process Store for development mode and tests.
// It enforces the same uniqueness rules as the Postgres schema.
type MemoryStore struct {
	mu sync.RWMutex

	users   map[ids.UserID]User
	hashes  map[ids.UserID]string
	byLogin map[string]ids.UserID
	byEmail map[string]ids.UserID
	byTel   map[string]ids.UserID

	// onDelete hooks let dependent in-memory stores mimic ON DELETE CASCADE.
	onDelete []func(ids.UserID)
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[ids.UserID]User),
		hashes:  make(map[ids.UserID]string),
		byLogin: make(map[string]ids.UserID),
		byEmail: make(map[string]ids.UserID),
		byTel:   make(map[string]ids.UserID),
	}
}

// OnDelete registers fn to run after a user is deleted.
func (m *MemoryStore) OnDelete(fn func(ids.UserID)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.onDelete = append(m.onDelete, fn)
	m.mu.Unlock()
}

func (m *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	in, err := validateCreate(op, in)
	if err != nil {
		return User{}, err
	}

	id, err := ids.NewUserID(in.Now)
	if err != nil {
		return User{}, err
	}

	login := NormalizeLogin(in.Login)
	email := NormalizeEmail(in.Email)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byLogin[login]; ok {
		return User{}, ConflictError{Op: op, Field: "login"}
	}
	if _, ok := m.byEmail[email]; ok {
		return User{}, ConflictError{Op: op, Field: "email"}
	}
	if in.Tel != nil {
		if _, ok := m.byTel[*in.Tel]; ok {
			return User{}, ConflictError{Op: op, Field: "tel"}
		}
	}

	u := User{
		ID:          id,
		Login:       in.Login,
		Email:       in.Email,
		Tel:         in.Tel,
		DisplayName: *in.DisplayName,
		DateOfBirth: in.DateOfBirth,
		CreatedAt:   in.Now,
	}
	m.users[id] = u
	m.hashes[id] = in.PasswordHash
	m.byLogin[login] = id
	m.byEmail[email] = id
	if in.Tel != nil {
		m.byTel[*in.Tel] = id
	}
	return u, nil
}

func (m *MemoryStore) GetUserIDByLogin(ctx context.Context, login string) (ids.UserID, error) {
	const op = "identity.GetUserIDByLogin"

	n := NormalizeLogin(login)
	if n == "" {
		return "", invalid(op, "login is required")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byLogin[n]
	if !ok {
		return "", NotFoundError{Op: op, Resource: "user"}
	}
	return id, nil
}

func (m *MemoryStore) GetUserIDByEmail(ctx context.Context, email string) (ids.UserID, error) {
	const op = "identity.GetUserIDByEmail"

	n := NormalizeEmail(email)
	if n == "" {
		return "", invalid(op, "email is required")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[n]
	if !ok {
		return "", NotFoundError{Op: op, Resource: "user"}
	}
	return id, nil
}

func (m *MemoryStore) GetCredentialsByLogin(ctx context.Context, login string) (Credentials, error) {
	const op = "identity.GetCredentialsByLogin"

	n := NormalizeLogin(login)
	if n == "" {
		return Credentials{}, invalid(op, "login is required")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byLogin[n]
	if !ok {
		return Credentials{}, NotFoundError{Op: op, Resource: "user"}
	}
	return Credentials{UserID: id, PasswordHash: m.hashes[id]}, nil
}

func (m *MemoryStore) GetUserByID(ctx context.Context, id ids.UserID) (User, error) {
	const op = "identity.GetUserByID"

	if id.IsZero() {
		return User{}, invalid(op, "missing user_id")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u, nil
}

func (m *MemoryStore) UpdatePassword(ctx context.Context, id ids.UserID, passwordHash string, now time.Time) error {
	const op = "identity.UpdatePassword"

	if id.IsZero() {
		return invalid(op, "missing user_id")
	}
	if strings.TrimSpace(passwordHash) == "" {
		return invalid(op, "password hash is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	m.hashes[id] = passwordHash
	return nil
}

func (m *MemoryStore) DeleteUser(ctx context.Context, id ids.UserID) error {
	const op = "identity.DeleteUser"

	if id.IsZero() {
		return invalid(op, "missing user_id")
	}

	m.mu.Lock()
	u, ok := m.users[id]
	if !ok {
		m.mu.Unlock()
		return NotFoundError{Op: op, Resource: "user"}
	}
	delete(m.users, id)
	delete(m.hashes, id)
	delete(m.byLogin, NormalizeLogin(u.Login))
	delete(m.byEmail, NormalizeEmail(u.Email))
	if u.Tel != nil {
		delete(m.byTel, *u.Tel)
	}
	hooks := append([]func(ids.UserID){}, m.onDelete...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(id)
	}
	return nil
}
