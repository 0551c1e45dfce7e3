package recovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ava/cmd/identity"
	"ava/cmd/identity/ids"
	"ava/cmd/internal/notify"
	"ava/cmd/security/password"
)

const testEmail = "vasya@example.com"

func cheapPasswordConfig() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params = password.Argon2idParams{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.BcryptCost = bcrypt.MinCost
	return cfg
}

// outbox captures sent messages and optionally fails delivery.
type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return o.err
}

func (o *outbox) lastCode(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.msgs) == 0 {
		t.Fatalf("no message sent")
	}
	body := o.msgs[len(o.msgs)-1].Body
	const marker = "code: "
	i := strings.Index(body, marker)
	if i < 0 {
		t.Fatalf("no code in body %q", body)
	}
	rest := body[i+len(marker):]
	if j := strings.IndexByte(rest, '\n'); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

type fixture struct {
	svc    *Service
	store  *MemoryStore
	users  *identity.MemoryStore
	hasher password.Hasher
	out    *outbox
	userID ids.UserID
}

func newFixture(t *testing.T, mutate func(*Config)) fixture {
	t.Helper()

	pcfg := cheapPasswordConfig()
	hasher, err := password.NewHasher(pcfg)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	users := identity.NewMemoryStore()
	oldHash, err := hasher.Hash("vasyaWhite123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	u, err := users.CreateUser(context.Background(), identity.CreateUserInput{
		Login:        "adminVasya",
		Email:        testEmail,
		PasswordHash: oldHash,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	store := NewMemoryStore(users)
	users.OnDelete(func(id ids.UserID) { _ = store.Delete(context.Background(), id) })

	cfg := DefaultConfig()
	cfg.Backend = BackendMemory
	if mutate != nil {
		mutate(&cfg)
	}

	out := &outbox{}
	svc, err := NewService(cfg, store, users, hasher, pcfg, out)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return fixture{svc: svc, store: store, users: users, hasher: hasher, out: out, userID: u.ID}
}

func (f fixture) passwordIs(t *testing.T, pw string) bool {
	t.Helper()
	creds, err := f.users.GetCredentialsByLogin(context.Background(), "adminVasya")
	if err != nil {
		t.Fatalf("GetCredentialsByLogin: %v", err)
	}
	return f.hasher.Compare(pw, creds.PasswordHash)
}

func TestService_CorrectCodeSucceedsOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := f.svc.RequestRecovery(ctx, now, "  Vasya@Example.com "); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}
	if n := f.store.Len(); n != 1 {
		t.Fatalf("expected one recovery row, got %d", n)
	}
	code := f.out.lastCode(t)
	if len(code) != 6 {
		t.Fatalf("expected 6-char code, got %q", code)
	}
	if f.out.msgs[0].To != testEmail {
		t.Fatalf("sent to %q", f.out.msgs[0].To)
	}

	in := ConfirmInput{Email: testEmail, Code: code, NewPassword: "NewPassw0rd"}
	if err := f.svc.ConfirmRecovery(ctx, now.Add(time.Minute), in); err != nil {
		t.Fatalf("ConfirmRecovery: %v", err)
	}
	if !f.passwordIs(t, "NewPassw0rd") {
		t.Fatalf("password was not replaced")
	}
	if n := f.store.Len(); n != 0 {
		t.Fatalf("expected code to be deleted, %d rows remain", n)
	}

	err := f.svc.ConfirmRecovery(ctx, now.Add(2*time.Minute), in)
	if !errors.Is(err, ErrCodeNotFound) || !identity.IsNotFound(err) {
		t.Fatalf("expected second confirmation to fail with not found, got %v", err)
	}
}

func TestService_ExpiredCorrectCodeIsRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := f.svc.RequestRecovery(ctx, now, testEmail); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}
	code := f.out.lastCode(t)

	for _, at := range []time.Time{now.Add(5 * time.Minute), now.Add(time.Hour)} {
		err := f.svc.ConfirmRecovery(ctx, at, ConfirmInput{Email: testEmail, Code: code, NewPassword: "NewPassw0rd"})
		if !errors.Is(err, ErrCodeRejected) || !identity.IsInvalidInput(err) {
			t.Fatalf("at %v: expected ErrCodeRejected, got %v", at.Sub(now), err)
		}
	}
	if !f.passwordIs(t, "vasyaWhite123") {
		t.Fatalf("password must be unchanged")
	}
}

func TestService_WrongCodeIsRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := f.svc.RequestRecovery(ctx, now, testEmail); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}
	code := f.out.lastCode(t)
	wrong := "ZZZZZZ"
	if wrong == code {
		wrong = "YYYYYY"
	}

	err := f.svc.ConfirmRecovery(ctx, now.Add(time.Second), ConfirmInput{Email: testEmail, Code: wrong, NewPassword: "NewPassw0rd"})
	if !errors.Is(err, ErrCodeRejected) {
		t.Fatalf("expected ErrCodeRejected, got %v", err)
	}
	if n := f.store.Len(); n != 1 {
		t.Fatalf("a rejected attempt must not consume the code")
	}

	// The correct code still works afterwards, in either case.
	err = f.svc.ConfirmRecovery(ctx, now.Add(2*time.Second), ConfirmInput{Email: testEmail, Code: strings.ToLower(code), NewPassword: "NewPassw0rd"})
	if err != nil {
		t.Fatalf("ConfirmRecovery: %v", err)
	}
}

func TestService_SecondRequestInvalidatesFirstCode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := f.svc.RequestRecovery(ctx, now, testEmail); err != nil {
		t.Fatalf("RequestRecovery 1: %v", err)
	}
	first := f.out.lastCode(t)
	if err := f.svc.RequestRecovery(ctx, now.Add(time.Second), testEmail); err != nil {
		t.Fatalf("RequestRecovery 2: %v", err)
	}
	second := f.out.lastCode(t)
	if first == second {
		t.Fatalf("expected distinct codes")
	}
	if n := f.store.Len(); n != 1 {
		t.Fatalf("expected one row after two requests, got %d", n)
	}

	err := f.svc.ConfirmRecovery(ctx, now.Add(2*time.Second), ConfirmInput{Email: testEmail, Code: first, NewPassword: "NewPassw0rd"})
	if !errors.Is(err, ErrCodeRejected) {
		t.Fatalf("expected first code to be rejected, got %v", err)
	}
	if err := f.svc.ConfirmRecovery(ctx, now.Add(3*time.Second), ConfirmInput{Email: testEmail, Code: second, NewPassword: "NewPassw0rd"}); err != nil {
		t.Fatalf("ConfirmRecovery second: %v", err)
	}
}

func TestService_UnknownEmail(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	err := f.svc.RequestRecovery(ctx, now, "nobody@example.com")
	if !identity.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if n := f.store.Len(); n != 0 {
		t.Fatalf("expected no row, got %d", n)
	}
	if len(f.out.msgs) != 0 {
		t.Fatalf("expected nothing sent")
	}

	err = f.svc.ConfirmRecovery(ctx, now, ConfirmInput{Email: "nobody@example.com", Code: "ABC123", NewPassword: "NewPassw0rd"})
	if !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestService_DeliveryFailurePolicy(t *testing.T) {
	t.Parallel()

	down := errors.New("smtp: connection refused")

	t.Run("best effort", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		f.out.err = down
		if err := f.svc.RequestRecovery(context.Background(), time.Now().UTC(), testEmail); err != nil {
			t.Fatalf("expected success despite delivery failure, got %v", err)
		}
		if n := f.store.Len(); n != 1 {
			t.Fatalf("expected row to be written")
		}
	})

	t.Run("required", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, func(c *Config) { c.RequireDelivery = true })
		f.out.err = down
		err := f.svc.RequestRecovery(context.Background(), time.Now().UTC(), testEmail)
		if !errors.Is(err, ErrDeliveryFailed) || !errors.Is(err, down) {
			t.Fatalf("expected ErrDeliveryFailed wrapping cause, got %v", err)
		}
	})
}

func TestService_WeakPasswordKeepsCode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := f.svc.RequestRecovery(ctx, now, testEmail); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}
	code := f.out.lastCode(t)

	err := f.svc.ConfirmRecovery(ctx, now.Add(time.Second), ConfirmInput{Email: testEmail, Code: code, NewPassword: "short"})
	if !errors.Is(err, ErrPasswordPolicy) || !errors.Is(err, password.ErrPasswordTooShort) || !identity.IsInvalidInput(err) {
		t.Fatalf("expected policy error, got %v", err)
	}
	if n := f.store.Len(); n != 1 {
		t.Fatalf("policy failure must not consume the code")
	}
	if !f.passwordIs(t, "vasyaWhite123") {
		t.Fatalf("password must be unchanged")
	}
}

func TestService_PurgeExpiredHonorsRetention(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *Config) { c.Retention = time.Hour })
	ctx := context.Background()
	now := time.Now().UTC()

	if err := f.svc.RequestRecovery(ctx, now, testEmail); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}

	n, err := f.svc.PurgeExpired(ctx, now.Add(30*time.Minute))
	if err != nil || n != 0 {
		t.Fatalf("PurgeExpired within retention=%d,%v want 0", n, err)
	}
	n, err = f.svc.PurgeExpired(ctx, now.Add(2*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpired after retention=%d,%v want 1", n, err)
	}
}

func TestService_UserDeletionCascades(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.svc.RequestRecovery(ctx, time.Now().UTC(), testEmail); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}
	if err := f.users.DeleteUser(ctx, f.userID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if n := f.store.Len(); n != 0 {
		t.Fatalf("expected cascade delete, %d rows remain", n)
	}
}

func TestNewService_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewService(DefaultConfig(), nil, nil, nil, nil, nil)
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

// pausingStore lets a test run code between a confirmation's read and its consume.
type pausingStore struct {
	*MemoryStore
	afterGet func()
}

func (p *pausingStore) GetByEmail(ctx context.Context, email string) (Record, error) {
	rec, err := p.MemoryStore.GetByEmail(ctx, email)
	if err == nil && p.afterGet != nil {
		p.afterGet()
	}
	return rec, err
}

// countingUsers counts password writes.
type countingUsers struct {
	*identity.MemoryStore
	mu     sync.Mutex
	writes int
}

func (c *countingUsers) UpdatePassword(ctx context.Context, id ids.UserID, hash string, now time.Time) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.MemoryStore.UpdatePassword(ctx, id, hash, now)
}

func TestService_ConcurrentConfirmRedeemsOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := f.svc.RequestRecovery(ctx, now, testEmail); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}
	code := f.out.lastCode(t)

	// Both confirmations read the record before either consumes it.
	var read sync.WaitGroup
	read.Add(2)
	store := &pausingStore{MemoryStore: f.store, afterGet: func() {
		read.Done()
		read.Wait()
	}}
	users := &countingUsers{MemoryStore: f.users}
	svc, err := NewService(DefaultConfig(), store, users, f.hasher, cheapPasswordConfig(), f.out)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	errs := make(chan error, 2)
	for _, pw := range []string{"FirstPassw0rd", "SecondPassw0rd"} {
		go func() {
			errs <- svc.ConfirmRecovery(ctx, now.Add(time.Second), ConfirmInput{Email: testEmail, Code: code, NewPassword: pw})
		}()
	}

	var ok, lost int
	for i := 0; i < 2; i++ {
		err := <-errs
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrCodeNotFound):
			lost++
		default:
			t.Fatalf("ConfirmRecovery: %v", err)
		}
	}
	if ok != 1 || lost != 1 {
		t.Fatalf("ok=%d not_found=%d want 1 and 1", ok, lost)
	}
	if users.writes != 1 {
		t.Fatalf("expected one password write, got %d", users.writes)
	}
	if f.passwordIs(t, "vasyaWhite123") {
		t.Fatalf("password must have changed")
	}
}

func TestService_ConfirmDoesNotDestroyNewerCode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := f.svc.RequestRecovery(ctx, now, testEmail); err != nil {
		t.Fatalf("RequestRecovery: %v", err)
	}
	old := f.out.lastCode(t)

	// A new request lands after the confirmation validated the old code.
	var once sync.Once
	store := &pausingStore{MemoryStore: f.store}
	store.afterGet = func() {
		once.Do(func() {
			if err := f.svc.RequestRecovery(ctx, now.Add(time.Second), testEmail); err != nil {
				t.Errorf("RequestRecovery 2: %v", err)
			}
		})
	}
	svc, err := NewService(DefaultConfig(), store, f.users, f.hasher, cheapPasswordConfig(), f.out)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	err = svc.ConfirmRecovery(ctx, now.Add(2*time.Second), ConfirmInput{Email: testEmail, Code: old, NewPassword: "FirstPassw0rd"})
	if !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected superseded code to lose, got %v", err)
	}
	if !f.passwordIs(t, "vasyaWhite123") {
		t.Fatalf("password must be unchanged")
	}
	if n := f.store.Len(); n != 1 {
		t.Fatalf("newer code must survive, %d rows", n)
	}

	fresh := f.out.lastCode(t)
	if err := f.svc.ConfirmRecovery(ctx, now.Add(3*time.Second), ConfirmInput{Email: testEmail, Code: fresh, NewPassword: "SecondPassw0rd"}); err != nil {
		t.Fatalf("ConfirmRecovery with newer code: %v", err)
	}
	if !f.passwordIs(t, "SecondPassw0rd") {
		t.Fatalf("password was not replaced")
	}
}

func TestMemoryStore_ConsumeMatchesHash(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := f.store.Replace(ctx, Record{UserID: f.userID, CodeHash: "h1", CreatedAt: now, ExpiresAt: now.Add(time.Minute)}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := f.store.Consume(ctx, f.userID, "other"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound for wrong hash, got %v", err)
	}
	if err := f.store.Consume(ctx, f.userID, "h1"); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := f.store.Consume(ctx, f.userID, "h1"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound on replay, got %v", err)
	}
}
