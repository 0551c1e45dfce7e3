package recovery

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"ava/cmd/identity"
	"ava/cmd/identity/ids"
)

func mustRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := strings.TrimSpace(os.Getenv("AVA_REDIS_ADDR"))
	if addr == "" {
		t.Skip("AVA_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("redis unreachable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisStore_RoundTrip(t *testing.T) {
	t.Parallel()

	rdb := mustRedis(t)
	ctx := context.Background()

	users := identity.NewMemoryStore()
	u, err := users.CreateUser(ctx, identity.CreateUserInput{
		Login: "adminVasya", Email: "vasya@example.com", PasswordHash: "$argon2id$placeholder",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Del(context.Background(), redisKey(u.ID)).Err() })

	st := NewRedisStore(rdb, users, time.Hour)
	now := time.Now().UTC().Truncate(time.Millisecond)

	if err := st.Replace(ctx, Record{UserID: u.ID, CodeHash: "h1", CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute)}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := st.Replace(ctx, Record{UserID: u.ID, CodeHash: "h2", CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute)}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	ttl, err := rdb.TTL(ctx, redisKey(u.ID)).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= time.Hour || ttl > time.Hour+5*time.Minute {
		t.Fatalf("ttl=%v want expiry plus retention", ttl)
	}

	rec, err := st.GetByEmail(ctx, "vasya@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if rec.UserID != u.ID || rec.CodeHash != "h2" || !rec.ExpiresAt.Equal(now.Add(5*time.Minute)) {
		t.Fatalf("unexpected record %+v", rec)
	}

	if err := st.Consume(ctx, u.ID, "h1"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("Consume with a superseded hash: expected ErrCodeNotFound, got %v", err)
	}
	if err := st.Consume(ctx, u.ID, "h2"); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := st.Consume(ctx, u.ID, "h2"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("second Consume: expected ErrCodeNotFound, got %v", err)
	}

	if err := st.Replace(ctx, Record{UserID: u.ID, CodeHash: "h3", CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute)}); err != nil {
		t.Fatalf("Replace 3: %v", err)
	}
	if err := st.Delete(ctx, u.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.GetByEmail(ctx, "vasya@example.com"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestRedisStore_UnknownEmail(t *testing.T) {
	t.Parallel()

	rdb := mustRedis(t)
	st := NewRedisStore(rdb, identity.NewMemoryStore(), time.Hour)
	if _, err := st.GetByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
	if err := st.Replace(context.Background(), Record{UserID: ids.UserID(""), CodeHash: "h"}); !identity.IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
