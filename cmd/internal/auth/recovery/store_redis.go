package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"ava/cmd/identity"
	"ava/cmd/identity/ids"
)

const redisKeyPrefix = "ava:recovery:"

// RedisStore keeps one JSON value per user under ava:recovery:<user id>.
//
// Keys expire Retention after the code does, so Redis does the purging and
// DeleteExpired has nothing to do.
type RedisStore struct {
	rdb       redis.UniversalClient
	users     EmailResolver
	retention time.Duration
}

type redisRecord struct {
	CodeHash  string    `json:"code_hash"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewRedisStore(rdb redis.UniversalClient, users EmailResolver, retention time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, users: users, retention: retention}
}

func redisKey(id ids.UserID) string { return redisKeyPrefix + id.String() }

func (s *RedisStore) Replace(ctx context.Context, rec Record) error {
	if rec.UserID.IsZero() || rec.CodeHash == "" {
		return identity.OpError{Op: "recovery.Replace", Kind: identity.ErrInvalidInput, Msg: "missing user_id or code hash"}
	}

	b, err := json.Marshal(redisRecord{CodeHash: rec.CodeHash, CreatedAt: rec.CreatedAt, ExpiresAt: rec.ExpiresAt})
	if err != nil {
		return err
	}

	ttl := rec.ExpiresAt.Sub(rec.CreatedAt) + s.retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return s.rdb.Set(ctx, redisKey(rec.UserID), b, ttl).Err()
}

func (s *RedisStore) GetByEmail(ctx context.Context, email string) (Record, error) {
	id, err := resolve(ctx, s.users, email)
	if err != nil {
		return Record{}, err
	}

	b, err := s.rdb.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrCodeNotFound
	}
	if err != nil {
		return Record{}, err
	}

	var rr redisRecord
	if err := json.Unmarshal(b, &rr); err != nil {
		return Record{}, err
	}
	return Record{UserID: id, CodeHash: rr.CodeHash, CreatedAt: rr.CreatedAt, ExpiresAt: rr.ExpiresAt}, nil
}

// Consume watches the key so a concurrent Replace or Consume aborts the delete.
func (s *RedisStore) Consume(ctx context.Context, userID ids.UserID, codeHash string) error {
	key := redisKey(userID)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrCodeNotFound
		}
		if err != nil {
			return err
		}
		var rr redisRecord
		if err := json.Unmarshal(b, &rr); err != nil {
			return err
		}
		if rr.CodeHash != codeHash {
			return ErrCodeNotFound
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrCodeNotFound
	}
	return err
}

func (s *RedisStore) Delete(ctx context.Context, userID ids.UserID) error {
	return s.rdb.Del(ctx, redisKey(userID)).Err()
}

func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

var _ Store = (*RedisStore)(nil)
