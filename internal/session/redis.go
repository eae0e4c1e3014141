package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix   = "session:"
	userIndexKeyPrefix = "session_user:"
)

var _ Store = (*RedisStore)(nil)

// RedisStore はセッションを Redis に保存します。失効は Redis のキー TTL に任せます。
// 利用者ごとのキー集合を持ち、DestroyUser で一括破棄できるようにしています。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: normalizeTTL(ttl),
		now: time.Now,
	}
}

// NewRedisStoreFromURL は redis:// 形式の URL から RedisStore を作成します。
func NewRedisStoreFromURL(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse session redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping session redis: %w", err)
	}
	return NewRedisStore(rdb, ttl), nil
}

// Close は Redis クライアントを閉じます。
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) Create(ctx context.Context, userID string) (string, error) {
	record, err := newRecord(userID, s.now(), s.ttl)
	if err != nil {
		return "", err
	}
	key, err := NewKey()
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return "", err
	}

	tx := s.rdb.TxPipeline()
	tx.Set(ctx, sessionKey(key), payload, s.ttl)
	tx.SAdd(ctx, userIndexKey(userID), key)
	// インデックスは最後に作成したセッションと同時に失効させる
	tx.Expire(ctx, userIndexKey(userID), s.ttl)
	if _, err := tx.Exec(ctx); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return key, nil
}

func (s *RedisStore) Resolve(ctx context.Context, key string) (string, bool, error) {
	record, err := s.get(ctx, key)
	if err != nil || record == nil {
		return "", false, err
	}
	if record.Expired(s.now()) {
		return "", false, nil
	}
	return record.UserID, true, nil
}

func (s *RedisStore) Destroy(ctx context.Context, key string) error {
	record, err := s.get(ctx, key)
	if err != nil {
		return err
	}

	tx := s.rdb.TxPipeline()
	tx.Del(ctx, sessionKey(key))
	if record != nil {
		tx.SRem(ctx, userIndexKey(record.UserID), key)
	}
	if _, err := tx.Exec(ctx); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

func (s *RedisStore) DestroyUser(ctx context.Context, userID string) (int, error) {
	keys, err := s.rdb.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("list user sessions: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	redisKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		redisKeys = append(redisKeys, sessionKey(k))
	}

	tx := s.rdb.TxPipeline()
	deleted := tx.Del(ctx, redisKeys...)
	tx.Del(ctx, userIndexKey(userID))
	if _, err := tx.Exec(ctx); err != nil {
		return 0, fmt.Errorf("destroy user sessions: %w", err)
	}
	return int(deleted.Val()), nil
}

// get はセッションを取得します。存在しない場合は nil, nil を返します。
func (s *RedisStore) get(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, nil
	}
	data, err := s.rdb.Get(ctx, sessionKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &record, nil
}

func sessionKey(key string) string {
	return sessionKeyPrefix + key
}

func userIndexKey(userID string) string {
	return userIndexKeyPrefix + userID
}
