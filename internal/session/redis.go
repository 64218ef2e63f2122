package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/aviya/internal/domain"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "aviya:session:"

// RedisConfig holds configuration for the Redis connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps each session as a JSON document with an idle TTL, so
// several server processes can share conversations.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, ttl time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

// GetOrCreate implements Store.
func (r *RedisStore) GetOrCreate(ctx context.Context, id string) (domain.Session, error) {
	raw, err := r.rdb.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NewSession(clock()), nil
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}

	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return s, nil
}

// Update implements Store.
func (r *RedisStore) Update(ctx context.Context, id string, s domain.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}
	if err := r.rdb.Set(ctx, redisKey(id), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("set session %s: %w", id, err)
	}
	return nil
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// Ping implements Store.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
