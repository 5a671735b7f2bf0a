package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the cursor in a Redis string key, for deployments where
// several hosts share one watermark.
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ Store = (*RedisStore)(nil)

// OpenRedis connects to addr and verifies the connection with PING.
func OpenRedis(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisStore(client, prefix), nil
}

// NewRedisStore wraps an existing client. The cursor lives at prefix+LatestKey.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, key: prefix + LatestKey}
}

func (r *RedisStore) Get(ctx context.Context) (string, bool, error) {
	id, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &Error{Backend: BackendRedis, Op: "get", Err: err}
	}
	return id, true, nil
}

func (r *RedisStore) Set(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return &Error{Backend: BackendRedis, Op: "set", Err: err}
	}
	// No TTL: losing the cursor would re-seed and silently skip posts.
	if err := r.client.Set(ctx, r.key, id, 0).Err(); err != nil {
		return &Error{Backend: BackendRedis, Op: "set", Err: err}
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return &Error{Backend: BackendRedis, Op: "clear", Err: err}
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
