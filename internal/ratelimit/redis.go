package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisKeyPrefix namespaces limiter keys in Redis.
const RedisKeyPrefix = "dqmon:ratelimit:"

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore shares limiter state between processes. Each key is a JSON
// value that expires after the TTL passed to NewRedisStore.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and pings it. A ttl <= 0 stores keys
// without expiry.
func NewRedisStore(ctx context.Context, opts RedisOptions, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Get loads the state of key.
func (r *RedisStore) Get(ctx context.Context, key string) (State, error) {
	data, err := r.client.Get(ctx, RedisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to get rate limit state: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("failed to parse rate limit state: %w", err)
	}
	return state, nil
}

// Put stores the state of key.
func (r *RedisStore) Put(ctx context.Context, key string, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize rate limit state: %w", err)
	}
	if err := r.client.Set(ctx, RedisKeyPrefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save rate limit state: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
