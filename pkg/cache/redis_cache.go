package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrCacheMiss = errors.New("cache miss")

// RedisCache is the shared second-level cache. Values of type V are stored
// as JSON under prefix+key and expire after ttl.
type RedisCache[V any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache returns a cache over client. A non-positive ttl means five
// minutes.
func NewRedisCache[V any](client *redis.Client, prefix string, ttl time.Duration) *RedisCache[V] {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache[V]{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisCache[V]) key(k string) string { return r.prefix + k }

// Get returns ErrCacheMiss when key is absent or expired.
func (r *RedisCache[V]) Get(ctx context.Context, key string) (V, error) {
	var v V
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, ErrCacheMiss
	}
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		// A value written by an older layout is as good as absent.
		_ = r.client.Del(ctx, r.key(key)).Err()
		return v, fmt.Errorf("%w: undecodable entry %s: %v", ErrCacheMiss, key, err)
	}
	return v, nil
}

func (r *RedisCache[V]) Set(ctx context.Context, key string, v V) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(key), data, r.ttl).Err()
}

// Delete removes every key given; missing keys are not an error.
func (r *RedisCache[V]) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	return r.client.Del(ctx, full...).Err()
}

// Ping reports whether the server answers.
func (r *RedisCache[V]) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
