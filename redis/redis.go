package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis provides caching and rate limiting in Redis.
type Redis struct {
	cli *redis.Client
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect connects to the Redis server and pings the server to ensure the
// connection is working.
func Connect(ctx context.Context, opts Options) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		cli: cli,
	}, nil
}

const (
	scanCount     = 100
	limiterPrefix = "ratelimit"
)

// Get returns the value stored at key. The boolean is false on a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.cli.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get: %w", err)
	}
	return b, true, nil
}

// Set stores value at key for ttl.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.cli.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	return nil
}

// InvalidatePrefix deletes every key starting with prefix.
func (r *Redis) InvalidatePrefix(ctx context.Context, prefix string) error {
	var keys []string
	iter := r.cli.Scan(ctx, 0, prefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	for len(keys) > 0 {
		n := min(len(keys), scanCount)
		if err := r.cli.Del(ctx, keys[:n]...).Err(); err != nil {
			return fmt.Errorf("del: %w", err)
		}
		keys = keys[n:]
	}
	return nil
}

// Allow counts a hit against key in a fixed window and reports whether the
// hit is within limit.
func (r *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	k := fmt.Sprintf("%s:%s", limiterPrefix, key)

	n, err := r.cli.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("incr: %w", err)
	}
	// The first hit opens the window.
	if n == 1 {
		if err := r.cli.PExpire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("expire: %w", err)
		}
	}
	return n <= int64(limit), nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.cli.Close()
}
