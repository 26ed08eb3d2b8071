// Package cache stores pipeline results in Redis keyed by image hash.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/menta2k/pose-cropper/pkg/pipeline"
)

const keyPrefix = "pose:"

// Options configures the Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache is a pipeline result cache backed by Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a cache. The connection is lazy; use Ping to check it.
func NewRedisCache(opts Options) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 2 * time.Second,
	})

	return &RedisCache{
		client: client,
		ttl:    opts.TTL,
	}
}

// Ping checks the connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get returns the cached result or nil on a miss
func (c *RedisCache) Get(ctx context.Context, key string) (*pipeline.Result, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var result pipeline.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached result %s: %w", key, err)
	}
	return &result, nil
}

// Set stores a result under key
func (c *RedisCache) Set(ctx context.Context, key string, result *pipeline.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err()
}

// Close closes the connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Key builds a cache key from the image bytes and the options that change
// the result
func Key(data []byte, opts pipeline.Options) string {
	sum := md5.Sum(data)
	return fmt.Sprintf("%s:%d:%d:%s:%s:%.3f",
		hex.EncodeToString(sum[:]), opts.InputSize, opts.MaxPoses,
		opts.Select.Policy, opts.Select.Class, opts.Select.MinScore)
}

// Hash returns the hex md5 of data
func Hash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
