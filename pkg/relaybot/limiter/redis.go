package limiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the shared cooldown store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RedisCooldown keeps cooldowns in Redis so several bot replicas share them.
// Keys expire on their own, so Sweep is a no-op.
type RedisCooldown struct {
	client *redis.Client
	prefix string
}

// NewRedisCooldown connects to Redis and verifies the connection.
func NewRedisCooldown(ctx context.Context, cfg RedisConfig) (*RedisCooldown, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "relaybot:cooldown:"
	}
	return &RedisCooldown{client: client, prefix: prefix}, nil
}

func (c *RedisCooldown) key(user int64) string {
	return c.prefix + strconv.FormatInt(user, 10)
}

func (c *RedisCooldown) Remaining(ctx context.Context, user int64) (time.Duration, error) {
	ttl, err := c.client.PTTL(ctx, c.key(user)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	// -1 and -2 mean no expiry and missing key.
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

func (c *RedisCooldown) Set(ctx context.Context, user int64, d time.Duration) error {
	return c.client.Set(ctx, c.key(user), time.Now().Add(d).Unix(), d).Err()
}

func (c *RedisCooldown) Clear(ctx context.Context, user int64) error {
	return c.client.Del(ctx, c.key(user)).Err()
}

func (c *RedisCooldown) Sweep(context.Context) (int, error) {
	return 0, nil
}

// Close closes the Redis client.
func (c *RedisCooldown) Close() error {
	return c.client.Close()
}

var _ Cooldown = (*RedisCooldown)(nil)
