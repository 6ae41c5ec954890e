package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// cappedIncrScript performs the reserve check-and-increment atomically.
// KEYS[1] = counter key
// ARGV[1] = delta
// ARGV[2] = max (cap the counter must not exceed)
// ARGV[3] = ttl in milliseconds
var cappedIncrScript = redis.NewScript(`
local key = KEYS[1]
local delta = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call("GET", key)) or 0
if current + delta > max then
    return {0, current}
end

local value = redis.call("INCRBY", key, delta)
redis.call("PEXPIRE", key, ttl)
return {1, value}
`)

// decrFloorScript decrements with a floor of zero and deletes exhausted keys.
// KEYS[1] = counter key
// ARGV[1] = delta
var decrFloorScript = redis.NewScript(`
local key = KEYS[1]
local delta = tonumber(ARGV[1])

local current = tonumber(redis.call("GET", key)) or 0
local value = current - delta
if value <= 0 then
    redis.call("DEL", key)
    return 0
end

redis.call("SET", key, value, "KEEPTTL")
return value
`)

// RedisStore implements Store over a Redis client.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Store backed by Redis.
func NewRedisStore(addr, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: rdb}
}

// NewRedisStoreFromClient wraps an existing client (used by tests).
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// TryAcquire implements Store via SET NX PX.
func (s *RedisStore) TryAcquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, delta)
	pipe.PExpire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incrby %s: %w", key, err)
	}
	return incr.Val(), nil
}

// IncrementCapped implements Store with the Lua script above.
func (s *RedisStore) IncrementCapped(ctx context.Context, key string, delta, max int64, ttl time.Duration) (bool, int64, error) {
	res, err := cappedIncrScript.Run(ctx, s.client, []string{key}, delta, max, ttl.Milliseconds()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis capped incr %s: %w", key, err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return false, 0, fmt.Errorf("invalid response from lua script")
	}
	allowed, _ := vals[0].(int64)
	value, _ := vals[1].(int64)
	return allowed == 1, value, nil
}

// Decrement implements Store with the floor-at-zero script.
func (s *RedisStore) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	res, err := decrFloorScript.Run(ctx, s.client, []string{key}, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("redis floored decr %s: %w", key, err)
	}
	value, _ := res.(int64)
	return value, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}
