package kv

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requires a running Redis; skipped when unavailable.
func redisStoreOrSkip(t *testing.T) *RedisStore {
	t.Helper()
	s := NewRedisStore("localhost:6379", "", 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	return s
}

func TestRedisStore_Integration_Locks(t *testing.T) {
	s := redisStoreOrSkip(t)
	ctx := context.Background()
	key := fmt.Sprintf("keel-test:lock:%d", time.Now().UnixNano())

	ok, err := s.TryAcquire(ctx, key, "worker-1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryAcquire(ctx, key, "worker-2", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Release(ctx, key))
	ok, err = s.TryAcquire(ctx, key, "worker-2", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	_ = s.Release(ctx, key)
}

func TestRedisStore_Integration_CappedCounter(t *testing.T) {
	s := redisStoreOrSkip(t)
	ctx := context.Background()
	key := fmt.Sprintf("keel-test:hold:%d", time.Now().UnixNano())

	ok, v, err := s.IncrementCapped(ctx, key, 6, 10, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 6, v)

	ok, v, err = s.IncrementCapped(ctx, key, 5, 10, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "cap must refuse 6+5 over 10")
	assert.EqualValues(t, 6, v)

	v, err = s.Decrement(ctx, key, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 0, v, "floored decrement")
	_ = s.Release(ctx, key)
}
