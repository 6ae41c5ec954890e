// Package kv defines the TTL'd key-value primitives the engine's locks and
// shadow-inventory counters are built on. Any backend with atomic
// compare-and-swap plus expiry can implement Store; the engine ships a Redis
// implementation for production and an in-memory one for tests and
// single-node deployments.
package kv

import (
	"context"
	"time"
)

// Store is the distributed lock/counter abstraction.
type Store interface {
	// TryAcquire sets key to holder if absent, with expiry. Returns true
	// only if no other holder currently owns the key.
	TryAcquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)

	// Release unconditionally deletes key. Best-effort; TTL bounds the
	// worst case if a release is lost.
	Release(ctx context.Context, key string) error

	// Increment adds delta to the counter at key and (re)sets its TTL,
	// returning the new value. Missing keys start at zero.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// IncrementCapped atomically adds delta only if the result would not
	// exceed max. Returns ok=false (and the unchanged value) otherwise.
	IncrementCapped(ctx context.Context, key string, delta, max int64, ttl time.Duration) (ok bool, value int64, err error)

	// Decrement subtracts delta, floored at zero; a counter reaching zero
	// is deleted. Returns the new value.
	Decrement(ctx context.Context, key string, delta int64) (int64, error)

	// Get returns the current counter value, zero if absent.
	Get(ctx context.Context, key string) (int64, error)
}
