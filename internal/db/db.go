package db

import (
	"context"
	"time"
)

// Store is the counter database facade combining all sub-interfaces.
type Store interface {
	Pinger
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value and counter operations.
type KVStore interface {
	// MGetInt64 returns one value per key; missing keys read as 0.
	MGetInt64(ctx context.Context, keys []string) ([]int64, error)
	// IncrBy atomically increments a key and returns the new value.
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	// IncrByWithTTL increments and applies EXPIRE NX in one pipelined round-trip.
	// A non-positive ttl skips the EXPIRE.
	IncrByWithTTL(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error)
}
