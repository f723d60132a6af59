// Package lease keeps the timeout sweep to one replica at a time.
package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease grants exclusive use of a named job for ttl.
type Lease interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
}

// Always grants every request. It is used when a single replica runs.
type Always struct{}

// Acquire implements Lease.
func (Always) Acquire(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}

// setNX is the part of *redis.Client the lease needs.
type setNX interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLease takes a lease with SET NX, letting it lapse after ttl so a
// crashed holder never blocks the sweep for longer than one period.
type RedisLease struct {
	client setNX
	prefix string
	owner  string
}

// NewRedisLease creates a RedisLease. owner identifies this replica in the
// stored value.
func NewRedisLease(client *redis.Client, prefix, owner string) *RedisLease {
	return newRedisLease(client, prefix, owner)
}

func newRedisLease(client setNX, prefix, owner string) *RedisLease {
	return &RedisLease{client: client, prefix: prefix, owner: owner}
}

// Acquire implements Lease.
func (l *RedisLease) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+name, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	return ok, nil
}
