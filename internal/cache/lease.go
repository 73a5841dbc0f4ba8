package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// releaseScript deletes the key only while it still belongs to the caller
const releaseScript = `
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`

// Lease is a best-effort cross-process mutex on a Redis key
type Lease struct {
	rdb    *redis.Client
	prefix string
	owner  string
}

// NewLease creates a lease helper; owner must be unique per process
func NewLease(rdb *redis.Client, prefix, owner string) *Lease {
	return &Lease{rdb: rdb, prefix: prefix, owner: owner}
}

func (l *Lease) key(name string) string {
	return fmt.Sprintf("%s:lease:%s", l.prefix, name)
}

// Acquire takes the lease for ttl; false means another owner holds it
func (l *Lease) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key(name), l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	return ok, nil
}

// Release gives the lease back if this owner still holds it
func (l *Lease) Release(ctx context.Context, name string) error {
	err := l.rdb.Eval(ctx, releaseScript, []string{l.key(name)}, l.owner).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}
