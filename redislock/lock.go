package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrLockTimeout is returned when the bounded wait elapses without the lock
// becoming available. Callers may retry the whole operation later; it is a
// distinct outcome from "not found" or a failed operation.
var ErrLockTimeout = errors.New("timed out waiting for lock")

const (
	// leaseTTL bounds how long a crashed holder can block other processes.
	leaseTTL     = 2 * time.Minute
	pollInterval = 250 * time.Millisecond
)

// Locker provides mutual exclusion keyed by a resource identifier, with
// at-most-one holder per key across process boundaries.
type Locker interface {
	// Acquire blocks up to maxWait for the lock on key. The operation name
	// is informational, recorded for debugging who holds a lease.
	Acquire(ctx context.Context, key, operation string, maxWait time.Duration) (*Lease, error)
}

// Lease is a held lock. Release must be called exactly once.
type Lease struct {
	key     string
	token   string
	release func(ctx context.Context) error
}

func (l *Lease) Release(ctx context.Context) error {
	return l.release(ctx)
}

// RedisLocker implements Locker on a shared redis instance using the
// SET NX PX pattern with a token-checked release.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a locker and verifies the redis connection.
func NewRedisLocker(addr, password string, db int) (*RedisLocker, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisLocker{client: rdb}, nil
}

// releaseScript deletes the key only if it still carries our token, so an
// expired lease cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

func (r *RedisLocker) Acquire(
	ctx context.Context,
	key, operation string,
	maxWait time.Duration,
) (*Lease, error) {
	token := uuid.NewString()
	value := token + ":" + operation
	deadline := time.Now().Add(maxWait)

	for {
		ok, err := r.client.SetNX(ctx, key, value, leaseTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %q: %w", key, err)
		}
		if ok {
			log.Debug().
				Str("key", key).
				Str("operation", operation).
				Msg("lock acquired")

			return &Lease{
				key:   key,
				token: token,
				release: func(ctx context.Context) error {
					deleted, err := releaseScript.Run(
						ctx, r.client, []string{key}, value,
					).Int()
					if err != nil {
						return fmt.Errorf("failed to release lock %q: %w", key, err)
					}
					if deleted == 0 {
						log.Warn().
							Str("key", key).
							Msg("lock lease already expired at release time")
					}

					return nil
				},
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock wait interrupted for %q: %w", key, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}
