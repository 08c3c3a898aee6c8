package redislock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LocalLocker implements Locker with in-process mutual exclusion.
// Used only for testing.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]chan struct{})}
}

func (l *LocalLocker) Acquire(
	ctx context.Context,
	key, operation string,
	maxWait time.Duration,
) (*Lease, error) {
	deadline := time.After(maxWait)

	for {
		l.mu.Lock()
		waiter, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()

			return &Lease{
				key: key,
				release: func(context.Context) error {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(done)

					return nil
				},
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-waiter:
		case <-deadline:
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-ctx.Done():
			return nil, fmt.Errorf("lock wait interrupted for %q: %w", key, ctx.Err())
		}
	}
}
