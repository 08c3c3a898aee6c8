package redislock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusion(t *testing.T) {
	locker := NewLocalLocker()
	ctx := t.Context()

	lease, err := locker.Acquire(ctx, "image:abc", "delete-image", time.Second)
	require.NoError(t, err)

	// A second acquire for the same key times out while the first holds it.
	_, err = locker.Acquire(ctx, "image:abc", "delete-image", 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)

	// A different key is unaffected.
	other, err := locker.Acquire(ctx, "image:def", "delete-image", time.Second)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))

	// After release the key is free again.
	lease, err = locker.Acquire(ctx, "image:abc", "delete-image", time.Second)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

func TestLocalLockerHandoff(t *testing.T) {
	locker := NewLocalLocker()
	ctx := t.Context()

	lease, err := locker.Acquire(ctx, "image:abc", "delete-image", time.Second)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	acquired := make(chan struct{})

	go func() {
		defer wg.Done()
		blocked, err := locker.Acquire(ctx, "image:abc", "delete-image", 5*time.Second)
		assert.NoError(t, err)
		close(acquired)
		assert.NoError(t, blocked.Release(ctx))
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, lease.Release(ctx))
	wg.Wait()
}
