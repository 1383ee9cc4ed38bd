package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func tracked(kl *KeyLock) int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}

func hold(t *testing.T, kl *KeyLock, key string) {
	t.Helper()
	require.NoError(t, kl.LockContext(context.Background(), key, 0))
}

// Property 1: Concurrent read-modify-write under the same key matches
// sequential execution.
func TestConcurrentCounterSafetyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numOps := rapid.IntRange(2, 20).Draw(t, "numOps")
		amounts := make([]int64, numOps)
		var expected int64
		for i := range amounts {
			amounts[i] = rapid.Int64Range(-500, 500).Draw(t, "amount")
			expected += amounts[i]
		}
		key := rapid.StringMatching(`room-[a-f0-9]{8}`).Draw(t, "key")

		kl := NewKeyLock()
		var total int64

		var wg sync.WaitGroup
		wg.Add(numOps)
		for _, amount := range amounts {
			go func(amount int64) {
				defer wg.Done()
				if err := kl.LockContext(context.Background(), key, 0); err != nil {
					return
				}
				current := total
				time.Sleep(time.Microsecond)
				total = current + amount
				kl.Unlock(key)
			}(amount)
		}
		wg.Wait()

		if total != expected {
			t.Fatalf("total %d, expected %d", total, expected)
		}
		if n := tracked(kl); n != 0 {
			t.Fatalf("lock entries leaked: %d", n)
		}
	})
}

func TestLockContext_Timeout(t *testing.T) {
	kl := NewKeyLock()
	hold(t, kl, "room")

	err := kl.LockContext(context.Background(), "room", 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)

	require.NoError(t, kl.LockContext(context.Background(), "other", 10*time.Millisecond), "distinct keys do not contend")
	kl.Unlock("other")

	kl.Unlock("room")
	assert.Equal(t, 0, tracked(kl), "a timed-out waiter leaves no entry behind")
}

func TestLockContext_Cancelled(t *testing.T) {
	kl := NewKeyLock()
	hold(t, kl, "room")
	defer kl.Unlock("room")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := kl.LockContext(ctx, "room", 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLockContext_WaitsForRelease(t *testing.T) {
	kl := NewKeyLock()
	hold(t, kl, "room")

	done := make(chan error, 1)
	go func() { done <- kl.LockContext(context.Background(), "room", time.Second) }()

	time.Sleep(5 * time.Millisecond)
	kl.Unlock("room")
	require.NoError(t, <-done)
	kl.Unlock("room")
	assert.Equal(t, 0, tracked(kl))
}
