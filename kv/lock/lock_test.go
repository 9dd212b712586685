package lock

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

var lockRow = []byte("locks")

func newStore(t *testing.T) *storage.MemStorage {
	s := storage.NewMemStorage("locks")
	require.Nil(t, s.CreateTable())
	return s
}

func fixedBackoff(d time.Duration) RetryPolicy {
	return RetryPolicy{Backoff: func(int) time.Duration { return d }}
}

func TestLockUnlock(t *testing.T) {
	clock := NewManualClock(time.Unix(1000, 0))
	l := NewDistributedLock(newStore(t), lockRow, fixedBackoff(10*time.Millisecond), clock)

	token, err := l.Lock("S1", 5*time.Second, 2*time.Second)
	require.Nil(t, err)

	start := clock.Now()
	_, err = l.Lock("S1", 5*time.Second, 2*time.Second)
	timeout, ok := err.(*ErrLockTimeout)
	require.True(t, ok, "%v", err)
	assert.Equal(t, "S1", timeout.Name)
	assert.Equal(t, 2*time.Second, clock.Now().Sub(start))

	// Other names are independent.
	other, err := l.Lock("S2", 5*time.Second, 0)
	require.Nil(t, err)
	assert.NotEqual(t, token, other)

	require.Nil(t, l.Unlock("S1", token))
	_, err = l.Lock("S1", 5*time.Second, 0)
	require.Nil(t, err)
}

func TestLockExpires(t *testing.T) {
	clock := NewManualClock(time.Unix(1000, 0))
	l := NewDistributedLock(newStore(t), lockRow, fixedBackoff(time.Millisecond), clock)

	first, err := l.Lock("S1", 100*time.Millisecond, 0)
	require.Nil(t, err)
	clock.Advance(99 * time.Millisecond)
	_, err = l.Lock("S1", time.Second, 0)
	_, ok := err.(*ErrLockTimeout)
	require.True(t, ok)

	clock.Advance(time.Millisecond)
	second, err := l.Lock("S1", time.Second, 0)
	require.Nil(t, err)

	// The first holder lost the lock and must learn about it.
	err = l.Unlock("S1", first)
	conflict, ok := err.(*ErrLockConflict)
	require.True(t, ok, "%v", err)
	assert.Equal(t, first, conflict.Token)
	require.Nil(t, l.Unlock("S1", second))

	// Releasing a free lock is a conflict too.
	_, ok = l.Unlock("S1", second).(*ErrLockConflict)
	assert.True(t, ok)
}

func TestLockWaitsForExpiry(t *testing.T) {
	clock := NewManualClock(time.Unix(1000, 0))
	l := NewDistributedLock(newStore(t), lockRow, fixedBackoff(30*time.Millisecond), clock)
	_, err := l.Lock("S1", 100*time.Millisecond, 0)
	require.Nil(t, err)

	start := clock.Now()
	_, err = l.Lock("S1", time.Second, time.Second)
	require.Nil(t, err)
	waited := clock.Now().Sub(start)
	assert.True(t, waited >= 100*time.Millisecond && waited < 200*time.Millisecond, "waited %v", waited)
}

func TestRefresh(t *testing.T) {
	clock := NewManualClock(time.Unix(1000, 0))
	l := NewDistributedLock(newStore(t), lockRow, fixedBackoff(time.Millisecond), clock)
	token, err := l.Lock("S1", 100*time.Millisecond, 0)
	require.Nil(t, err)

	clock.Advance(80 * time.Millisecond)
	require.Nil(t, l.Refresh("S1", token, 100*time.Millisecond))
	clock.Advance(80 * time.Millisecond)
	_, err = l.Lock("S1", time.Second, 0)
	_, ok := err.(*ErrLockTimeout)
	require.True(t, ok, "refreshed lock must still be held")

	_, ok = l.Refresh("S1", uuid.New(), time.Second).(*ErrLockConflict)
	assert.True(t, ok)
}

func TestLockStoreErrors(t *testing.T) {
	s := newStore(t)
	l := NewDistributedLock(s, lockRow, fixedBackoff(time.Millisecond), NewManualClock(time.Unix(0, 0)))
	require.Nil(t, s.Put(lockRow, []byte("bad"), []byte("short"), 0))
	_, err := l.Lock("bad", time.Second, 0)
	require.NotNil(t, err)

	s.Unavailable = errors.New("down")
	_, err = l.Lock("S1", time.Second, time.Second)
	assert.True(t, storage.IsRetryable(err), "%v", err)
	assert.True(t, storage.IsRetryable(l.Unlock("S1", uuid.New())))
}

// TestMutualExclusion runs many rounds of contending goroutines over the real clock and checks no two of them ever
// hold the lock together.
func TestMutualExclusion(t *testing.T) {
	l := NewDistributedLock(newStore(t), lockRow, RetryPolicy{Backoff: ExponentialBackoff(50*time.Microsecond, time.Millisecond)}, RealClock)
	var (
		holders  atomic.Int32
		overlaps atomic.Int32
		acquired atomic.Int32
	)
	for round := 0; round < 50; round++ {
		n := 2 + rand.Intn(4)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				time.Sleep(time.Duration(rand.Intn(200)) * time.Microsecond)
				token, err := l.Lock("S1", 5*time.Second, 2*time.Second)
				if err != nil {
					_, ok := err.(*ErrLockTimeout)
					assert.True(t, ok, "%v", err)
					return
				}
				acquired.Inc()
				if holders.Inc() > 1 {
					overlaps.Inc()
				}
				time.Sleep(time.Duration(rand.Intn(300)) * time.Microsecond)
				holders.Dec()
				assert.Nil(t, l.Unlock("S1", token))
			}()
		}
		wg.Wait()
	}
	assert.Equal(t, int32(0), overlaps.Load())
	assert.True(t, acquired.Load() >= 50)
}

func TestExponentialBackoff(t *testing.T) {
	backoff := ExponentialBackoff(10*time.Millisecond, 40*time.Millisecond)
	for attempt, max := range []time.Duration{10, 20, 40, 40, 40} {
		d := backoff(attempt + 1)
		max *= time.Millisecond
		assert.True(t, d >= max/2 && d < max, "attempt %d: %v", attempt+1, d)
	}
}
