package lock

import (
	"math/rand"
	"sync"
	"time"

	"github.com/gtkv/gtkv/kv/config"
)

// Clock is the time source of a DistributedLock.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock reads the wall clock and really sleeps.
var RealClock Clock = realClock{}

// ManualClock is a Clock that only moves when told to. Sleep advances it by the slept duration, so retry loops run
// through simulated time without delay.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Sleep(d time.Duration) {
	c.Advance(d)
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// RetryPolicy decides how acquisition attempts are spaced.
type RetryPolicy struct {
	// MaxWait bounds acquisition when Lock is called without a timeout.
	MaxWait time.Duration
	// Backoff returns the pause after the failed attempt number attempt, counting from 1.
	Backoff func(attempt int) time.Duration
}

// ExponentialBackoff doubles the pause from min up to max, spreading every pause over [d/2, d).
func ExponentialBackoff(min, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := min
		for i := 1; i < attempt && d < max; i++ {
			d *= 2
		}
		if d > max {
			d = max
		}
		if half := int64(d / 2); half > 0 {
			d = time.Duration(half + rand.Int63n(half))
		}
		return d
	}
}

// NewRetryPolicy builds the policy described by conf.
func NewRetryPolicy(conf *config.Lock) RetryPolicy {
	return RetryPolicy{
		MaxWait: conf.Timeout.Duration,
		Backoff: ExponentialBackoff(conf.MinBackoff.Duration, conf.MaxBackoff.Duration),
	}
}

// DefaultRetryPolicy waits up to 30s, backing off from 10ms to 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxWait: 30 * time.Second,
		Backoff: ExponentialBackoff(10*time.Millisecond, 500*time.Millisecond),
	}
}
