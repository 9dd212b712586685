// Package lock provides mutual exclusion between processes sharing a store. A lock is a single column whose value
// holds the holder's token and an expiry deadline. It is taken and released with compare-and-put, so correctness rests
// on that operation being atomic in the backing store.
//
// Expired locks are not reaped. An entry past its deadline is simply treated as free by the next Lock call.
package lock

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gtkv/gtkv/kv/metrics"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"
)

const valueLen = 8 + 16

// ErrLockTimeout is returned when a lock could not be acquired in time.
type ErrLockTimeout struct {
	Name    string
	Timeout time.Duration
}

func (e *ErrLockTimeout) Error() string {
	return fmt.Sprintf("lock %s not acquired within %v", e.Name, e.Timeout)
}

// ErrLockConflict is returned when the caller's token no longer holds the lock: it expired and was taken or released
// by someone else.
type ErrLockConflict struct {
	Name  string
	Token uuid.UUID
}

func (e *ErrLockConflict) Error() string {
	return fmt.Sprintf("lock %s is no longer held by token %s", e.Name, e.Token)
}

// DistributedLock takes named locks stored as columns of one row.
type DistributedLock struct {
	store  storage.Store
	row    []byte
	policy RetryPolicy
	clock  Clock
}

func NewDistributedLock(store storage.Store, row []byte, policy RetryPolicy, clock Clock) *DistributedLock {
	if policy.Backoff == nil {
		policy.Backoff = DefaultRetryPolicy().Backoff
	}
	if clock == nil {
		clock = RealClock
	}
	return &DistributedLock{
		store:  store,
		row:    row,
		policy: policy,
		clock:  clock,
	}
}

type holder struct {
	deadline time.Time
	token    uuid.UUID
}

func encodeValue(h holder) []byte {
	b := make([]byte, valueLen)
	binary.BigEndian.PutUint64(b, uint64(h.deadline.UnixNano()))
	copy(b[8:], h.token[:])
	return b
}

func decodeValue(b []byte) (holder, error) {
	if len(b) != valueLen {
		return holder{}, errors.Errorf("lock value has %d bytes, want %d", len(b), valueLen)
	}
	h := holder{deadline: time.Unix(0, int64(binary.BigEndian.Uint64(b)))}
	copy(h.token[:], b[8:])
	return h, nil
}

// current returns the stored value of lock name, nil when absent.
func (l *DistributedLock) current(name string) ([]byte, error) {
	cells, err := l.store.Get(l.row, storage.Columns([]byte(name)), nil)
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return nil, nil
	}
	return cells[0].Value, nil
}

// Lock acquires name for duration and returns the holder token. It retries with backoff while the lock is held by
// someone else and gives up with *ErrLockTimeout after timeout. A zero timeout uses the policy's MaxWait.
func (l *DistributedLock) Lock(name string, duration, timeout time.Duration) (uuid.UUID, error) {
	if timeout == 0 {
		timeout = l.policy.MaxWait
	}
	start := l.clock.Now()
	token, err := l.lock(name, duration, timeout, start)
	switch errors.Cause(err).(type) {
	case nil:
		metrics.LockCounter.WithLabelValues(metrics.LabelLock, metrics.ResultOK).Inc()
		metrics.LockWaitDuration.Observe(l.clock.Now().Sub(start).Seconds())
	case *ErrLockTimeout:
		metrics.LockCounter.WithLabelValues(metrics.LabelLock, metrics.ResultTimeout).Inc()
	default:
		metrics.LockCounter.WithLabelValues(metrics.LabelLock, metrics.ResultErr).Inc()
	}
	return token, err
}

func (l *DistributedLock) lock(name string, duration, timeout time.Duration, start time.Time) (uuid.UUID, error) {
	for attempt := 1; ; attempt++ {
		cur, err := l.current(name)
		if err != nil {
			return uuid.Nil, err
		}
		now := l.clock.Now()
		free := cur == nil
		if !free {
			h, err := decodeValue(cur)
			if err != nil {
				return uuid.Nil, errors.Annotatef(err, "lock %s", name)
			}
			free = !now.Before(h.deadline)
		}
		if free {
			token := uuid.New()
			ok, err := l.store.CompareAndPut(l.row, []byte(name), cur, encodeValue(holder{deadline: now.Add(duration), token: token}))
			if err != nil {
				return uuid.Nil, err
			}
			if ok {
				log.Debugf("lock %s acquired by %s after %d attempts", name, token, attempt)
				return token, nil
			}
		}
		remaining := timeout - now.Sub(start)
		if remaining <= 0 {
			return uuid.Nil, &ErrLockTimeout{Name: name, Timeout: timeout}
		}
		wait := l.policy.Backoff(attempt)
		if wait > remaining {
			wait = remaining
		}
		l.clock.Sleep(wait)
	}
}

// Unlock releases name if token still holds it. Otherwise the lock expired and was re-acquired or released by
// someone else, and *ErrLockConflict is returned.
func (l *DistributedLock) Unlock(name string, token uuid.UUID) error {
	err := l.swap(name, token, func(holder) []byte { return nil })
	metrics.LockCounter.WithLabelValues(metrics.LabelUnlock, result(err)).Inc()
	return err
}

// Refresh moves the deadline of a held lock to now+duration.
func (l *DistributedLock) Refresh(name string, token uuid.UUID, duration time.Duration) error {
	err := l.swap(name, token, func(h holder) []byte {
		h.deadline = l.clock.Now().Add(duration)
		return encodeValue(h)
	})
	metrics.LockCounter.WithLabelValues(metrics.LabelRefresh, result(err)).Inc()
	return err
}

func (l *DistributedLock) swap(name string, token uuid.UUID, next func(holder) []byte) error {
	cur, err := l.current(name)
	if err != nil {
		return err
	}
	conflict := &ErrLockConflict{Name: name, Token: token}
	if cur == nil {
		log.Warnf("lock %s: token %s does not hold the lock, it is free", name, token)
		return conflict
	}
	h, err := decodeValue(cur)
	if err != nil {
		return errors.Annotatef(err, "lock %s", name)
	}
	if h.token != token {
		log.Warnf("lock %s: token %s does not hold the lock, %s does", name, token, h.token)
		return conflict
	}
	ok, err := l.store.CompareAndPut(l.row, []byte(name), cur, next(h))
	if err != nil {
		return err
	}
	if !ok {
		return conflict
	}
	return nil
}

func result(err error) string {
	if _, ok := err.(*ErrLockConflict); ok {
		return metrics.ResultConflict
	}
	return metrics.Result(err)
}
