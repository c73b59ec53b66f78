//go:build unix

package framecast

import (
	"math"
	"sync/atomic"
	"time"
)

// Mutex states of the shared lock word.
const (
	mutexUnlocked  uint32 = 0
	mutexLocked    uint32 = 1
	mutexContended uint32 = 2
)

// namedMutex is a cross-process lock over a futex word in a named file.
// It is not reentrant and has no owner tracking: a holder that dies leaves
// it locked, which callers observe as lock timeouts.
type namedMutex struct {
	seg  *segment
	word *uint32
}

func newNamedMutex(seg *segment) *namedMutex {
	return &namedMutex{seg: seg, word: seg.word()}
}

// lock acquires the mutex or gives up after timeout.
func (m *namedMutex) lock(timeout time.Duration) bool {
	if atomic.CompareAndSwapUint32(m.word, mutexUnlocked, mutexLocked) {
		return true
	}
	deadline := time.Now().Add(timeout)
	for {
		// Taking the lock in the contended state is conservative: the
		// matching unlock may issue one unnecessary wake.
		if atomic.SwapUint32(m.word, mutexContended) == mutexUnlocked {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		futexWait(m.word, mutexContended, remaining)
	}
}

func (m *namedMutex) unlock() {
	if atomic.AddUint32(m.word, ^uint32(0)) != mutexUnlocked {
		atomic.StoreUint32(m.word, mutexUnlocked)
		futexWake(m.word, 1)
	}
}

// namedEvent is a broadcast wake-up signal over a generation counter.
// Each handle remembers the last generation it consumed, so a signal wakes
// every handle's next wait exactly once and carries no payload.
type namedEvent struct {
	seg  *segment
	word *uint32
	seen atomic.Uint32
}

func newNamedEvent(seg *segment) *namedEvent {
	e := &namedEvent{seg: seg, word: seg.word()}
	e.seen.Store(atomic.LoadUint32(e.word))
	return e
}

func (e *namedEvent) signal() {
	atomic.AddUint32(e.word, 1)
	futexWake(e.word, math.MaxInt32)
}

// wait blocks until a generation newer than the last consumed one appears or
// the timeout elapses.
func (e *namedEvent) wait(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		cur := atomic.LoadUint32(e.word)
		if prev := e.seen.Load(); cur != prev {
			if e.seen.CompareAndSwap(prev, cur) {
				return true
			}
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		futexWait(e.word, cur, remaining)
	}
}

// drain marks all pending signals as consumed.
func (e *namedEvent) drain() {
	e.seen.Store(atomic.LoadUint32(e.word))
}
