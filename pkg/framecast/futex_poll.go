//go:build unix && !linux

package framecast

import (
	"sync/atomic"
	"time"
)

// pollInterval bounds the added latency where no futex is available.
const pollInterval = time.Millisecond

// futexWait polls *addr until it differs from val or timeout elapses.
func futexWait(addr *uint32, val uint32, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for atomic.LoadUint32(addr) == val {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		time.Sleep(min(pollInterval, remaining))
	}
}

func futexWake(*uint32, int) {}
