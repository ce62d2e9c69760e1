package ingest

import "sync/atomic"

// runLock rejects overlapping index runs instead of queueing them. A second
// caller gets ErrIndexInProgress immediately rather than blocking behind a
// potentially long scan.
type runLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// tryAcquire attempts to acquire the lock without blocking
func (l *runLock) tryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// release releases the lock. Must only be called after a successful
// tryAcquire.
func (l *runLock) release() {
	l.state.Store(0)
}
