package ingest

import "sync/atomic"

// runLock is a non-blocking lock that lets a second Ingest call fail fast
// instead of queueing behind a long corpus load.
type runLock struct {
	state atomic.Int32 // 0 = idle, 1 = running
}

func (l *runLock) tryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

func (l *runLock) release() {
	l.state.Store(0)
}
