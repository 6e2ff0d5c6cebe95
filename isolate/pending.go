package isolate

import "sync"

// pendingQueue is an unbounded FIFO of calls posted from other isolates.
// Posting never blocks; the owner drains it at safe points.
type pendingQueue struct {
	calls  []func() error
	signal chan struct{}
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push appends fn and wakes a serving goroutine. It reports false once closed.
func (q *pendingQueue) push(fn func() error) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.calls = append(q.calls, fn)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// take removes and returns every queued call in posting order.
func (q *pendingQueue) take() []func() error {
	q.mu.Lock()
	calls := q.calls
	q.calls = nil
	q.mu.Unlock()
	return calls
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.calls)
}

// close stops accepting calls and returns how many were never run.
func (q *pendingQueue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	q.closed = true
	dropped := len(q.calls)
	q.calls = nil
	close(q.done)
	return dropped
}
