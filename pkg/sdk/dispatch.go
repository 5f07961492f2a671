package sdk

import (
	"fmt"
	"runtime"
	"sync"
)

const defaultCallbackQueueSize = 256

type dispatchResult struct {
	value any
	err   error
}

// dispatcher runs queued functions one at a time on its own goroutine. The
// session uses it to deliver observer callbacks in order and off the
// caller's goroutine. The goroutine starts on first use and exits after
// stop, once the functions queued before stop have run.
type dispatcher struct {
	size int

	mu sync.Mutex
	q  chan func() // nil while stopped
}

func newDispatcher(queueSize int) *dispatcher {
	if queueSize <= 0 {
		queueSize = defaultCallbackQueueSize
	}
	return &dispatcher{size: queueSize}
}

func run(q chan func()) {
	for fn := range q {
		if fn != nil {
			fn()
		}
	}
}

// enqueueLocked starts the goroutine if needed and queues fn without
// blocking.
func (d *dispatcher) enqueueLocked(fn func()) bool {
	if d.q == nil {
		d.q = make(chan func(), d.size)
		go run(d.q)
	}
	select {
	case d.q <- fn:
		return true
	default:
		return false
	}
}

// tryDo queues fn without blocking. It reports false when the queue is full.
func (d *dispatcher) tryDo(fn func()) bool {
	if d == nil || fn == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enqueueLocked(fn)
}

// call runs fn on the dispatcher goroutine and waits for it. Everything
// queued before it has run by the time call returns.
func (d *dispatcher) call(fn func() (any, error)) (any, error) {
	if d == nil {
		return nil, fmt.Errorf("dispatcher not initialized")
	}
	if fn == nil {
		return nil, nil
	}
	done := make(chan dispatchResult, 1)
	wrapped := func() {
		value, err := fn()
		done <- dispatchResult{value: value, err: err}
	}
	// The lock is never held while waiting for room, so callbacks running on
	// the dispatcher can still queue events.
	for !d.tryDo(wrapped) {
		runtime.Gosched()
	}
	res := <-done
	return res.value, res.err
}

// stop lets the goroutine drain what is queued and exit. A later tryDo or
// call starts a new one.
func (d *dispatcher) stop() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.q != nil {
		close(d.q)
		d.q = nil
	}
}

func (d *dispatcher) running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.q != nil
}
