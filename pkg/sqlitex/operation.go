package sqlitex

import (
	"context"
	"sync"

	"github.com/marcodd23/go-sqlite-bridge/pkg/errorx"
)

type opResult struct {
	value any
	err   error
}

// operation is one deferred database call plus its single-shot result slot.
// The slot is fulfilled exactly once, with a value or a captured error, and
// observed by at most one waiting caller.
type operation struct {
	run  func() (any, error)
	ch   chan opResult
	once sync.Once
}

func newOperation(run func() (any, error)) *operation {
	return &operation{run: run, ch: make(chan opResult, 1)}
}

// fulfill resolves the result slot. Calls after the first are discarded, so
// a terminated operation keeps its ClosedError even when the worker later
// finishes the underlying call.
func (op *operation) fulfill(value any, err error) {
	op.once.Do(func() {
		op.ch <- opResult{value: value, err: err}
	})
}

// wait blocks until the slot is fulfilled or ctx is done. Abandoning the
// wait does not stop the operation: the blocking call cannot be safely
// interrupted mid-flight, so it still completes and its result is discarded.
func (op *operation) wait(ctx context.Context) (any, error) {
	select {
	case res := <-op.ch:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// opQueue - unbounded FIFO hand-off from arbitrary caller goroutines to the
// single bridge worker. It never applies admission control; backpressure is
// a Pool concern.
type opQueue struct {
	mu       sync.Mutex
	nonEmpty *sync.Cond
	items    []*operation
	closed   bool
}

func newOpQueue() *opQueue {
	q := &opQueue{}
	q.nonEmpty = sync.NewCond(&q.mu)

	return q
}

// enqueue appends op to the tail. It fails with a ClosedError once the
// queue no longer accepts submissions.
func (q *opQueue) enqueue(op *operation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errorx.NewClosedError("connection is closed")
	}

	q.items = append(q.items, op)
	q.nonEmpty.Signal()

	return nil
}

// dequeue blocks until an operation is available, preserving submission
// order. After close it keeps serving the remaining items and returns
// ok=false only once the queue is drained.
func (q *opQueue) dequeue() (*operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.nonEmpty.Wait()
	}

	if len(q.items) == 0 {
		return nil, false
	}

	op := q.items[0]
	q.items = q.items[1:]

	return op, true
}

// close stops accepting submissions while letting the consumer drain what is
// already queued. Idempotent.
func (q *opQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	q.nonEmpty.Broadcast()
}

// drainFail closes the queue and fulfills every still-queued operation with
// err instead of running it. Used on forced teardown.
func (q *opQueue) drainFail(err error) {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.closed = true
	q.nonEmpty.Broadcast()
	q.mu.Unlock()

	for _, op := range items {
		op.fulfill(nil, err)
	}
}
