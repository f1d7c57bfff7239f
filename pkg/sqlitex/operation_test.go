package sqlitex

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marcodd23/go-sqlite-bridge/pkg/errorx"
)

// TestOpQueueFIFOSingleProducer verifies that the queue hands operations to
// the consumer in exact submission order.
func TestOpQueueFIFOSingleProducer(t *testing.T) {
	q := newOpQueue()

	const n = 100
	for i := 0; i < n; i++ {
		idx := i
		require.NoError(t, q.enqueue(newOperation(func() (any, error) { return idx, nil })))
	}

	for i := 0; i < n; i++ {
		op, ok := q.dequeue()
		require.True(t, ok)

		value, err := op.run()
		require.NoError(t, err)
		require.Equal(t, i, value)
	}
}

// TestOpQueueConcurrentEnqueueLosesNothing verifies that no operation is
// lost or duplicated under concurrent submission from many goroutines, and
// that each producer's own submissions keep their relative order.
func TestOpQueueConcurrentEnqueueLosesNothing(t *testing.T) {
	q := newOpQueue()

	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for pr := 0; pr < producers; pr++ {
		wg.Add(1)

		go func(producer int) {
			defer wg.Done()

			for i := 0; i < perProducer; i++ {
				tag := fmt.Sprintf("%d/%d", producer, i)
				_ = q.enqueue(newOperation(func() (any, error) { return tag, nil }))
			}
		}(pr)
	}

	wg.Wait()

	seen := make(map[string]bool)
	lastPerProducer := make(map[string]int)

	for i := 0; i < producers*perProducer; i++ {
		op, ok := q.dequeue()
		require.True(t, ok)

		value, _ := op.run()
		tag := value.(string)
		require.False(t, seen[tag], "operation %s dequeued twice", tag)
		seen[tag] = true

		var producer, seq int
		_, err := fmt.Sscanf(tag, "%d/%d", &producer, &seq)
		require.NoError(t, err)

		key := fmt.Sprintf("%d", producer)
		if last, ok := lastPerProducer[key]; ok {
			require.Greater(t, seq, last, "producer %d submissions reordered", producer)
		}
		lastPerProducer[key] = seq
	}

	require.Len(t, seen, producers*perProducer)
}

// TestOpQueueCloseDrainsRemaining verifies that close stops new submissions
// while still serving the operations already queued, in order.
func TestOpQueueCloseDrainsRemaining(t *testing.T) {
	q := newOpQueue()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.enqueue(newOperation(func() (any, error) { return nil, nil })))
	}

	q.close()

	err := q.enqueue(newOperation(func() (any, error) { return nil, nil }))
	require.Error(t, err)
	require.True(t, errorx.IsClosed(err))

	for i := 0; i < 3; i++ {
		_, ok := q.dequeue()
		require.True(t, ok)
	}

	_, ok := q.dequeue()
	require.False(t, ok)
}

// TestOpQueueDrainFailFulfillsPending verifies that a forced drain resolves
// every still-queued operation with the given error instead of running it.
func TestOpQueueDrainFailFulfillsPending(t *testing.T) {
	q := newOpQueue()

	ops := make([]*operation, 0, 3)
	for i := 0; i < 3; i++ {
		op := newOperation(func() (any, error) { return "ran", nil })
		require.NoError(t, q.enqueue(op))
		ops = append(ops, op)
	}

	q.drainFail(errorx.NewClosedError("terminated"))

	for _, op := range ops {
		value, err := op.wait(context.Background())
		require.Nil(t, value)
		require.True(t, errorx.IsClosed(err))
	}

	_, ok := q.dequeue()
	require.False(t, ok)
}

// TestOperationFulfilledExactlyOnce verifies the single-shot result slot:
// the first fulfillment wins and later ones are discarded.
func TestOperationFulfilledExactlyOnce(t *testing.T) {
	op := newOperation(func() (any, error) { return nil, nil })

	op.fulfill(nil, errorx.NewClosedError("first"))
	op.fulfill("late result", nil)

	value, err := op.wait(context.Background())
	require.Nil(t, value)
	require.True(t, errorx.IsClosed(err))
}

// TestOperationWaitHonorsContext verifies that abandoning the wait does not
// disturb the slot; the result is still delivered and simply unobserved.
func TestOperationWaitHonorsContext(t *testing.T) {
	op := newOperation(func() (any, error) { return nil, nil })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := op.wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	op.fulfill("result", nil)

	value, err := op.wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "result", value)
}
