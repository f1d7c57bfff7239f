package sqlitex

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marcodd23/go-sqlite-bridge/pkg/errorx"
	"github.com/marcodd23/go-sqlite-bridge/pkg/logx"
)

const (
	stateOpen int32 = iota
	stateClosing
	stateClosed
)

// Result - outcome of a write operation.
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

// Conn bridges one blocking sqlite handle into a non-blocking call surface.
// A dedicated worker goroutine owns the handle exclusively: every operation
// submitted to the Conn runs on that worker, one at a time, in strict
// submission order.
type Conn struct {
	id        uuid.UUID
	dsn       string
	createdAt time.Time
	raw       rawConn
	queue     *opQueue
	state     atomic.Int32
	inTx      atomic.Bool

	// current is the operation executing on the worker right now, tracked so
	// a forced teardown can resolve its result slot instead of leaving the
	// caller hanging.
	curMu   sync.Mutex
	current *operation

	// done is closed by the worker after the raw handle has been released.
	done chan struct{}
}

// Connect opens the blocking sqlite handle at dsn and starts the dedicated
// worker goroutine that owns it.
func Connect(ctx context.Context, dsn string) (*Conn, error) {
	return connectWith(ctx, dsn, sqliteDial)
}

func connectWith(ctx context.Context, dsn string, dial dialFunc) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := dial(dsn)
	if err != nil {
		return nil, err
	}

	conn := &Conn{
		id:        uuid.New(),
		dsn:       dsn,
		createdAt: time.Now(),
		raw:       raw,
		queue:     newOpQueue(),
		done:      make(chan struct{}),
	}

	go conn.worker()

	logx.GetLogger().LogDebug(ctx, fmt.Sprintf("sqlite connection %s opened for %q", conn.id, dsn))

	return conn, nil
}

// worker is the sole consumer of the operation queue and the only goroutine
// that ever touches the raw handle, including its final Close.
func (c *Conn) worker() {
	for {
		op, ok := c.queue.dequeue()
		if !ok {
			break
		}

		c.setCurrent(op)
		value, err := op.run()
		c.inTx.Store(!c.raw.AutoCommit())
		c.setCurrent(nil)

		op.fulfill(value, errorx.MapDriverError(err))
	}

	if err := c.raw.Close(); err != nil {
		logx.GetLogger().LogWarning(context.Background(),
			fmt.Sprintf("sqlite connection %s: error closing raw handle", c.id), err)
	}

	c.state.Store(stateClosed)
	close(c.done)
}

func (c *Conn) setCurrent(op *operation) {
	c.curMu.Lock()
	c.current = op
	c.curMu.Unlock()
}

// submit enqueues run as an operation and waits for its single-shot result.
// It never blocks the caller beyond queue bookkeeping before the wait, and
// fails fast once the Conn is closing or closed.
func (c *Conn) submit(ctx context.Context, run func() (any, error)) (any, error) {
	if c.state.Load() != stateOpen {
		return nil, errorx.NewClosedError("connection %s is closed", c.id)
	}

	op := newOperation(run)
	if err := c.queue.enqueue(op); err != nil {
		return nil, err
	}

	return op.wait(ctx)
}

// Execute runs a single statement and reports its Result.
func (c *Conn) Execute(ctx context.Context, query string, args ...any) (Result, error) {
	value, err := c.submit(ctx, func() (any, error) {
		dargs, err := toDriverValues(args)
		if err != nil {
			return nil, err
		}

		res, err := c.raw.Exec(query, dargs)
		if err != nil {
			return nil, err
		}

		return resultFrom(res), nil
	})
	if err != nil {
		return Result{}, err
	}

	return value.(Result), nil
}

// ExecuteMany runs the same statement once per argument set, as one queued
// operation so the whole batch holds its place in the submission order. The
// returned Result carries the last insert id and the summed affected rows.
func (c *Conn) ExecuteMany(ctx context.Context, query string, argSets [][]any) (Result, error) {
	value, err := c.submit(ctx, func() (any, error) {
		var total Result

		for i, args := range argSets {
			dargs, err := toDriverValues(args)
			if err != nil {
				return nil, errorx.NewDriverErrorWrapper(errorx.KindProgramming, err, "argument set %d", i)
			}

			res, err := c.raw.Exec(query, dargs)
			if err != nil {
				return nil, err
			}

			single := resultFrom(res)
			total.LastInsertID = single.LastInsertID
			total.RowsAffected += single.RowsAffected
		}

		return total, nil
	})
	if err != nil {
		return Result{}, err
	}

	return value.(Result), nil
}

// ExecuteScript runs a multi-statement SQL script in one queued operation.
func (c *Conn) ExecuteScript(ctx context.Context, script string) error {
	_, err := c.submit(ctx, func() (any, error) {
		_, execErr := c.raw.Exec(script, nil)
		return nil, execErr
	})

	return err
}

// Query executes a statement and returns a lazy, single-pass cursor over its
// rows. The cursor is restartable only by re-executing the query.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	value, err := c.submit(ctx, func() (any, error) {
		dargs, err := toDriverValues(args)
		if err != nil {
			return nil, err
		}

		raw, err := c.raw.Query(query, dargs)
		if err != nil {
			return nil, err
		}

		cols := make([]string, len(raw.Columns()))
		copy(cols, raw.Columns())

		return &Rows{conn: c, raw: raw, cols: cols}, nil
	})
	if err != nil {
		return nil, err
	}

	return value.(*Rows), nil
}

// Commit delegates COMMIT to the underlying handle.
func (c *Conn) Commit(ctx context.Context) error {
	_, err := c.submit(ctx, func() (any, error) {
		_, execErr := c.raw.Exec("COMMIT", nil)
		return nil, execErr
	})

	return err
}

// Rollback delegates ROLLBACK to the underlying handle.
func (c *Conn) Rollback(ctx context.Context) error {
	_, err := c.submit(ctx, func() (any, error) {
		_, execErr := c.raw.Exec("ROLLBACK", nil)
		return nil, execErr
	})

	return err
}

// InTransaction reports whether the handle currently holds an open
// transaction. The flag is maintained by the worker after every operation,
// so reading it never touches the handle from a foreign goroutine.
func (c *Conn) InTransaction() bool {
	return c.inTx.Load()
}

// ID - stable identifier used for log correlation and recycling checks.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// CreatedAt - when the underlying handle was opened.
func (c *Conn) CreatedAt() time.Time {
	return c.createdAt
}

// Closed reports whether the Conn no longer accepts submissions.
func (c *Conn) Closed() bool {
	return c.state.Load() != stateOpen
}

// Close stops accepting new submissions, lets already-queued operations
// finish, then waits for the worker to release the raw handle. Operations
// submitted after Close starts fail with a ClosedError rather than being
// silently dropped. Safe to call more than once.
func (c *Conn) Close(ctx context.Context) error {
	c.state.CompareAndSwap(stateOpen, stateClosing)
	c.queue.close()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// terminate force-closes the Conn: every queued operation and the in-flight
// one resolve immediately with a ClosedError so no caller hangs, while the
// worker finishes the uninterruptible call it may be in, discards that
// result, and releases the handle. Pool teardown uses this path.
func (c *Conn) terminate() {
	c.state.CompareAndSwap(stateOpen, stateClosing)

	closedErr := errorx.NewClosedError("connection %s terminated", c.id)
	c.queue.drainFail(closedErr)

	c.curMu.Lock()
	if cur := c.current; cur != nil {
		cur.fulfill(nil, closedErr)
	}
	c.curMu.Unlock()
}

func resultFrom(res driver.Result) Result {
	out := Result{}

	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}

	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}

	return out
}
