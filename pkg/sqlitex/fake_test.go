package sqlitex

import (
	"context"
	"database/sql/driver"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeRegistry tracks every fake handle a dial function opened, so tests can
// assert on pool-wide lifecycle behavior.
type fakeRegistry struct {
	mu    sync.Mutex
	conns []*fakeRawConn

	// dialStarted, when non-nil, receives one value per dial entered;
	// dialGate, when non-nil, then blocks the dial until the test releases
	// it. Both must be set before the registry is handed to a pool.
	dialStarted chan struct{}
	dialGate    chan struct{}
}

func (r *fakeRegistry) dial(dsn string) (rawConn, error) {
	if r.dialStarted != nil {
		r.dialStarted <- struct{}{}
	}

	if r.dialGate != nil {
		<-r.dialGate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conn := newFakeRawConn()
	r.conns = append(r.conns, conn)

	return conn, nil
}

func (r *fakeRegistry) created() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.conns)
}

func (r *fakeRegistry) allClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, conn := range r.conns {
		if !conn.isClosed() {
			return false
		}
	}

	return true
}

// fakeRawConn is a scripted, in-memory stand-in for the blocking sqlite
// handle. Exec and Query record the statements they saw and honor per-query
// scripted failures, delays and result rows.
type fakeRawConn struct {
	mu         sync.Mutex
	execLog    []string
	autocommit bool
	closed     bool

	execDelay time.Duration
	failOn    map[string]error
	rowsFor   map[string]fakeRowsSpec

	// execStarted is closed when the first Exec begins, letting tests
	// synchronize with an op that is mid-flight on the worker.
	execStarted  chan struct{}
	startedOnce  sync.Once
	// execRelease, when non-nil, blocks Exec until the test releases it.
	execRelease chan struct{}
}

type fakeRowsSpec struct {
	cols []string
	rows [][]driver.Value
}

func newFakeRawConn() *fakeRawConn {
	return &fakeRawConn{
		autocommit:  true,
		failOn:      make(map[string]error),
		rowsFor:     make(map[string]fakeRowsSpec),
		execStarted: make(chan struct{}),
	}
}

func (f *fakeRawConn) Exec(query string, args []driver.Value) (driver.Result, error) {
	f.startedOnce.Do(func() { close(f.execStarted) })

	f.mu.Lock()
	release := f.execRelease
	delay := f.execDelay
	f.mu.Unlock()

	if release != nil {
		<-release
	}

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.execLog = append(f.execLog, query)

	if err, ok := f.failOn[query]; ok {
		return nil, err
	}

	switch query {
	case "BEGIN":
		f.autocommit = false
	case "COMMIT", "ROLLBACK":
		f.autocommit = true
	}

	return fakeResult{lastInsertID: int64(len(f.execLog)), rowsAffected: 1}, nil
}

func (f *fakeRawConn) Query(query string, args []driver.Value) (driver.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.execLog = append(f.execLog, query)

	if err, ok := f.failOn[query]; ok {
		return nil, err
	}

	spec, ok := f.rowsFor[query]
	if !ok {
		spec = fakeRowsSpec{cols: []string{"value"}}
	}

	return &fakeRows{spec: spec}, nil
}

func (f *fakeRawConn) AutoCommit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.autocommit
}

func (f *fakeRawConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}

// blockExec makes every subsequent Exec park until the returned channel is
// closed.
func (f *fakeRawConn) blockExec() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.execRelease = make(chan struct{})

	return f.execRelease
}

func (f *fakeRawConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}

func (f *fakeRawConn) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.execLog))
	copy(out, f.execLog)

	return out
}

type fakeResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r fakeResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type fakeRows struct {
	spec fakeRowsSpec
	next int
}

func (r *fakeRows) Columns() []string {
	return r.spec.cols
}

func (r *fakeRows) Close() error {
	return nil
}

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.next >= len(r.spec.rows) {
		return io.EOF
	}

	copy(dest, r.spec.rows[r.next])
	r.next++

	return nil
}

// connectFake opens a Conn over a fresh fake handle.
func connectFake(t *testing.T) (*Conn, *fakeRawConn) {
	t.Helper()

	fake := newFakeRawConn()

	conn, err := connectWith(context.Background(), "fake.db", func(string) (rawConn, error) {
		return fake, nil
	})
	if err != nil {
		t.Fatalf("connectWith failed: %v", err)
	}

	return conn, fake
}
