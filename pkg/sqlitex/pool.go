package sqlitex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marcodd23/go-sqlite-bridge/pkg/errorx"
	"github.com/marcodd23/go-sqlite-bridge/pkg/logx"
)

// Default pool sizing, matching the construction defaults of the external
// surface: create_pool(target, minsize=1, maxsize=10, timeout=T).
const (
	DefaultMinSize        = 1
	DefaultMaxSize        = 10
	DefaultAcquireTimeout = 30 * time.Second
)

// RecycleNever disables age-based recycling.
const RecycleNever time.Duration = -1

type poolState int

const (
	poolOpen poolState = iota
	poolClosing
	poolClosed
)

// PoolConfig - construction parameters for a Pool.
type PoolConfig struct {
	// DSN is handed to the sqlite driver untouched.
	DSN string
	// MinSize connections are opened up-front and the pool restores this
	// floor when recycling retires a connection.
	MinSize int
	// MaxSize bounds idle + in-use connections. Zero selects DefaultMaxSize.
	MaxSize int
	// AcquireTimeout bounds the wait for a free connection. Zero selects
	// DefaultAcquireTimeout.
	AcquireTimeout time.Duration
	// Recycle is the maximum connection age before it is retired on release.
	// Zero retires on every release; RecycleNever (any negative) disables
	// recycling.
	Recycle time.Duration
}

// DefaultPoolConfig - a PoolConfig with the standard sizing for dsn.
func DefaultPoolConfig(dsn string) PoolConfig {
	return PoolConfig{
		DSN:            dsn,
		MinSize:        DefaultMinSize,
		MaxSize:        DefaultMaxSize,
		AcquireTimeout: DefaultAcquireTimeout,
		Recycle:        RecycleNever,
	}
}

func (cfg PoolConfig) withDefaults() PoolConfig {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultMaxSize
	}

	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}

	return cfg
}

func (cfg PoolConfig) validate() error {
	if cfg.DSN == "" {
		return errorx.NewInvalidStateError("pool config: DSN must not be empty")
	}

	if cfg.MinSize < 0 {
		return errorx.NewInvalidStateError("pool config: MinSize must be >= 0, got %d", cfg.MinSize)
	}

	if cfg.MaxSize < 1 {
		return errorx.NewInvalidStateError("pool config: MaxSize must be >= 1, got %d", cfg.MaxSize)
	}

	if cfg.MinSize > cfg.MaxSize {
		return errorx.NewInvalidStateError("pool config: MinSize %d exceeds MaxSize %d", cfg.MinSize, cfg.MaxSize)
	}

	if cfg.AcquireTimeout < 0 {
		return errorx.NewInvalidStateError("pool config: AcquireTimeout must be >= 0")
	}

	return nil
}

// waiter - a queued Acquire call. The channel has capacity one so a releaser
// can hand a connection over without blocking; it is closed (without a
// value) when the pool shuts down.
type waiter struct {
	ch chan *Conn
}

// Pool owns a bounded set of bridged connections, hands them out fairly in
// FIFO order and reclaims or retires them on release.
type Pool struct {
	cfg  PoolConfig
	dial dialFunc

	mu         sync.Mutex
	state      poolState
	idle       []*Conn
	used       map[*Conn]struct{}
	terminated map[*Conn]struct{}
	waiters    []*waiter
	// opening counts handles currently being dialed; they occupy capacity so
	// concurrent Acquire calls can never overshoot MaxSize.
	opening int

	closedCh chan struct{}
}

// NewPool builds a Pool and pre-opens MinSize connections.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	return newPoolWith(ctx, cfg, sqliteDial)
}

func newPoolWith(ctx context.Context, cfg PoolConfig, dial dialFunc) (*Pool, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		cfg:        cfg,
		dial:       dial,
		used:       make(map[*Conn]struct{}),
		terminated: make(map[*Conn]struct{}),
		closedCh:   make(chan struct{}),
	}

	for i := 0; i < cfg.MinSize; i++ {
		conn, err := connectWith(ctx, cfg.DSN, dial)
		if err != nil {
			for _, opened := range p.idle {
				_ = opened.Close(context.Background())
			}

			return nil, err
		}

		p.idle = append(p.idle, conn)
	}

	logx.GetLogger().LogDebug(ctx, fmt.Sprintf("sqlite pool ready: dsn=%q minsize=%d maxsize=%d", cfg.DSN, cfg.MinSize, cfg.MaxSize))

	return p, nil
}

// Acquire hands out an idle connection, grows the pool while below MaxSize,
// or waits FIFO for a release. The wait is bounded by AcquireTimeout
// (TimeoutError) and by ctx. Acquiring from a closing or closed pool fails
// with a ClosedError.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()

	if p.state != poolOpen {
		p.mu.Unlock()
		return nil, errorx.NewClosedError("pool is closed")
	}

	if len(p.idle) > 0 {
		conn := p.idle[0]
		p.idle = p.idle[1:]
		p.used[conn] = struct{}{}
		p.mu.Unlock()

		return conn, nil
	}

	if p.sizeLocked() < p.cfg.MaxSize {
		p.opening++
		p.mu.Unlock()

		conn, err := connectWith(ctx, p.cfg.DSN, p.dial)

		p.mu.Lock()
		p.opening--

		if err != nil {
			p.mu.Unlock()
			// The reserved capacity is gone; a concurrent Close may be
			// waiting on that count to drain.
			p.finishCloseIfDrained()

			return nil, err
		}

		if p.state != poolOpen {
			p.mu.Unlock()
			_ = conn.Close(context.Background())
			p.finishCloseIfDrained()

			return nil, errorx.NewClosedError("pool is closed")
		}

		p.used[conn] = struct{}{}
		p.mu.Unlock()

		return conn, nil
	}

	w := &waiter{ch: make(chan *Conn, 1)}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	waitCtx := ctx

	if p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc

		waitCtx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	select {
	case conn, ok := <-w.ch:
		if !ok {
			return nil, errorx.NewClosedError("pool is closed")
		}

		return conn, nil
	case <-waitCtx.Done():
		p.mu.Lock()
		p.removeWaiterLocked(w)
		p.mu.Unlock()

		// A release may have handed us a connection in the same instant. The
		// hand-off happens under p.mu, so when removeWaiterLocked missed the
		// waiter the connection is already sitting in the channel; put it
		// back so a cancelled waiter never leaks one.
		select {
		case conn, ok := <-w.ch:
			if ok && conn != nil {
				_ = p.Release(conn)
			}
		default:
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, errorx.NewTimeoutError("connection acquire timed out after %s", p.cfg.AcquireTimeout)
	}
}

// Release returns conn to the pool. A healthy, young-enough connection goes
// to the oldest waiter or back to the idle set; anything else is closed and,
// while the pool is open and below MinSize, replaced to keep the floor.
// Releasing a connection holding an unfinished transaction is a programming
// error and fails with an InvalidStateError, mutating nothing — except
// during pool teardown, where the connection is simply closed.
func (p *Pool) Release(conn *Conn) error {
	if conn == nil {
		return errorx.NewInvalidStateError("cannot release a nil connection")
	}

	p.mu.Lock()

	if _, ok := p.terminated[conn]; ok {
		// Terminate() already closed this checked-out connection.
		delete(p.terminated, conn)
		p.mu.Unlock()

		return nil
	}

	if _, ok := p.used[conn]; !ok {
		p.mu.Unlock()
		return errorx.NewInvalidStateError("connection %s was not acquired from this pool", conn.ID())
	}

	tearingDown := p.state != poolOpen

	if !tearingDown && conn.InTransaction() {
		p.mu.Unlock()
		return errorx.NewInvalidStateError("cannot release connection %s with an unfinished transaction", conn.ID())
	}

	delete(p.used, conn)

	if tearingDown {
		p.mu.Unlock()
		p.closeConn(conn)
		p.finishCloseIfDrained()

		return nil
	}

	if conn.Closed() || p.expired(conn) {
		p.mu.Unlock()
		p.closeConn(conn)
		p.refill()

		return nil
	}

	if w := p.popWaiterLocked(); w != nil {
		p.used[conn] = struct{}{}
		// Send while still holding the lock. The channel has capacity one and
		// this releaser is its only sender, so the send cannot block; a waiter
		// cancelled in the same instant then always finds the connection in
		// the channel when it drains, never an empty buffer.
		w.ch <- conn
		p.mu.Unlock()

		return nil
	}

	p.idle = append(p.idle, conn)
	p.mu.Unlock()

	return nil
}

// AcquireScoped wraps a pending acquire so it can be resolved directly or
// consumed as a scoped block with guaranteed release.
func (p *Pool) AcquireScoped() *Acquisition {
	return newAcquisition(p.Acquire, p.Release)
}

// Close marks the pool non-acquiring, fails queued waiters, closes idle
// connections and lets in-flight checkouts finish; the pool reaches the
// closed state once the last of them is released. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()

	if p.state != poolOpen {
		p.mu.Unlock()
		return
	}

	p.state = poolClosing
	idle := p.idle
	p.idle = nil
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	logx.GetLogger().LogInfo(context.Background(), fmt.Sprintf("closing sqlite pool: dsn=%q", p.cfg.DSN))

	for _, w := range waiters {
		close(w.ch)
	}

	for _, conn := range idle {
		p.closeConn(conn)
	}

	p.finishCloseIfDrained()
}

// Terminate force-closes every connection, including ones currently checked
// out, then moves the pool straight to closed. Idempotent and stronger than
// Close.
func (p *Pool) Terminate() {
	p.mu.Lock()

	if p.state == poolClosed {
		p.mu.Unlock()
		return
	}

	p.state = poolClosing

	conns := make([]*Conn, 0, len(p.idle)+len(p.used))
	conns = append(conns, p.idle...)
	p.idle = nil

	for conn := range p.used {
		conns = append(conns, conn)
		p.terminated[conn] = struct{}{}
		delete(p.used, conn)
	}

	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	logx.GetLogger().LogInfo(context.Background(), fmt.Sprintf("terminating sqlite pool: dsn=%q conns=%d", p.cfg.DSN, len(conns)))

	for _, w := range waiters {
		close(w.ch)
	}

	for _, conn := range conns {
		conn.terminate()
	}

	for _, conn := range conns {
		<-conn.done
	}

	p.mu.Lock()
	// A grow-path dial may still be in flight; its connection is not closed
	// yet, so the Closing -> Closed transition is left to the dialer's
	// finishCloseIfDrained.
	if p.state != poolClosed && p.opening == 0 {
		p.state = poolClosed
		close(p.closedCh)
	}
	p.mu.Unlock()
}

// WaitClosed blocks until every connection the pool ever created has been
// closed. Calling it on a pool that was never closed is a programming error.
func (p *Pool) WaitClosed(ctx context.Context) error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()

	if state == poolOpen {
		return errorx.NewInvalidStateError("WaitClosed called on an open pool; call Close or Terminate first")
	}

	select {
	case <-p.closedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Size - idle plus in-use connections, a snapshot of a recent instant.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.sizeLocked()
}

// FreeSize - idle connections, a snapshot of a recent instant.
func (p *Pool) FreeSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.idle)
}

// MinSize - the configured floor.
func (p *Pool) MinSize() int {
	return p.cfg.MinSize
}

// MaxSize - the configured ceiling.
func (p *Pool) MaxSize() int {
	return p.cfg.MaxSize
}

// AcquireTimeout - the configured acquire wait bound.
func (p *Pool) AcquireTimeout() time.Duration {
	return p.cfg.AcquireTimeout
}

// Closed reports whether Close or Terminate has been called.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state != poolOpen
}

func (p *Pool) sizeLocked() int {
	return len(p.idle) + len(p.used) + p.opening
}

func (p *Pool) expired(conn *Conn) bool {
	return p.cfg.Recycle >= 0 && time.Since(conn.CreatedAt()) >= p.cfg.Recycle
}

// popWaiterLocked removes and returns the oldest waiter, or nil.
func (p *Pool) popWaiterLocked() *waiter {
	if len(p.waiters) == 0 {
		return nil
	}

	w := p.waiters[0]
	p.waiters = p.waiters[1:]

	return w
}

func (p *Pool) removeWaiterLocked(w *waiter) {
	for i, queued := range p.waiters {
		if queued == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

func (p *Pool) closeConn(conn *Conn) {
	if err := conn.Close(context.Background()); err != nil {
		logx.GetLogger().LogWarning(context.Background(),
			fmt.Sprintf("sqlite pool: error closing connection %s", conn.ID()), err)
	}
}

// refill restores the MinSize floor after a recycled or broken connection
// was retired. Open failures are logged, never surfaced to the releasing
// caller.
func (p *Pool) refill() {
	for {
		p.mu.Lock()

		if p.state != poolOpen || p.sizeLocked() >= p.cfg.MinSize {
			p.mu.Unlock()
			return
		}

		p.opening++
		p.mu.Unlock()

		conn, err := connectWith(context.Background(), p.cfg.DSN, p.dial)

		p.mu.Lock()
		p.opening--

		if err != nil {
			p.mu.Unlock()
			logx.GetLogger().LogWarning(context.Background(), "sqlite pool: failed to open replacement connection", err)
			p.finishCloseIfDrained()

			return
		}

		if p.state != poolOpen {
			p.mu.Unlock()
			_ = conn.Close(context.Background())
			p.finishCloseIfDrained()

			return
		}

		if w := p.popWaiterLocked(); w != nil {
			p.used[conn] = struct{}{}
			// Sent under the lock for the same reason as in Release.
			w.ch <- conn
			p.mu.Unlock()

			continue
		}

		p.idle = append(p.idle, conn)
		p.mu.Unlock()
	}
}

// finishCloseIfDrained completes the Closing -> Closed transition once no
// connection remains anywhere.
func (p *Pool) finishCloseIfDrained() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == poolClosing && len(p.idle) == 0 && len(p.used) == 0 && p.opening == 0 {
		p.state = poolClosed
		close(p.closedCh)
	}
}
