package sqlitex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/marcodd23/go-sqlite-bridge/pkg/errorx"
	"github.com/marcodd23/go-sqlite-bridge/pkg/logx"
)

// Dialect identifies the SQL dialect and driver behind an Engine. It is an
// explicit configuration value; there is no process-wide mutable default.
type Dialect struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

// SQLiteDialect - the dialect this module serves.
var SQLiteDialect = Dialect{Name: "sqlite", Driver: "sqlite3"}

// EngineConfig - construction parameters for an Engine.
type EngineConfig struct {
	Pool PoolConfig
	// Dialect defaults to SQLiteDialect when left zero.
	Dialect Dialect
}

// Engine connects a Pool and a Dialect together as one source of database
// connectivity. It consumes the pool strictly through its public
// acquire/release contract, adding only the invariant check that a
// connection mid-transaction can never be returned.
type Engine struct {
	dialect Dialect
	pool    *Pool
	dsn     string
}

// NewEngine builds an Engine with an embedded connection pool of MinSize
// pre-opened connections.
func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	if cfg.Dialect == (Dialect{}) {
		cfg.Dialect = SQLiteDialect
	}

	pool, err := NewPool(ctx, cfg.Pool)
	if err != nil {
		return nil, err
	}

	if summary, jsonErr := json.Marshal(cfg.Dialect); jsonErr == nil {
		logx.GetLogger().LogDebug(ctx, fmt.Sprintf("engine ready: dialect=%s dsn=%q", summary, cfg.Pool.DSN))
	}

	return &Engine{dialect: cfg.Dialect, pool: pool, dsn: cfg.Pool.DSN}, nil
}

// WithEngine builds an Engine, runs fn, then closes the engine and waits for
// full teardown regardless of how fn exits. A teardown failure never masks
// the body error; both are reported, body first.
func WithEngine(ctx context.Context, cfg EngineConfig, fn func(*Engine) error) error {
	engine, err := NewEngine(ctx, cfg)
	if err != nil {
		return err
	}

	return func() (err error) {
		defer func() {
			engine.Close()

			if waitErr := engine.WaitClosed(ctx); waitErr != nil {
				err = errors.Join(err, waitErr)
			}
		}()

		return fn(engine)
	}()
}

// Dialect - the engine's dialect value.
func (e *Engine) Dialect() Dialect {
	return e.dialect
}

// Name - the dialect name.
func (e *Engine) Name() string {
	return e.dialect.Name
}

// Driver - the dialect driver identifier.
func (e *Engine) Driver() string {
	return e.dialect.Driver
}

// DSN - connection info the pool dials with.
func (e *Engine) DSN() string {
	return e.dsn
}

// MinSize - delegated pool property.
func (e *Engine) MinSize() int {
	return e.pool.MinSize()
}

// MaxSize - delegated pool property.
func (e *Engine) MaxSize() int {
	return e.pool.MaxSize()
}

// AcquireTimeout - delegated pool property.
func (e *Engine) AcquireTimeout() time.Duration {
	return e.pool.AcquireTimeout()
}

// Size - delegated pool property.
func (e *Engine) Size() int {
	return e.pool.Size()
}

// FreeSize - delegated pool property.
func (e *Engine) FreeSize() int {
	return e.pool.FreeSize()
}

// Closed - delegated pool property.
func (e *Engine) Closed() bool {
	return e.pool.Closed()
}

// Acquire gets a connection from the embedded pool.
func (e *Engine) Acquire(ctx context.Context) (*Conn, error) {
	return e.pool.Acquire(ctx)
}

// Release reverts a connection back to the pool. A connection holding an
// unfinished transaction is rejected here, before any pool bookkeeping
// mutates.
func (e *Engine) Release(conn *Conn) error {
	if conn != nil && conn.InTransaction() && !e.pool.Closed() {
		return errorx.NewInvalidStateError("cannot release connection %s with an unfinished transaction", conn.ID())
	}

	return e.pool.Release(conn)
}

// AcquireScoped wraps a pending engine acquire for either direct resolution
// or scoped consumption with guaranteed release.
func (e *Engine) AcquireScoped() *Acquisition {
	return newAcquisition(e.Acquire, e.Release)
}

// Close marks the engine's pool non-acquiring; connections already checked
// out finish their work first.
func (e *Engine) Close() {
	e.pool.Close()
}

// Terminate force-closes every pool connection, including acquired ones.
func (e *Engine) Terminate() {
	e.pool.Terminate()
}

// WaitClosed blocks until all engine connections are closed.
func (e *Engine) WaitClosed(ctx context.Context) error {
	return e.pool.WaitClosed(ctx)
}
