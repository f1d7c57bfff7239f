package sqlitex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marcodd23/go-sqlite-bridge/pkg/errorx"
)

func newTestEngine(t *testing.T, cfg PoolConfig) (*Engine, *fakeRegistry) {
	t.Helper()

	pool, registry := newTestPool(t, cfg)

	return &Engine{dialect: SQLiteDialect, pool: pool, dsn: pool.cfg.DSN}, registry
}

// TestEngineDelegatesPoolProperties verifies that the engine exposes the
// dialect and the embedded pool's sizing unchanged.
func TestEngineDelegatesPoolProperties(t *testing.T) {
	engine, _ := newTestEngine(t, PoolConfig{
		DSN:            "engine.db",
		MinSize:        2,
		MaxSize:        4,
		AcquireTimeout: 5 * time.Second,
		Recycle:        RecycleNever,
	})
	defer engine.Terminate()

	require.Equal(t, SQLiteDialect, engine.Dialect())
	require.Equal(t, "sqlite", engine.Name())
	require.Equal(t, "sqlite3", engine.Driver())
	require.Equal(t, "engine.db", engine.DSN())
	require.Equal(t, 2, engine.MinSize())
	require.Equal(t, 4, engine.MaxSize())
	require.Equal(t, 5*time.Second, engine.AcquireTimeout())
	require.Equal(t, 2, engine.Size())
	require.Equal(t, 2, engine.FreeSize())
	require.False(t, engine.Closed())
}

// TestEngineAcquireReleaseRoundTrip verifies the basic checkout cycle
// through the engine surface.
func TestEngineAcquireReleaseRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t, PoolConfig{MinSize: 1, MaxSize: 2, Recycle: RecycleNever})
	defer engine.Terminate()

	conn, err := engine.Acquire(context.Background())
	require.NoError(t, err)

	_, err = conn.Execute(context.Background(), "INSERT INTO t VALUES (1)")
	require.NoError(t, err)

	require.NoError(t, engine.Release(conn))
	require.Equal(t, 1, engine.FreeSize())
}

// TestEngineReleaseInTransactionFails verifies that the engine's own
// boundary rejects a mid-transaction release before the pool is even asked.
func TestEngineReleaseInTransactionFails(t *testing.T) {
	engine, _ := newTestEngine(t, PoolConfig{MinSize: 1, MaxSize: 1, Recycle: RecycleNever})
	defer engine.Terminate()

	conn, err := engine.Acquire(context.Background())
	require.NoError(t, err)

	_, err = conn.Execute(context.Background(), "BEGIN")
	require.NoError(t, err)

	err = engine.Release(conn)
	require.True(t, errorx.IsInvalidState(err))

	require.NoError(t, conn.Commit(context.Background()))
	require.NoError(t, engine.Release(conn))
}

// TestEngineAcquireScopedRoundTrip verifies the scoped form over the engine.
func TestEngineAcquireScopedRoundTrip(t *testing.T) {
	engine, fake := newTestEngine(t, PoolConfig{MinSize: 1, MaxSize: 1, Recycle: RecycleNever})
	defer engine.Terminate()

	err := engine.AcquireScoped().With(context.Background(), func(conn *Conn) error {
		_, execErr := conn.Execute(context.Background(), "SCOPED")
		return execErr
	})
	require.NoError(t, err)
	require.Equal(t, 1, engine.FreeSize())
	require.Equal(t, []string{"SCOPED"}, fake.conns[0].executed())
}

// TestEngineCloseThenWaitClosed verifies the engine teardown walk.
func TestEngineCloseThenWaitClosed(t *testing.T) {
	engine, registry := newTestEngine(t, PoolConfig{MinSize: 2, MaxSize: 2, Recycle: RecycleNever})

	engine.Close()
	require.True(t, engine.Closed())

	_, err := engine.Acquire(context.Background())
	require.True(t, errorx.IsClosed(err))

	require.NoError(t, engine.WaitClosed(context.Background()))
	require.True(t, registry.allClosed())
}

// TestEngineReleaseDuringTeardownClosesConn verifies that a checkout handed
// back after Close is closed rather than rejected, even mid-transaction.
func TestEngineReleaseDuringTeardownClosesConn(t *testing.T) {
	engine, _ := newTestEngine(t, PoolConfig{MinSize: 1, MaxSize: 1, Recycle: RecycleNever})

	conn, err := engine.Acquire(context.Background())
	require.NoError(t, err)

	_, err = conn.Execute(context.Background(), "BEGIN")
	require.NoError(t, err)

	engine.Close()

	require.NoError(t, engine.Release(conn))
	require.NoError(t, engine.WaitClosed(context.Background()))
	require.True(t, conn.Closed())
}
