package sqlitex

import (
	"database/sql/driver"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/marcodd23/go-sqlite-bridge/pkg/errorx"
)

// rawConn is the subset of the blocking sqlite driver connection that the
// bridge worker drives. *sqlite3.SQLiteConn satisfies it. The handle behind
// this interface is not safe for concurrent use; only the owning worker
// goroutine may call it.
type rawConn interface {
	Exec(query string, args []driver.Value) (driver.Result, error)
	Query(query string, args []driver.Value) (driver.Rows, error)
	AutoCommit() bool
	Close() error
}

// dialFunc opens one raw blocking handle for the given DSN.
type dialFunc func(dsn string) (rawConn, error)

// sqliteDial opens a raw sqlite3 connection, bypassing database/sql so the
// bridge gets exclusive ownership of a single handle. The DSN is passed
// through to the driver untouched (":memory:", file paths and file: URIs all
// work).
func sqliteDial(dsn string) (rawConn, error) {
	drv := &sqlite3.SQLiteDriver{}

	ci, err := drv.Open(dsn)
	if err != nil {
		return nil, errorx.MapDriverError(err)
	}

	conn, ok := ci.(*sqlite3.SQLiteConn)
	if !ok {
		_ = ci.Close()
		return nil, errorx.NewDriverError(errorx.KindOperational, "unexpected driver connection type %T", ci)
	}

	return conn, nil
}

// toDriverValues converts caller arguments into driver values, rejecting
// anything the driver cannot bind.
func toDriverValues(args []any) ([]driver.Value, error) {
	if len(args) == 0 {
		return nil, nil
	}

	out := make([]driver.Value, len(args))

	for i, arg := range args {
		value, err := driver.DefaultParameterConverter.ConvertValue(arg)
		if err != nil {
			return nil, errorx.NewDriverErrorWrapper(errorx.KindProgramming, err, "argument %d cannot be bound", i)
		}

		out[i] = value
	}

	return out, nil
}
