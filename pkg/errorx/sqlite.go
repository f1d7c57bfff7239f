package errorx

import (
	"database/sql/driver"
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// MapDriverError translates an error raised by the raw SQLite driver into a
// *DriverError carrying the matching DriverKind. Errors that already belong
// to this package's taxonomy pass through untouched, so a mapped error is
// never wrapped twice on its way up through bridge and pool.
func MapDriverError(err error) error {
	if err == nil {
		return nil
	}

	var (
		closedErr  *ClosedError
		timeoutErr *TimeoutError
		stateErr   *InvalidStateError
		driverErr  *DriverError
	)
	if errors.As(err, &closedErr) || errors.As(err, &timeoutErr) ||
		errors.As(err, &stateErr) || errors.As(err, &driverErr) {
		return err
	}

	if errors.Is(err, driver.ErrSkip) {
		return NewDriverErrorWrapper(KindNotSupported, err, "feature not implemented by the sqlite driver")
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return NewDriverErrorWrapper(classifySQLite(sqliteErr), err, "sqlite call failed")
	}

	return NewDriverErrorWrapper(KindOperational, err, "sqlite call failed")
}

// classifySQLite maps a sqlite3 primary result code onto a DriverKind,
// mirroring how the synchronous sqlite bindings classify their exceptions.
func classifySQLite(err sqlite3.Error) DriverKind {
	switch err.Code {
	case sqlite3.ErrConstraint:
		return KindIntegrity
	case sqlite3.ErrMisuse, sqlite3.ErrRange:
		return KindProgramming
	case sqlite3.ErrNoLFS:
		return KindNotSupported
	default:
		return KindOperational
	}
}

// IsClosed reports whether err is (or wraps) a ClosedError.
func IsClosed(err error) bool {
	var target *ClosedError
	return errors.As(err, &target)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// IsInvalidState reports whether err is (or wraps) an InvalidStateError.
func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

// AsDriverError unwraps err into a *DriverError when possible.
func AsDriverError(err error) (*DriverError, bool) {
	var target *DriverError
	if errors.As(err, &target) {
		return target, true
	}

	return nil, false
}
