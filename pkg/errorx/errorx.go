package errorx

import (
	"fmt"
)

// CLOSED ERROR:

// ClosedError - operation attempted on a closed or closing Conn, Pool or Engine.
type ClosedError struct {
	message string
	err     error
}

// NewClosedError - ClosedError constructor.
func NewClosedError(msg string, args ...any) *ClosedError {
	return &ClosedError{message: fmt.Sprintf(msg, args...), err: nil}
}

// NewClosedErrorWrapper - ClosedError constructor for wrapper of another error.
func NewClosedErrorWrapper(err error, msg string, args ...any) *ClosedError {
	return &ClosedError{message: fmt.Sprintf(msg, args...), err: err}
}

// Error - return the error string.
func (ce *ClosedError) Error() string {
	if ce.err != nil {
		return fmt.Errorf("%s: %w", ce.message, ce.err).Error()
	}

	return ce.message
}

// Unwrap - return the wrapped error, if any.
func (ce *ClosedError) Unwrap() error {
	return ce.err
}

// TIMEOUT ERROR:

// TimeoutError - acquisition exceeded the configured wait.
type TimeoutError struct {
	message string
	err     error
}

// NewTimeoutError - TimeoutError constructor.
func NewTimeoutError(msg string, args ...any) *TimeoutError {
	return &TimeoutError{message: fmt.Sprintf(msg, args...), err: nil}
}

// NewTimeoutErrorWrapper - TimeoutError constructor for wrapper of another error.
func NewTimeoutErrorWrapper(err error, msg string, args ...any) *TimeoutError {
	return &TimeoutError{message: fmt.Sprintf(msg, args...), err: err}
}

// Error - return the error string.
func (te *TimeoutError) Error() string {
	if te.err != nil {
		return fmt.Errorf("%s: %w", te.message, te.err).Error()
	}

	return te.message
}

// Unwrap - return the wrapped error, if any.
func (te *TimeoutError) Unwrap() error {
	return te.err
}

// INVALID STATE ERROR:

// InvalidStateError - a resource was used in a way its current state forbids,
// for example releasing a connection with an unfinished transaction, or
// consuming a scoped acquisition twice.
type InvalidStateError struct {
	message string
	err     error
}

// NewInvalidStateError - InvalidStateError constructor.
func NewInvalidStateError(msg string, args ...any) *InvalidStateError {
	return &InvalidStateError{message: fmt.Sprintf(msg, args...), err: nil}
}

// NewInvalidStateErrorWrapper - InvalidStateError constructor for wrapper of another error.
func NewInvalidStateErrorWrapper(err error, msg string, args ...any) *InvalidStateError {
	return &InvalidStateError{message: fmt.Sprintf(msg, args...), err: err}
}

// Error - return the error string.
func (ie *InvalidStateError) Error() string {
	if ie.err != nil {
		return fmt.Errorf("%s: %w", ie.message, ie.err).Error()
	}

	return ie.message
}

// Unwrap - return the wrapped error, if any.
func (ie *InvalidStateError) Unwrap() error {
	return ie.err
}

// DRIVER ERROR:

// DriverKind classifies a DriverError the same way the underlying driver
// classifies its own failures, instead of collapsing everything into one
// generic kind.
type DriverKind int

const (
	// KindOperational - runtime failures outside the caller's control: busy or
	// locked database, I/O errors, statements rejected at execution time.
	KindOperational DriverKind = iota
	// KindIntegrity - constraint violations (UNIQUE, NOT NULL, FOREIGN KEY, CHECK).
	KindIntegrity
	// KindProgramming - API misuse: wrong bind parameter count, use after close.
	KindProgramming
	// KindNotSupported - the driver does not implement the requested feature.
	KindNotSupported
)

// String - human readable kind label.
func (k DriverKind) String() string {
	switch k {
	case KindIntegrity:
		return "integrity"
	case KindProgramming:
		return "programming"
	case KindNotSupported:
		return "not supported"
	default:
		return "operational"
	}
}

// DriverError - failure surfaced by the underlying synchronous database
// calls, preserved with its original classification.
type DriverError struct {
	kind    DriverKind
	message string
	err     error
}

// NewDriverError - DriverError constructor.
func NewDriverError(kind DriverKind, msg string, args ...any) *DriverError {
	return &DriverError{kind: kind, message: fmt.Sprintf(msg, args...), err: nil}
}

// NewDriverErrorWrapper - DriverError constructor for wrapper of another error.
func NewDriverErrorWrapper(kind DriverKind, err error, msg string, args ...any) *DriverError {
	return &DriverError{kind: kind, message: fmt.Sprintf(msg, args...), err: err}
}

// Kind - the preserved driver classification.
func (de *DriverError) Kind() DriverKind {
	return de.kind
}

// Error - return the error string.
func (de *DriverError) Error() string {
	if de.err != nil {
		return fmt.Errorf("%s driver error # %s: %w", de.kind, de.message, de.err).Error()
	}

	return fmt.Sprintf("%s driver error # %s", de.kind, de.message)
}

// Unwrap - return the wrapped error, if any.
func (de *DriverError) Unwrap() error {
	return de.err
}
