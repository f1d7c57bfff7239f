package sqlitex

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/marcodd23/go-sqlite-bridge/pkg/errorx"
)

// Acquisition wraps one pending acquire so it can be consumed either as a
// plainly resolved value (the caller releases manually) or as a scoped call
// that guarantees release on every exit path. However many times it is
// observed, the underlying acquire runs at most once.
type Acquisition struct {
	acquire func(context.Context) (*Conn, error)
	release func(*Conn) error

	once     sync.Once
	conn     *Conn
	err      error
	resolved atomic.Bool
	released atomic.Bool
	scoped   atomic.Bool
}

func newAcquisition(acquire func(context.Context) (*Conn, error), release func(*Conn) error) *Acquisition {
	return &Acquisition{acquire: acquire, release: release}
}

// Resolve performs the acquire on first call and returns its result; later
// calls return the same connection and error without acquiring again.
func (a *Acquisition) Resolve(ctx context.Context) (*Conn, error) {
	a.once.Do(func() {
		a.conn, a.err = a.acquire(ctx)
		a.resolved.Store(true)
	})

	return a.conn, a.err
}

// Release returns the resolved connection, exactly once. Releasing an
// acquisition that never resolved a connection fails loudly instead of
// silently proceeding with a partially initialized resource.
func (a *Acquisition) Release() error {
	if !a.resolved.Load() || a.conn == nil {
		return errorx.NewInvalidStateError("acquisition holds no connection; call Resolve or With first")
	}

	if a.released.Swap(true) {
		return errorx.NewInvalidStateError("acquisition already released")
	}

	return a.release(a.conn)
}

// With resolves the acquisition, runs fn with the connection and always
// attempts exactly one release — on normal return, error and panic alike.
// A release failure is surfaced but never masks the body error: both are
// reported, body first.
func (a *Acquisition) With(ctx context.Context, fn func(*Conn) error) error {
	if a.scoped.Swap(true) {
		return errorx.NewInvalidStateError("acquisition already consumed as a scoped block")
	}

	conn, err := a.Resolve(ctx)
	if err != nil {
		return err
	}

	return func() (err error) {
		defer func() {
			if relErr := a.Release(); relErr != nil {
				err = errors.Join(err, relErr)
			}
		}()

		return fn(conn)
	}()
}
