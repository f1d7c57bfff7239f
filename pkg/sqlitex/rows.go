package sqlitex

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"sync/atomic"

	"github.com/marcodd23/go-sqlite-bridge/pkg/errorx"
)

// Row - one result row.
type Row []any

// Rows is a lazy, single-pass cursor over a query executed on a Conn. Every
// fetch is itself an operation on the owning connection's worker, so the raw
// cursor is only ever touched by the goroutine that owns the handle.
type Rows struct {
	conn   *Conn
	raw    driver.Rows
	cols   []string
	closed atomic.Bool
}

// Columns - the result column names, in select order.
func (r *Rows) Columns() []string {
	out := make([]string, len(r.cols))
	copy(out, r.cols)

	return out
}

// Next fetches the next row. It returns (nil, nil) once the cursor is
// exhausted.
func (r *Rows) Next(ctx context.Context) (Row, error) {
	if r.closed.Load() {
		return nil, errorx.NewInvalidStateError("cursor is already closed")
	}

	value, err := r.conn.submit(ctx, func() (any, error) {
		dest := make([]driver.Value, len(r.cols))

		if err := r.raw.Next(dest); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}

			return nil, err
		}

		row := make(Row, len(dest))
		for i, v := range dest {
			row[i] = normalizeValue(v)
		}

		return row, nil
	})
	if err != nil {
		return nil, err
	}

	if value == nil {
		return nil, nil
	}

	return value.(Row), nil
}

// All drains the remaining rows and closes the cursor.
func (r *Rows) All(ctx context.Context) ([]Row, error) {
	var out []Row

	for {
		row, err := r.Next(ctx)
		if err != nil {
			_ = r.Close(ctx)
			return nil, err
		}

		if row == nil {
			break
		}

		out = append(out, row)
	}

	if err := r.Close(ctx); err != nil {
		return nil, err
	}

	return out, nil
}

// Close releases the raw cursor. Safe to call more than once. Closing a
// cursor whose connection is already gone is not an error; the cursor died
// with the handle.
func (r *Rows) Close(ctx context.Context) error {
	if r.closed.Swap(true) {
		return nil
	}

	_, err := r.conn.submit(ctx, func() (any, error) {
		return nil, r.raw.Close()
	})
	if err != nil && errorx.IsClosed(err) {
		return nil
	}

	return err
}

// normalizeValue copies driver-owned byte slices, which the driver may reuse
// for the next fetch.
func normalizeValue(v driver.Value) any {
	if b, ok := v.([]byte); ok {
		out := make([]byte, len(b))
		copy(out, b)

		return out
	}

	return v
}
