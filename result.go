package stonebed

import (
	"sync/atomic"
)

// ResultHandle wraps one pending native result set. Exactly one handle
// exists per native result pointer, and the session that produced it is the
// only valid releaser.
type ResultHandle struct {
	session *Session
	ptr     NativeResult
	ncols   int
	nrows   int64
	cleaned int32
}

// RowCount returns the number of rows in the result set.
func (rh *ResultHandle) RowCount() int64 {
	return rh.nrows
}

// ColumnCount returns the number of columns in the result set.
func (rh *ResultHandle) ColumnCount() int {
	return rh.ncols
}

// Cleanup releases the native result. Calling it again, on a nil handle, or
// after the owning session lost the connection is a no-op.
func (rh *ResultHandle) Cleanup() error {
	if rh == nil || rh.ptr == 0 {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&rh.cleaned, 0, 1) {
		return nil
	}

	s := rh.session
	err := s.registry.runActive(s, func() error {
		if code := s.engine.CleanupResult(s.handle, rh.ptr); code != StatusOK {
			return s.operr(code)
		}
		return nil
	})
	if err == ErrSessionClosed {
		// The native result died with the connection; nothing to release.
		return nil
	}
	return err
}

// Column materializes one column of the result set.
func (rh *ResultHandle) Column(index int) (*Column, error) {
	if rh == nil || atomic.LoadInt32(&rh.cleaned) != 0 {
		return nil, ErrResultCleaned
	}

	var col *Column
	s := rh.session
	err := s.registry.runActive(s, func() error {
		desc, code := s.engine.FetchColumn(rh.ptr, index)
		if code != StatusOK {
			return Errorf(ErrOperational, "failed to fetch column %d: %s", index, s.engine.Error(s.handle))
		}
		c, err := materializeColumn(rh, desc)
		if err != nil {
			return err
		}
		col = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return col, nil
}

// Columns materializes every column of the result set in order.
func (rh *ResultHandle) Columns() ([]*Column, error) {
	cols := make([]*Column, rh.ncols)
	for i := range cols {
		col, err := rh.Column(i)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	return cols, nil
}
