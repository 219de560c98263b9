package stonebed

import (
	"fmt"
	"sync/atomic"
	"time"
)

// PreparedStatement is an engine-side compiled query bound to the session
// that prepared it. Parameters are positional, bound by index. The statement
// must be closed through its owning session, exactly once; Close after the
// session lost the connection is a no-op.
type PreparedStatement struct {
	session *Session
	ptr     NativeStatement
	query   string
	closed  int32
}

// Prepare compiles sql into a prepared statement on this session.
func (s *Session) Prepare(sql string) (*PreparedStatement, error) {
	var st *PreparedStatement
	err := s.registry.run(s, func() error {
		ptr, code := s.engine.Prepare(s.handle, []byte(sql))
		if code != StatusOK {
			return s.operr(code)
		}
		st = &PreparedStatement{session: s, ptr: ptr, query: sql}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Query returns the statement's SQL text.
func (st *PreparedStatement) Query() string {
	return st.query
}

// BindValue binds a parameter at the given position, starting at 0. The
// value is marshalled to the engine's textual bind form.
func (st *PreparedStatement) BindValue(index int, value interface{}) error {
	if atomic.LoadInt32(&st.closed) != 0 {
		return ErrStatementClosed
	}

	s := st.session
	return s.registry.runActive(s, func() error {
		if code := s.engine.Bind(st.ptr, bindBytes(value), index); code != StatusOK {
			return s.operr(code)
		}
		return nil
	})
}

// Execute runs the statement with the currently bound parameters. When
// wantResult is true the caller must call Cleanup on the returned handle.
func (st *PreparedStatement) Execute(wantResult bool) (*ResultHandle, int64, error) {
	if atomic.LoadInt32(&st.closed) != 0 {
		return nil, 0, ErrStatementClosed
	}

	var rh *ResultHandle
	var affected int64
	s := st.session
	err := s.registry.runActive(s, func() error {
		ptr, n, code := s.engine.Execute(st.ptr, wantResult)
		if code != StatusOK {
			return s.operr(code)
		}
		affected = n
		if wantResult && ptr != 0 {
			rh = &ResultHandle{
				session: s,
				ptr:     ptr,
				ncols:   s.engine.ResultColumnCount(ptr),
				nrows:   s.engine.ResultRowCount(ptr),
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return rh, affected, nil
}

// Close releases the native statement through the owning session.
// Idempotent.
func (st *PreparedStatement) Close() error {
	if !atomic.CompareAndSwapInt32(&st.closed, 0, 1) {
		return nil
	}

	s := st.session
	err := s.registry.runActive(s, func() error {
		s.engine.CleanupStatement(s.handle, st.ptr)
		return nil
	})
	if err == ErrSessionClosed {
		// The native statement died with the connection.
		return nil
	}
	return err
}

// bindBytes marshals a Go value into the engine's textual bind form.
func bindBytes(value interface{}) []byte {
	switch v := value.(type) {
	case nil:
		return []byte("NULL")
	case []byte:
		return v
	case time.Time:
		return []byte(v.UTC().Format("2006-01-02 15:04:05.000000"))
	case Date:
		return []byte(v.Time().Format("2006-01-02"))
	case Timestamp:
		return []byte(v.Time().Format("2006-01-02 15:04:05.000000"))
	default:
		return []byte(fmt.Sprint(v))
	}
}
