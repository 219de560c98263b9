package stonebed

import (
	"fmt"
	"iter"
	"log/slog"

	"github.com/google/uuid"
)

type sessionState int

const (
	stateUnopened sessionState = iota
	stateActive
	stateClosed
)

// Session is one logical connection to the engine. Any number of sessions
// may exist; the registry guarantees only one holds the native handle, and
// every operation switches the handle to its own session first.
//
// Sessions are not reclaimed implicitly: forgetting Close is a caller bug.
type Session struct {
	id       uuid.UUID
	engine   Engine
	registry *Registry
	log      *slog.Logger
	cfg      Config

	// handle and state are guarded by the registry lock.
	handle Handle
	state  sessionState
}

// NewSession creates a session and immediately makes it the active one,
// superseding any previously active session.
func NewSession(engine Engine, opts ...SessionOption) (*Session, error) {
	s := &Session{
		id:       uuid.New(),
		engine:   engine,
		registry: DefaultRegistry,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.registry.run(s, func() error { return nil }); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the session's identity, used in logs and registry bookkeeping.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// openLocked opens the native connection. Called only under the registry
// lock, with no other session active.
func (s *Session) openLocked() error {
	h, code := s.engine.Open(s.cfg.Path, s.cfg.options())
	if code != StatusOK {
		var msg string
		if code == StatusEngine {
			// The engine allocated a partial handle; take its error text
			// and close it before propagating.
			msg = s.engine.Error(h)
			s.engine.Close(h)
		} else if text, ok := openErrors[code]; ok {
			msg = text
		} else {
			msg = "unknown error"
		}
		return &Error{
			Type:    ErrOperational,
			Message: fmt.Sprintf("failed to open database: %s (code %d)", msg, code),
			Code:    code,
		}
	}

	s.handle = h
	s.state = stateActive
	s.log.Debug("session opened", "session", s.id, "path", s.cfg.Path)
	return nil
}

// Switch makes this session the active one, closing whatever session held
// the handle before. No-op if this session is already active.
func (s *Session) Switch() error {
	return s.registry.run(s, func() error { return nil })
}

// Close releases the native handle if this session holds it. Idempotent.
func (s *Session) Close() error {
	return s.registry.close(s)
}

// operr wraps a non-zero engine status into an operational error carrying
// the engine's latest error string.
func (s *Session) operr(code int) error {
	return &Error{Type: ErrOperational, Message: s.engine.Error(s.handle), Code: code}
}

// Query executes sql. When wantResult is true the returned ResultHandle is
// non-nil and the caller must call Cleanup on it; otherwise only the
// affected-row count is returned.
func (s *Session) Query(sql string, wantResult bool) (*ResultHandle, int64, error) {
	var rh *ResultHandle
	var affected int64

	err := s.registry.run(s, func() error {
		ptr, n, code := s.engine.Query(s.handle, []byte(sql), wantResult)
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

// Exec executes sql without materializing a result set.
func (s *Session) Exec(sql string) (int64, error) {
	_, affected, err := s.Query(sql, false)
	return affected, err
}

// SetAutocommit switches autocommit on or off.
func (s *Session) SetAutocommit(value bool) error {
	return s.registry.run(s, func() error {
		if code := s.engine.SetAutocommit(s.handle, value); code != StatusOK {
			return s.operr(code)
		}
		return nil
	})
}

// Autocommit reports the current autocommit setting.
func (s *Session) Autocommit() (bool, error) {
	var value bool
	err := s.registry.run(s, func() error {
		v, code := s.engine.GetAutocommit(s.handle)
		if code != StatusOK {
			return s.operr(code)
		}
		value = v
		return nil
	})
	return value, err
}

// InTransaction reports whether the session has an open transaction.
func (s *Session) InTransaction() (bool, error) {
	var value bool
	err := s.registry.run(s, func() error {
		value = s.engine.InTransaction(s.handle)
		return nil
	})
	return value, err
}

// Columns returns the (name, declared type) pairs of a table in the
// engine's column order. The sequence is finite and single-use; it is
// fetched fresh on every call so append validation never sees stale schema.
func (s *Session) Columns(schema, table string) (iter.Seq2[string, Type], error) {
	var meta []ColumnMeta
	err := s.registry.run(s, func() error {
		var code int
		meta, code = s.engine.GetColumns(s.handle, []byte(schema), []byte(table))
		if code != StatusOK {
			return s.operr(code)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	next := 0
	return func(yield func(string, Type) bool) {
		for ; next < len(meta); next++ {
			if !yield(meta[next].Name, meta[next].Type) {
				next++
				return
			}
		}
	}, nil
}

// DumpDatabase writes a backup of the whole database to path.
func (s *Session) DumpDatabase(path string) error {
	return s.registry.run(s, func() error {
		if code := s.engine.DumpDatabase(s.handle, []byte(path)); code != StatusOK {
			return s.operr(code)
		}
		return nil
	})
}

// DumpTable writes a backup of one table to path.
func (s *Session) DumpTable(schema, table, path string) error {
	return s.registry.run(s, func() error {
		if code := s.engine.DumpTable(s.handle, []byte(schema), []byte(table), []byte(path)); code != StatusOK {
			return s.operr(code)
		}
		return nil
	})
}
