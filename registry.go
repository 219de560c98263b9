package stonebed

import (
	"sync"
)

// Registry owns the single live native connection. At most one Session holds
// the handle at a time; every session operation runs its
// check-active / switch / engine-call sequence under the registry lock, so
// the single-connection invariant holds even with multiple sessions on
// multiple goroutines.
type Registry struct {
	mu            sync.Mutex
	active        *Session
	inMemoryInUse bool
}

// DefaultRegistry is the process-wide registry sessions attach to unless
// WithRegistry says otherwise.
var DefaultRegistry = &Registry{}

// NewRegistry creates an isolated registry, useful when a host embeds more
// than one engine library instance.
func NewRegistry() *Registry {
	return &Registry{}
}

// run executes fn with s as the active session, switching first if needed.
func (r *Registry) run(s *Session, fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.activateLocked(s); err != nil {
		return err
	}
	return fn()
}

// runActive executes fn only if s is already the active session. Used for
// operations bound to live native pointers (results, statements) that a
// switch would invalidate.
func (r *Registry) runActive(s *Session, fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != s || s.state != stateActive {
		return ErrSessionClosed
	}
	return fn()
}

// activateLocked makes s the active session, closing whatever was active
// before. No-op when s already holds the handle.
func (r *Registry) activateLocked(s *Session) error {
	if r.active == s && s.state == stateActive {
		return nil
	}

	if r.active != nil {
		if err := r.closeActiveLocked(); err != nil {
			return err
		}
	}

	if err := s.openLocked(); err != nil {
		return err
	}
	r.active = s
	return nil
}

// closeActiveLocked releases the active session's native handle.
func (r *Registry) closeActiveLocked() error {
	s := r.active

	code := s.engine.Close(s.handle)
	s.handle = 0
	s.state = stateClosed
	r.active = nil

	// In-memory state cannot be guaranteed released by the engine, so the
	// slot stays occupied no matter how the close went.
	if s.cfg.Path == "" {
		r.inMemoryInUse = true
	}

	if code != StatusOK {
		return &Error{Type: ErrOperational, Message: "failed to close database", Code: code}
	}

	s.log.Debug("session closed", "session", s.id)
	return nil
}

// close closes s. If s is not the active session there is no native handle
// to release and only its state changes.
func (r *Registry) close(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == s {
		return r.closeActiveLocked()
	}

	if s.state == stateClosed {
		return nil
	}
	s.state = stateClosed
	if s.cfg.Path == "" {
		r.inMemoryInUse = true
	}
	return nil
}

// ActiveSession returns the session currently holding the native handle, or
// nil.
func (r *Registry) ActiveSession() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// InMemoryOccupied reports whether an in-memory database has been opened and
// closed, leaving engine-side state that cannot be reclaimed.
func (r *Registry) InMemoryOccupied() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inMemoryInUse
}
