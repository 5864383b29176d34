// Package session tracks the active instructional session per context
// (a room or camera feed) so presence records can be attributed to the right
// subject and time bucket without callers passing schedule data around.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrAlreadyActive is returned when starting a session while a different one
// is active in the same context. Operator error; surfaced, never retried.
var ErrAlreadyActive = errors.New("a different session is already active")

// ErrNoActiveSession is returned when an operation requires an active session.
var ErrNoActiveSession = errors.New("no active session")

// DayKeyFormat is the calendar-date bucket format used across the system.
const DayKeyFormat = "2006-01-02"

// DayKey returns the calendar date bucket for a timestamp.
func DayKey(t time.Time) string {
	return t.Format(DayKeyFormat)
}

// Session is a scheduled instructional window presence is attributed to.
type Session struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	DayKey      string    `json:"day_key"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// contextState holds the per-context state machine: Idle <-> Active.
// Each context carries its own lock so unrelated rooms never block each other.
type contextState struct {
	mu     sync.Mutex
	active *Session
}

// Registry owns session lifecycle across contexts.
type Registry struct {
	mu       sync.RWMutex
	contexts map[string]*contextState
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{contexts: make(map[string]*contextState)}
}

func (r *Registry) state(context string) *contextState {
	r.mu.RLock()
	cs, ok := r.contexts[context]
	r.mu.RUnlock()
	if ok {
		return cs
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cs, ok = r.contexts[context]; ok {
		return cs
	}
	cs = &contextState{}
	r.contexts[context] = cs
	return cs
}

// Start transitions a context from Idle to Active with the given session.
// Starting the session that is already active is a no-op; starting while a
// different session is active fails with ErrAlreadyActive.
func (r *Registry) Start(context string, s Session) error {
	if s.ID == "" {
		return errors.New("session ID is required")
	}
	if s.DayKey == "" {
		s.DayKey = DayKey(s.WindowStart)
	}

	cs := r.state(context)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.active != nil {
		if cs.active.ID == s.ID {
			return nil
		}
		return fmt.Errorf("%w: context %s is running session %s (%s)",
			ErrAlreadyActive, context, cs.active.ID, cs.active.Subject)
	}

	stored := s
	cs.active = &stored
	return nil
}

// Stop transitions a context back to Idle and returns the session that was
// active. Returns ErrNoActiveSession if the context is already idle.
func (r *Registry) Stop(context string) (*Session, error) {
	cs := r.state(context)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.active == nil {
		return nil, fmt.Errorf("%w in context %s", ErrNoActiveSession, context)
	}
	stopped := *cs.active
	cs.active = nil
	return &stopped, nil
}

// Current returns the active session for a context, or nil when idle.
// Pure read.
func (r *Registry) Current(context string) *Session {
	cs := r.state(context)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.active == nil {
		return nil
	}
	out := *cs.active
	return &out
}

// Contexts returns the names of all contexts the registry has seen.
func (r *Registry) Contexts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.contexts))
	for name := range r.contexts {
		out = append(out, name)
	}
	return out
}
