// Package session owns the generation-session lifecycle. The Machine is the
// single authority on session state: every other component asks it whether
// the session can receive chunks before acting, and nothing mutates session
// state except through SetState.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spoolworks/spool/pkg/dedupe"
)

var (
	// ErrInvalidTransition is returned when the requested transition is not
	// in the legal transition table. The session state is left unchanged.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrDuplicateTransition is returned when an identical transition was
	// recently observed and suppressed by the dedup cache.
	ErrDuplicateTransition = errors.New("duplicate state transition")
)

// Session is the value describing one generation request/response cycle.
// Exactly one session exists at a time; it is created on entering
// StateStarting and destroyed on returning to StateIdle.
type Session struct {
	ID                 string
	State              State
	StartedAt          time.Time
	LastStateChangeAt  time.Time
	TerminationReasons []string
}

// ChangeFunc is notified after every successful transition so dependent
// components can resynchronize derived state.
type ChangeFunc func(from, to State, reason string)

// Machine validates and applies session state transitions.
type Machine struct {
	sess     Session
	dedupe   *dedupe.Cache
	onChange ChangeFunc
	now      func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithDedupe attaches a dedup cache used to suppress duplicate adjacent
// transitions.
func WithDedupe(c *dedupe.Cache) Option {
	return func(m *Machine) { m.dedupe = c }
}

// WithChangeFunc registers the state-changed notification callback.
func WithChangeFunc(fn ChangeFunc) Option {
	return func(m *Machine) { m.onChange = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine creates a Machine in StateIdle.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		sess: Session{State: StateIdle},
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Session returns a copy of the current session value.
func (m *Machine) Session() Session {
	sess := m.sess
	sess.TerminationReasons = append([]string(nil), m.sess.TerminationReasons...)
	return sess
}

// State returns the current state.
func (m *Machine) State() State {
	return m.sess.State
}

// ID returns the current session id, empty outside of a session.
func (m *Machine) ID() string {
	return m.sess.ID
}

// IsActive reports whether a session is in flight.
func (m *Machine) IsActive() bool {
	switch m.sess.State {
	case StateStarting, StateActive, StateFinishing:
		return true
	default:
		return false
	}
}

// CanReceiveChunks reports whether inbound chunks should be accepted.
// Chunks arriving outside of these states are late stragglers and are
// silently dropped by the caller.
func (m *Machine) CanReceiveChunks() bool {
	return m.sess.State == StateStarting || m.sess.State == StateActive
}

// SetState attempts the transition to the given state. The reason is
// recorded in the session's termination reasons when entering
// StateFinishing or StateError.
//
// Illegal transitions and recently duplicated transitions are rejected
// without mutating anything.
func (m *Machine) SetState(to State, reason string) error {
	from := m.sess.State

	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	if m.isDuplicate(from, to, reason) {
		return fmt.Errorf("%w: %s -> %s", ErrDuplicateTransition, from, to)
	}

	now := m.now()
	m.sess.State = to
	m.sess.LastStateChangeAt = now

	switch to {
	case StateStarting:
		m.sess.ID = uuid.NewString()
		m.sess.StartedAt = now
		m.sess.TerminationReasons = nil
	case StateFinishing, StateError:
		if reason != "" {
			m.sess.TerminationReasons = append(m.sess.TerminationReasons, reason)
		}
	case StateIdle:
		m.sess = Session{State: StateIdle, LastStateChangeAt: now}
	}

	if m.onChange != nil {
		m.onChange(from, to, reason)
	}

	return nil
}

// isDuplicate consults the dedup cache for an identical recent transition.
// Transitions into StateStarting are never deduplicated: consecutive
// sessions legitimately repeat IDLE -> STARTING within the TTL window, and
// the new session id does not exist yet.
func (m *Machine) isDuplicate(from, to State, reason string) bool {
	if m.dedupe == nil || to == StateStarting || m.sess.ID == "" {
		return false
	}

	transition := from.String() + "->" + to.String() + ":" + reason

	return !m.dedupe.ShouldProcess(m.sess.ID+"_state_transition", to.String(), transition)
}
