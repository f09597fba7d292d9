// Package session owns the focus session lifecycle: the idle → working →
// break state machine, its on-disk status, and the control file other
// focuspet invocations use to steer a running session.
package session

import (
	"errors"
	"fmt"
)

// DefaultWorkSeconds is the standard work phase length.
const DefaultWorkSeconds = 25 * 60

var (
	ErrNotIdle        = errors.New("a session is already in progress")
	ErrNotRunning     = errors.New("no running countdown to pause")
	ErrNotPaused      = errors.New("session is not paused")
	ErrNoBreakPending = errors.New("no break is pending")
	ErrNoSessionID    = errors.New("session id is required")
)

// Event describes what a machine operation did.
type Event int

const (
	EventNone Event = iota
	EventStarted
	EventTicked
	EventPaused
	EventResumed
	EventWorkComplete
	EventBreakStarted
	EventBreakComplete
	EventReset
	EventDurationSet
)

var eventNames = map[Event]string{
	EventNone:          "none",
	EventStarted:       "started",
	EventTicked:        "ticked",
	EventPaused:        "paused",
	EventResumed:       "resumed",
	EventWorkComplete:  "work_complete",
	EventBreakStarted:  "break_started",
	EventBreakComplete: "break_complete",
	EventReset:         "reset",
	EventDurationSet:   "duration_set",
}

func (e Event) String() string {
	if s, ok := eventNames[e]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Machine is the session state machine. It performs no I/O; the
// orchestrator calls collaborators around its transitions. It is not safe
// for concurrent use.
type Machine struct {
	workSeconds int
	armed       int // countdown length the next Start will use

	phase        Phase
	paused       bool
	remaining    int
	duration     int
	session      *Session
	breakPending bool
}

// NewMachine returns an idle machine armed with workSeconds
// (DefaultWorkSeconds when workSeconds <= 0).
func NewMachine(workSeconds int) *Machine {
	if workSeconds <= 0 {
		workSeconds = DefaultWorkSeconds
	}
	m := &Machine{workSeconds: workSeconds}
	m.toIdle()
	return m
}

// Start moves Idle → Working for s, counting down from the armed duration.
func (m *Machine) Start(s Session) (Event, error) {
	if m.phase != PhaseIdle {
		return EventNone, ErrNotIdle
	}
	if s.ID == "" {
		return EventNone, ErrNoSessionID
	}
	m.phase = PhaseWorking
	m.session = &s
	m.duration = m.armed
	m.remaining = m.armed
	m.paused = false
	return EventStarted, nil
}

// Pause halts the countdown without changing phase.
func (m *Machine) Pause() (Event, error) {
	if !m.Running() {
		return EventNone, ErrNotRunning
	}
	m.paused = true
	return EventPaused, nil
}

// Resume restarts a paused countdown. Resuming a break does not request a
// new recommendation.
func (m *Machine) Resume() (Event, error) {
	if m.phase == PhaseIdle || !m.paused || m.breakPending {
		return EventNone, ErrNotPaused
	}
	m.paused = false
	return EventResumed, nil
}

// Tick advances the countdown by one second. It only decrements while
// Running; on reaching zero a work phase becomes break-pending and a break
// returns to Idle.
func (m *Machine) Tick() Event {
	if !m.Running() {
		return EventNone
	}
	m.remaining--
	if m.remaining > 0 {
		return EventTicked
	}
	m.remaining = 0
	switch m.phase {
	case PhaseWorking:
		m.breakPending = true
		return EventWorkComplete
	default:
		m.toIdle()
		return EventBreakComplete
	}
}

// EnterBreak applies the break duration after work completion. The break
// starts paused and must be resumed explicitly.
func (m *Machine) EnterBreak(seconds int) (Event, error) {
	if !m.breakPending {
		return EventNone, ErrNoBreakPending
	}
	if seconds <= 0 {
		return EventNone, fmt.Errorf("break duration must be positive, got %d", seconds)
	}
	m.breakPending = false
	m.phase = PhaseBreak
	m.duration = seconds
	m.remaining = seconds
	m.paused = true
	return EventBreakStarted, nil
}

// Reset returns to Idle from any state.
func (m *Machine) Reset() Event {
	m.toIdle()
	return EventReset
}

// SetDuration re-arms the countdown while Idle without starting a session.
func (m *Machine) SetDuration(seconds int) (Event, error) {
	if m.phase != PhaseIdle {
		return EventNone, ErrNotIdle
	}
	if seconds <= 0 {
		return EventNone, fmt.Errorf("duration must be positive, got %d", seconds)
	}
	m.armed = seconds
	m.duration = seconds
	m.remaining = seconds
	return EventDurationSet, nil
}

// Running reports whether a tick would decrement the countdown.
func (m *Machine) Running() bool {
	return (m.phase == PhaseWorking || m.phase == PhaseBreak) && !m.paused && !m.breakPending
}

// State returns a copy of the machine state.
func (m *Machine) State() State {
	st := State{
		Phase:        m.phase,
		Paused:       m.paused,
		Remaining:    m.remaining,
		Duration:     m.duration,
		BreakPending: m.breakPending,
	}
	if m.session != nil {
		s := *m.session
		st.Session = &s
	}
	return st
}

// Restore rehydrates a previously persisted state. A restored work or break
// phase is always paused; the countdown never resumes on its own.
func (m *Machine) Restore(st State) {
	if st.Phase == PhaseIdle || st.Session == nil || st.Remaining < 0 {
		m.toIdle()
		return
	}
	if st.Phase != PhaseWorking && st.Phase != PhaseBreak {
		m.toIdle()
		return
	}
	s := *st.Session
	m.phase = st.Phase
	m.session = &s
	m.remaining = st.Remaining
	m.duration = st.Duration
	m.breakPending = st.Phase == PhaseWorking && (st.BreakPending || st.Remaining == 0)
	m.paused = !m.breakPending
}

func (m *Machine) toIdle() {
	m.phase = PhaseIdle
	m.session = nil
	m.paused = false
	m.breakPending = false
	m.armed = m.workSeconds
	m.duration = m.workSeconds
	m.remaining = m.workSeconds
}
