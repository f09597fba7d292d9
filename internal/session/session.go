package session

import "time"

// Phase is the session lifecycle state. Paused is tracked separately.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseWorking Phase = "working"
	PhaseBreak   Phase = "break"
)

// Session identifies one work/break cycle.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	// LocalOnly is set when the session-control service could not issue an
	// id and one was generated locally.
	LocalOnly bool `json:"local_only,omitempty"`
}

// State is the state machine's externally visible state.
type State struct {
	Phase     Phase    `json:"phase"`
	Paused    bool     `json:"paused"`
	Remaining int      `json:"remaining_seconds"`
	Duration  int      `json:"duration_seconds"` // length of the current countdown
	Session   *Session `json:"session,omitempty"`
	// BreakPending is set between work completion and the break duration
	// being applied.
	BreakPending bool `json:"break_pending,omitempty"`
}

// Status is what gets persisted for other processes (focuspet status) and
// for rehydration after a restart.
type Status struct {
	State
	Vitality        int       `json:"vitality"`
	Dead            bool      `json:"dead,omitempty"`
	FocusPercentage float64   `json:"focus_percentage"`
	Focused         bool      `json:"focused"`
	Samples         int       `json:"samples"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Command is a user intent applied to the running session.
type Command string

const (
	CommandStart       Command = "start"
	CommandPause       Command = "pause"
	CommandResume      Command = "resume"
	CommandReset       Command = "reset"
	CommandSetDuration Command = "set_duration"
	CommandUnfocused   Command = "unfocused" // window lost visibility; no state change
)

// Request carries a Command and its argument.
type Request struct {
	Command  Command   `json:"command"`
	Seconds  int       `json:"seconds,omitempty"` // CommandSetDuration only
	IssuedAt time.Time `json:"issued_at"`
}
