package gaze

import (
	"time"

	"github.com/fakeyudi/focuspet/internal/focus"
)

// Frame types on the /ws push channel.
const (
	FrameGazeUpdate     = "gaze_update"
	FrameUnfocusedAlert = "unfocused_alert"
	FrameJoinSession    = "join_session"
)

// Frame is the JSON envelope of every websocket message.
type Frame struct {
	Type            string  `json:"type"`
	SessionID       string  `json:"session_id,omitempty"`
	IsFocused       *bool   `json:"is_focused,omitempty"`
	FocusPercentage float64 `json:"focus_percentage,omitempty"`
	Timestamp       string  `json:"timestamp,omitempty"`
	Message         string  `json:"message,omitempty"`
}

// EventKind distinguishes telemetry from alerts.
type EventKind int

const (
	EventGaze EventKind = iota
	EventAlert
)

// Event is a decoded server frame.
type Event struct {
	Kind      EventKind
	SessionID string

	// Set for EventGaze.
	Sample          focus.Sample
	FocusPercentage float64

	// Set for EventAlert.
	Message string
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999", // naive ISO 8601, local time
}

// parseTimestamp accepts RFC 3339 and naive ISO 8601 timestamps. Anything
// else yields the zero time.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// decodeFrame converts a server frame into an Event. ok is false for frames
// the client does not consume or that lack required fields.
func decodeFrame(f Frame, received time.Time) (ev Event, ok bool) {
	switch f.Type {
	case FrameGazeUpdate:
		if f.IsFocused == nil {
			return Event{}, false
		}
		ts := parseTimestamp(f.Timestamp)
		if ts.IsZero() {
			ts = received
		}
		return Event{
			Kind:            EventGaze,
			SessionID:       f.SessionID,
			Sample:          focus.Sample{Timestamp: ts, Focused: *f.IsFocused},
			FocusPercentage: f.FocusPercentage,
		}, true
	case FrameUnfocusedAlert:
		return Event{Kind: EventAlert, SessionID: f.SessionID, Message: f.Message}, true
	}
	return Event{}, false
}
