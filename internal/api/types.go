package api

import (
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp decodes RFC 3339 and zoneless ISO 8601 times; the latter are
// taken as local time. It encodes as RFC 3339.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON accepts a JSON string in any of timestampLayouts, or null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised format %q", s)
}

// StartSessionResponse is returned by POST /api/start_session.
type StartSessionResponse struct {
	SessionID string    `json:"session_id"`
	StartTime Timestamp `json:"start_time"`
	Status    string    `json:"status"`
}

// EndSessionRequest is the body of POST /api/end_session. FocusPercentage is
// the aggregator's reading for the finished work phase.
type EndSessionRequest struct {
	SessionID       string   `json:"session_id"`
	FocusPercentage *float64 `json:"focus_percentage,omitempty"`
}

// EndSessionResponse acknowledges a completed session.
type EndSessionResponse struct {
	SessionID        string    `json:"session_id"`
	EndTime          Timestamp `json:"end_time"`
	Duration         int       `json:"duration"` // seconds
	EyeActivityScore float64   `json:"eye_activity_score"`
	Status           string    `json:"status"`
}

// EyeActivityRequest is the body of POST /api/eye_activity.
type EyeActivityRequest struct {
	SessionID   string `json:"session_id"`
	GazeFocused bool   `json:"gaze_focused"`
}

// EyeActivityResponse acknowledges a logged sample.
type EyeActivityResponse struct {
	Status    string    `json:"status"`
	Timestamp Timestamp `json:"timestamp"`
}

// Recommendation is returned by GET /api/recommend_interval/{id}.
type Recommendation struct {
	SessionID               string  `json:"session_id"`
	RecommendedBreakSeconds int     `json:"recommended_break_seconds"`
	RecommendedBreakMinutes float64 `json:"recommended_break_minutes"`
	EyeActivityScore        float64 `json:"eye_activity_score"`
}

// Stats aggregates completed sessions. TotalFocusTime is in seconds,
// AverageSession in minutes, scores in whole percent.
type Stats struct {
	TotalSessions     int     `json:"totalSessions"`
	TotalFocusTime    int     `json:"totalFocusTime"`
	AverageSession    float64 `json:"averageSession"`
	TodaySessions     int     `json:"todaySessions"`
	AverageFocusScore int     `json:"averageFocusScore"`
	BestFocusScore    int     `json:"bestFocusScore"`
}

// Health is returned by GET /api/health.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
