// Package focus folds the gaze service's focused/unfocused samples into a
// rolling focus percentage and an instantaneous focus state.
package focus

import (
	"math"
	"time"
)

// Sample is a single focused/unfocused observation from the gaze service.
type Sample struct {
	Timestamp time.Time
	Focused   bool
}

// Aggregate is a point-in-time view of the aggregator's state.
type Aggregate struct {
	Percentage float64 `json:"percentage"` // 0–100
	Focused    bool    `json:"focused"`
	Samples    int     `json:"samples"`
}

// Aggregator counts focused vs. total samples since the last Reset.
// It is not safe for concurrent use; the orchestrator is its only caller.
type Aggregator struct {
	focused int
	total   int
	current bool
	last    time.Time // timestamp of the most recent accepted sample
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Observe folds s into the aggregate. Samples with a zero timestamp or a
// timestamp earlier than the last accepted one are discarded; Observe reports
// whether s was accepted.
func (a *Aggregator) Observe(s Sample) bool {
	if s.Timestamp.IsZero() {
		return false
	}
	if a.total > 0 && s.Timestamp.Before(a.last) {
		return false
	}
	a.total++
	if s.Focused {
		a.focused++
	}
	a.current = s.Focused
	a.last = s.Timestamp
	return true
}

// CurrentFocusPercentage returns focused/total × 100, or 0 before any sample.
func (a *Aggregator) CurrentFocusPercentage() float64 {
	if a.total == 0 {
		return 0
	}
	return float64(a.focused) / float64(a.total) * 100
}

// CurrentlyFocused returns the focus state of the most recent sample.
func (a *Aggregator) CurrentlyFocused() bool {
	return a.current
}

// Fresh reports whether a sample newer than maxAge (relative to now) has been
// observed since the last Reset.
func (a *Aggregator) Fresh(now time.Time, maxAge time.Duration) bool {
	if a.total == 0 {
		return false
	}
	return now.Sub(a.last) <= maxAge
}

// Aggregate returns a snapshot of the current counters.
func (a *Aggregator) Aggregate() Aggregate {
	return Aggregate{
		Percentage: a.CurrentFocusPercentage(),
		Focused:    a.current,
		Samples:    a.total,
	}
}

// Restore seeds the counters from a persisted aggregate. The restored state
// is not Fresh until a new sample arrives.
func (a *Aggregator) Restore(agg Aggregate) {
	*a = Aggregator{}
	if agg.Samples <= 0 {
		return
	}
	pct := min(max(agg.Percentage, 0), 100)
	a.total = agg.Samples
	a.focused = int(math.Round(pct * float64(agg.Samples) / 100))
	a.current = agg.Focused
}

// Reset clears all counters. Called once at Working-phase entry.
func (a *Aggregator) Reset() {
	*a = Aggregator{}
}
