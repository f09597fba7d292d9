package api

import (
	"context"
	"fmt"
)

// Break bounds applied to every recommendation.
const (
	MinBreakSeconds = 60
	MaxBreakSeconds = 3600
)

// Recommender is the slice of Client the break client needs.
type Recommender interface {
	Recommend(ctx context.Context, id string) (*Recommendation, error)
}

// BreakClient turns backend recommendations into break durations.
type BreakClient struct {
	rec    Recommender
	lo, hi int
}

// NewBreakClient returns a BreakClient clamping to [lo, hi] seconds.
// Non-positive or inverted bounds fall back to [MinBreakSeconds, MaxBreakSeconds].
func NewBreakClient(rec Recommender, lo, hi int) *BreakClient {
	if lo <= 0 || hi < lo {
		lo, hi = MinBreakSeconds, MaxBreakSeconds
	}
	return &BreakClient{rec: rec, lo: lo, hi: hi}
}

// RequestBreak returns the recommended break for sessionID in seconds,
// clamped to the client's bounds. Any failure is returned; the caller picks
// the fallback.
func (b *BreakClient) RequestBreak(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, ErrNoSessionID
	}
	rec, err := b.rec.Recommend(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if rec.RecommendedBreakSeconds <= 0 {
		return 0, fmt.Errorf("recommend break for %s: invalid duration %d", sessionID, rec.RecommendedBreakSeconds)
	}
	return b.Clamp(rec.RecommendedBreakSeconds), nil
}

// Clamp bounds seconds to the client's interval.
func (b *BreakClient) Clamp(seconds int) int {
	if seconds < b.lo {
		return b.lo
	}
	if seconds > b.hi {
		return b.hi
	}
	return seconds
}
