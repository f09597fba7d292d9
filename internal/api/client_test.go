package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", time.Second)
}

func TestStartAndEndSession(t *testing.T) {
	var ended EndSessionRequest
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/start_session":
			json.NewEncoder(w).Encode(StartSessionResponse{SessionID: "abc", Status: "started"})
		case "/api/end_session":
			if err := json.NewDecoder(r.Body).Decode(&ended); err != nil {
				t.Errorf("decode end_session body: %v", err)
			}
			json.NewEncoder(w).Encode(EndSessionResponse{SessionID: ended.SessionID, Status: "completed"})
		default:
			http.NotFound(w, r)
		}
	})

	ctx := context.Background()
	started, err := c.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if started.SessionID != "abc" {
		t.Fatalf("session id: got %q", started.SessionID)
	}

	if _, err := c.EndSession(ctx, "abc", 87.5); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if ended.SessionID != "abc" || ended.FocusPercentage == nil || *ended.FocusPercentage != 87.5 {
		t.Errorf("end_session body: %+v", ended)
	}
}

func TestStatusErrorCarriesMessage(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "Session not found"})
	})

	_, err := c.Recommend(context.Background(), "missing")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if se.Code != http.StatusNotFound || se.Message != "Session not found" {
		t.Errorf("got %+v", se)
	}
}

func TestMissingSessionIDIsRejectedLocally(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second)
	ctx := context.Background()
	if _, err := c.EndSession(ctx, "", 0); !errors.Is(err, ErrNoSessionID) {
		t.Errorf("EndSession: got %v", err)
	}
	if _, err := c.Recommend(ctx, ""); !errors.Is(err, ErrNoSessionID) {
		t.Errorf("Recommend: got %v", err)
	}
	if err := c.LogEyeActivity(ctx, "", true); !errors.Is(err, ErrNoSessionID) {
		t.Errorf("LogEyeActivity: got %v", err)
	}
}

func TestTimeoutIsAnError(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, 50*time.Millisecond)
	if _, err := c.Stats(context.Background()); err == nil {
		t.Fatal("expected timeout error, got nil")
	}
}

func TestStatsDecodesCamelCase(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalSessions":4,"totalFocusTime":6000,"averageSession":25,"todaySessions":2,"averageFocusScore":71,"bestFocusScore":93}`))
	})
	st, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := Stats{TotalSessions: 4, TotalFocusTime: 6000, AverageSession: 25, TodaySessions: 2, AverageFocusScore: 71, BestFocusScore: 93}
	if *st != want {
		t.Errorf("got %+v, want %+v", *st, want)
	}
}

func TestZonelessTimestampsDecode(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/start_session":
			w.Write([]byte(`{"session_id":"abc","start_time":"2025-01-01T12:00:00.123456","status":"started"}`))
		case "/api/end_session":
			w.Write([]byte(`{"session_id":"abc","end_time":"2025-01-01T12:25:00","duration":1500,"eye_activity_score":0.8,"status":"completed"}`))
		case "/api/eye_activity":
			w.Write([]byte(`{"status":"logged","timestamp":"2025-01-01T12:01:00.5"}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	started, err := c.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	want := time.Date(2025, 1, 1, 12, 0, 0, 123456000, time.Local)
	if started.SessionID != "abc" || !started.StartTime.Equal(want) {
		t.Errorf("start: %+v", started)
	}

	ended, err := c.EndSession(ctx, "abc", 80)
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if ended.Duration != 1500 || !ended.EndTime.Equal(time.Date(2025, 1, 1, 12, 25, 0, 0, time.Local)) {
		t.Errorf("end: %+v", ended)
	}

	if err := c.LogEyeActivity(ctx, "abc", true); err != nil {
		t.Fatalf("LogEyeActivity: %v", err)
	}
}

func TestTimestampFormats(t *testing.T) {
	cases := map[string]time.Time{
		`"2026-03-01T09:00:00Z"`:         time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		`"2026-03-01T09:00:00.25+02:00"`: time.Date(2026, 3, 1, 7, 0, 0, 250000000, time.UTC),
		`"2026-03-01T09:00:00"`:          time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local),
		`"2026-03-01 09:00:00.000001"`:   time.Date(2026, 3, 1, 9, 0, 0, 1000, time.Local),
		`null`:                           {},
	}
	for in, want := range cases {
		var ts Timestamp
		if err := json.Unmarshal([]byte(in), &ts); err != nil {
			t.Errorf("%s: %v", in, err)
			continue
		}
		if !ts.Equal(want) {
			t.Errorf("%s: got %v, want %v", in, ts.Time, want)
		}
	}

	var ts Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Error("expected an error for an unrecognised timestamp")
	}
}

type fixedRecommender struct {
	seconds int
	err     error
}

func (f fixedRecommender) Recommend(ctx context.Context, id string) (*Recommendation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &Recommendation{SessionID: id, RecommendedBreakSeconds: f.seconds}, nil
}

func TestRequestBreakPassesThroughInRange(t *testing.T) {
	b := NewBreakClient(fixedRecommender{seconds: 420}, MinBreakSeconds, MaxBreakSeconds)
	got, err := b.RequestBreak(context.Background(), "s")
	if err != nil || got != 420 {
		t.Fatalf("RequestBreak: got %d, %v", got, err)
	}
}

func TestRequestBreakFailures(t *testing.T) {
	ctx := context.Background()
	b := NewBreakClient(fixedRecommender{err: errors.New("connection refused")}, 0, 0)
	if _, err := b.RequestBreak(ctx, "s"); err == nil {
		t.Error("expected recommender error to propagate")
	}
	if _, err := b.RequestBreak(ctx, ""); !errors.Is(err, ErrNoSessionID) {
		t.Errorf("empty id: got %v", err)
	}
	if _, err := NewBreakClient(fixedRecommender{seconds: 0}, 0, 0).RequestBreak(ctx, "s"); err == nil {
		t.Error("expected error for a zero-length recommendation")
	}
}

// Feature: focuspet, Property 8: Recommended breaks are clamped to [60, 3600]
func TestRequestBreakClamps(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seconds := rapid.IntRange(1, 100_000).Draw(t, "seconds")
		b := NewBreakClient(fixedRecommender{seconds: seconds}, MinBreakSeconds, MaxBreakSeconds)
		got, err := b.RequestBreak(context.Background(), "s")
		if err != nil {
			t.Fatalf("RequestBreak: %v", err)
		}
		if got < MinBreakSeconds || got > MaxBreakSeconds {
			t.Fatalf("got %d outside bounds", got)
		}
		if seconds >= MinBreakSeconds && seconds <= MaxBreakSeconds && got != seconds {
			t.Fatalf("in-range value altered: %d -> %d", seconds, got)
		}
	})
}
