package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/focuspet/internal/api"
	"github.com/fakeyudi/focuspet/internal/config"
	"github.com/fakeyudi/focuspet/internal/focus"
	"github.com/fakeyudi/focuspet/internal/gaze"
	"github.com/fakeyudi/focuspet/internal/session"
)

// --- fakes ---

// callLog records collaborator calls in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeSessions struct {
	log      *callLog
	id       string
	startErr error
	endPct   []float64
}

func (f *fakeSessions) StartSession(ctx context.Context) (*api.StartSessionResponse, error) {
	f.log.add("start")
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &api.StartSessionResponse{SessionID: f.id, Status: "started"}, nil
}

func (f *fakeSessions) EndSession(ctx context.Context, id string, pct float64) (*api.EndSessionResponse, error) {
	f.log.add("end:%s", id)
	f.endPct = append(f.endPct, pct)
	return &api.EndSessionResponse{SessionID: id, Status: "completed"}, nil
}

type fakeBreaks struct {
	log     *callLog
	seconds int
	err     error
}

func (f *fakeBreaks) RequestBreak(ctx context.Context, id string) (int, error) {
	f.log.add("break:%s", id)
	return f.seconds, f.err
}

type fakeTracker struct {
	log    *callLog
	events chan gaze.Event
	closed bool
}

func (f *fakeTracker) Subscribe(ctx context.Context) (<-chan gaze.Event, error) {
	return f.events, nil
}

func (f *fakeTracker) StartTracking(ctx context.Context, id string) error {
	f.log.add("track:%s", id)
	return nil
}

func (f *fakeTracker) StopTracking(ctx context.Context) error {
	f.log.add("untrack")
	return nil
}

func (f *fakeTracker) SendAlert(ctx context.Context, id string) error {
	f.log.add("alert:%s", id)
	return nil
}

func (f *fakeTracker) Close() error {
	f.closed = true
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	notes  []string
	alerts []string
}

func (f *fakeNotifier) Notify(title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, title)
	return nil
}

func (f *fakeNotifier) Alert(message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, message)
	return nil
}

type fakeTicker struct {
	c       chan time.Time
	stopped bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.c }
func (f *fakeTicker) Stop()               { f.stopped = true }

// tickers hands out fake tickers and counts the live ones.
type tickers struct {
	mu  sync.Mutex
	all []*fakeTicker
}

func (ts *tickers) New(time.Duration) Ticker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time)}
	ts.all = append(ts.all, t)
	return t
}

func (ts *tickers) live() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	n := 0
	for _, t := range ts.all {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (ts *tickers) current() *fakeTicker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for i := len(ts.all) - 1; i >= 0; i-- {
		if !ts.all[i].stopped {
			return ts.all[i]
		}
	}
	return nil
}

type memStore struct {
	mu sync.Mutex
	st *session.Status
}

func (m *memStore) Save(st *session.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *st
	m.st = &cp
	return nil
}

func (m *memStore) Load() (*session.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st == nil {
		return nil, session.ErrNoSession
	}
	cp := *m.st
	return &cp, nil
}

func (m *memStore) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = nil
	return nil
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// --- harness ---

type harness struct {
	o        *Orchestrator
	log      *callLog
	sessions *fakeSessions
	breaks   *fakeBreaks
	tracker  *fakeTracker
	notifier *fakeNotifier
	store    *memStore
	tickers  *tickers
	clock    *clock
}

func newHarness(t testing.TB, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Defaults()
	if mutate != nil {
		mutate(&cfg)
	}
	log := &callLog{}
	h := &harness{
		log:      log,
		sessions: &fakeSessions{log: log, id: "srv-1"},
		breaks:   &fakeBreaks{log: log, seconds: 420},
		tracker:  &fakeTracker{log: log, events: make(chan gaze.Event, 16)},
		notifier: &fakeNotifier{},
		store:    &memStore{},
		tickers:  &tickers{},
		clock:    &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	o, err := New(Options{
		Config:    cfg,
		Sessions:  h.sessions,
		Breaks:    h.breaks,
		Tracker:   h.tracker,
		Notifier:  h.notifier,
		Store:     h.store,
		PetName:   "Pixel",
		NewTicker: h.tickers.New,
		Now:       h.clock.Now,
		NewID:     func() string { return "local-1" },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.o = o
	return h
}

func (h *harness) do(t testing.TB, cmd session.Command) {
	t.Helper()
	if err := h.o.apply(context.Background(), session.Request{Command: cmd}); err != nil {
		t.Fatalf("%s: %v", cmd, err)
	}
}

// second advances the clock one second, optionally delivering a gaze
// sample, then ticks.
func (h *harness) second(sample *bool) {
	h.clock.Advance(time.Second)
	if sample != nil {
		h.o.observe(gaze.Event{
			Kind:   gaze.EventGaze,
			Sample: focus.Sample{Timestamp: h.clock.Now(), Focused: *sample},
		})
	}
	h.o.tick(context.Background())
}

func (h *harness) state() session.State { return h.o.machine.State() }

var (
	focused   = func() *bool { b := true; return &b }()
	unfocused = func() *bool { b := false; return &b }()
)

// --- scenarios ---

func TestWorkCompletionUsesRecommendation(t *testing.T) {
	h := newHarness(t, nil)
	h.do(t, session.CommandStart)

	for i := 0; i < 1500; i++ {
		h.second(focused)
	}

	st := h.state()
	if st.Phase != session.PhaseBreak || st.Remaining != 420 || !st.Paused {
		t.Fatalf("after work phase: %+v", st)
	}
	want := []string{"start", "track:srv-1", "end:srv-1", "break:srv-1", "untrack"}
	if got := h.log.snapshot(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("call order: got %v, want %v", got, want)
	}
	if len(h.sessions.endPct) != 1 || h.sessions.endPct[0] != 100 {
		t.Errorf("end session focus percentage: %v", h.sessions.endPct)
	}
	if v := h.o.mech.Vitality(); v != 100 {
		t.Errorf("vitality: got %d, want 100", v)
	}
	if h.tickers.live() != 0 {
		t.Error("ticker must stop while the break waits to be resumed")
	}
	if len(h.notifier.notes) != 1 || h.notifier.notes[0] != "Break ready" {
		t.Errorf("notifications: %v", h.notifier.notes)
	}
}

func TestBreakRecommendationFailureFallsBack(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.WorkSeconds = 10 })
	h.breaks.err = errors.New("dial tcp: connection refused")
	h.do(t, session.CommandStart)

	for i := 0; i < 10; i++ {
		h.second(focused)
	}

	st := h.state()
	if st.Phase != session.PhaseBreak || st.Remaining != 300 {
		t.Fatalf("after failed recommendation: %+v", st)
	}
}

func TestResetMidBreak(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.WorkSeconds = 60 })
	h.do(t, session.CommandStart)

	// Unfocused for the whole phase: grace, then decay to zero.
	for i := 0; i < 60; i++ {
		h.second(unfocused)
	}
	if v := h.o.mech.Vitality(); v != 0 {
		t.Fatalf("vitality after unfocused phase: got %d, want 0", v)
	}
	if len(h.notifier.alerts) != 1 || h.notifier.alerts[0] != "Pixel has fainted" {
		t.Fatalf("death alerts: %v", h.notifier.alerts)
	}

	h.do(t, session.CommandResume)
	for i := 0; i < 20; i++ {
		h.second(nil)
	}
	h.do(t, session.CommandReset)

	st := h.state()
	if st.Phase != session.PhaseIdle || st.Remaining != 60 || st.Session != nil || st.Paused {
		t.Fatalf("after reset: %+v", st)
	}
	if v := h.o.mech.Vitality(); v != 100 {
		t.Errorf("vitality after reset: got %d, want 100", v)
	}
	if h.tickers.live() != 0 {
		t.Error("no ticker may run while idle")
	}
}

func TestDefaultWorkDurationAfterReset(t *testing.T) {
	h := newHarness(t, nil)
	h.do(t, session.CommandStart)
	for i := 0; i < 1500; i++ {
		h.second(focused)
	}
	h.do(t, session.CommandResume)
	h.second(nil)
	h.do(t, session.CommandReset)

	if st := h.state(); st.Phase != session.PhaseIdle || st.Remaining != 1500 || st.Session != nil {
		t.Fatalf("after reset mid-break: %+v", st)
	}
}

func TestFullCycleRoundTrip(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.WorkSeconds = 30 })
	h.breaks.seconds = 90
	h.do(t, session.CommandStart)

	for i := 0; i < 10; i++ {
		h.second(unfocused)
	}
	h.do(t, session.CommandPause)
	h.do(t, session.CommandResume)
	for i := 0; i < 20; i++ {
		h.second(focused)
	}
	if st := h.state(); st.Phase != session.PhaseBreak {
		t.Fatalf("expected break, got %+v", st)
	}

	h.do(t, session.CommandResume)
	for i := 0; i < 90; i++ {
		h.second(nil)
	}

	st := h.state()
	if st.Phase != session.PhaseIdle || st.Session != nil || st.Paused {
		t.Fatalf("after full cycle: %+v", st)
	}
	if v := h.o.mech.Vitality(); v != 100 {
		t.Errorf("vitality: got %d, want 100", v)
	}
	if got := h.notifier.notes; len(got) != 2 || got[1] != "Break over" {
		t.Errorf("notifications: %v", got)
	}

	saved, err := h.store.Load()
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if saved.Phase != session.PhaseIdle || saved.Vitality != 100 {
		t.Errorf("persisted status: %+v", saved)
	}
}

func TestStartFailureRunsOffline(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.WorkSeconds = 5 })
	h.sessions.startErr = errors.New("backend down")
	h.do(t, session.CommandStart)

	st := h.state()
	if st.Session == nil || st.Session.ID != "local-1" || !st.Session.LocalOnly {
		t.Fatalf("offline session: %+v", st.Session)
	}
	for i := 0; i < 5; i++ {
		h.second(focused)
	}
	if st := h.state(); st.Phase != session.PhaseBreak || st.Remaining != 300 {
		t.Fatalf("offline break: %+v", st)
	}
	for _, c := range h.log.snapshot() {
		if c == "end:local-1" || c == "break:local-1" {
			t.Errorf("offline session must not reach the backend: %v", h.log.snapshot())
		}
	}
}

func TestUnknownFocusFreezesHealth(t *testing.T) {
	h := newHarness(t, nil)
	h.do(t, session.CommandStart)

	// No telemetry at all.
	for i := 0; i < 30; i++ {
		h.second(nil)
	}
	if v := h.o.mech.Vitality(); v != 100 {
		t.Fatalf("vitality without telemetry: got %d, want 100", v)
	}

	// One unfocused sample, then silence: the sample goes stale and
	// health stops decaying.
	h.second(unfocused)
	for i := 0; i < 60; i++ {
		h.second(nil)
	}
	if v := h.o.mech.Vitality(); v < 80 {
		t.Fatalf("vitality decayed on stale telemetry: %d", v)
	}
	if h.state().Remaining != 1500-91 {
		t.Errorf("countdown must keep running: remaining=%d", h.state().Remaining)
	}
}

func TestGazeForOtherSessionIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.do(t, session.CommandStart)
	h.o.observe(gaze.Event{Kind: gaze.EventGaze, SessionID: "someone-else", Sample: focus.Sample{Timestamp: h.clock.Now(), Focused: true}})
	if n := h.o.agg.Aggregate().Samples; n != 0 {
		t.Errorf("foreign sample counted: %d", n)
	}
	h.o.observe(gaze.Event{Kind: gaze.EventAlert, Message: "come back"})
	if len(h.notifier.alerts) != 1 || h.notifier.alerts[0] != "come back" {
		t.Errorf("alerts: %v", h.notifier.alerts)
	}
}

func TestRestoreComesBackPaused(t *testing.T) {
	h := newHarness(t, nil)
	s := session.Session{ID: "srv-9", CreatedAt: h.clock.Now()}
	h.store.Save(&session.Status{
		State:           session.State{Phase: session.PhaseWorking, Remaining: 42, Duration: 1500, Session: &s},
		Vitality:        60,
		FocusPercentage: 50,
		Samples:         10,
	})

	h.o.restore(context.Background())
	h.o.sync(context.Background())

	st := h.state()
	if st.Phase != session.PhaseWorking || !st.Paused || st.Remaining != 42 {
		t.Fatalf("restored: %+v", st)
	}
	if v := h.o.mech.Vitality(); v != 60 {
		t.Errorf("vitality: got %d, want 60", v)
	}
	if got := h.o.agg.CurrentFocusPercentage(); got != 50 {
		t.Errorf("focus percentage: got %v, want 50", got)
	}
	if h.tickers.live() != 0 {
		t.Error("restored session must not start ticking")
	}
	for _, c := range h.log.snapshot() {
		if c == "track:srv-9" {
			t.Error("restored paused session must not start tracking")
		}
	}
}

func TestRestoreFinishedWorkEntersBreak(t *testing.T) {
	for name, state := range map[string]session.State{
		"ran out":       {Phase: session.PhaseWorking, Remaining: 0, Duration: 1500},
		"break pending": {Phase: session.PhaseWorking, Remaining: 0, Duration: 1500, BreakPending: true},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil)
			s := session.Session{ID: "srv-9", CreatedAt: h.clock.Now()}
			state.Session = &s
			h.store.Save(&session.Status{State: state, Vitality: 80, FocusPercentage: 75, Samples: 4})

			h.o.restore(context.Background())
			h.o.sync(context.Background())

			st := h.state()
			if st.Phase != session.PhaseBreak || st.BreakPending || !st.Paused || st.Remaining != 420 {
				t.Fatalf("restored: %+v", st)
			}
			want := []string{"end:srv-9", "break:srv-9"}
			if got := h.log.snapshot(); fmt.Sprint(got) != fmt.Sprint(want) {
				t.Errorf("calls: got %v, want %v", got, want)
			}
			if len(h.sessions.endPct) != 1 || h.sessions.endPct[0] != 75 {
				t.Errorf("end session focus percentage: %v", h.sessions.endPct)
			}

			h.do(t, session.CommandResume)
			if !h.o.machine.Running() || h.tickers.live() != 1 {
				t.Errorf("break did not resume: %+v", h.state())
			}
		})
	}
}

func TestUnfocusedRoutesToTrackedSession(t *testing.T) {
	h := newHarness(t, nil)

	// Nothing tracked yet.
	h.do(t, session.CommandUnfocused)
	h.do(t, session.CommandStart)
	h.do(t, session.CommandUnfocused)
	h.do(t, session.CommandPause)
	h.do(t, session.CommandUnfocused)

	want := []string{"start", "track:srv-1", "alert:srv-1", "untrack"}
	if got := h.log.snapshot(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("calls: got %v, want %v", got, want)
	}
	if st := h.state(); st.Phase != session.PhaseWorking || !st.Paused {
		t.Errorf("unfocused changed state: %+v", st)
	}
}

// Feature: focuspet, Property 9: At most one countdown ticker is ever live
func TestAtMostOneTicker(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t, func(c *config.Config) { c.WorkSeconds = 5 })
		h.breaks.seconds = 60
		cmds := []session.Command{
			session.CommandStart, session.CommandPause, session.CommandResume, session.CommandReset,
		}
		steps := rapid.IntRange(1, 100).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(rt, "tick") {
				h.second(rapid.SampledFrom([]*bool{nil, focused, unfocused}).Draw(rt, "sample"))
			} else {
				cmd := rapid.SampledFrom(cmds).Draw(rt, "cmd")
				h.o.apply(context.Background(), session.Request{Command: cmd})
			}

			live := h.tickers.live()
			if live > 1 {
				rt.Fatalf("%d live tickers", live)
			}
			if running := h.o.machine.Running(); running != (live == 1) {
				rt.Fatalf("running=%v but %d live tickers", running, live)
			}
			if v := h.o.mech.Vitality(); v < 0 || v > 100 {
				rt.Fatalf("vitality out of range: %d", v)
			}
		}
	})
}

func TestRunProcessesCommandsAndShutsDown(t *testing.T) {
	h := newHarness(t, nil)
	statuses, _ := h.o.Subscribe()

	ctx := context.Background()
	runErr := make(chan error, 1)
	go func() { runErr <- h.o.Run(ctx) }()

	waitFor := func(pred func(session.Status) bool) session.Status {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case st, ok := <-statuses:
				if !ok {
					t.Fatal("status channel closed early")
				}
				if pred(st) {
					return st
				}
			case <-deadline:
				t.Fatal("timed out waiting for status")
			}
		}
	}

	if err := h.o.Submit(ctx, session.Request{Command: session.CommandStart}); err != nil {
		t.Fatalf("Submit start: %v", err)
	}
	waitFor(func(st session.Status) bool { return st.Phase == session.PhaseWorking })

	if err := h.o.Submit(ctx, session.Request{Command: session.CommandStart}); !errors.Is(err, session.ErrNotIdle) {
		t.Fatalf("second start: got %v, want ErrNotIdle", err)
	}

	tk := h.tickers.current()
	if tk == nil {
		t.Fatal("no ticker while working")
	}
	tk.c <- h.clock.Now()
	waitFor(func(st session.Status) bool { return st.Remaining == 1499 })

	if err := h.o.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if h.tickers.live() != 0 {
		t.Error("ticker still live after Close")
	}
	if !h.tracker.closed {
		t.Error("telemetry subscription not released")
	}
	calls := h.log.snapshot()
	if calls[len(calls)-1] != "untrack" {
		t.Errorf("stop_tracking not sent on close: %v", calls)
	}
	for range statuses {
		// drain until closed
	}
	if err := h.o.Submit(ctx, session.Request{Command: session.CommandPause}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close: got %v, want ErrClosed", err)
	}
}
