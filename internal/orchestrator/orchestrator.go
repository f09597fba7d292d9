// Package orchestrator wires the focus aggregator, health mechanic, session
// state machine and break client together. A single goroutine (Run) owns
// all of their state; everything else talks to it through Submit and
// Subscribe.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fakeyudi/focuspet/internal/api"
	"github.com/fakeyudi/focuspet/internal/config"
	"github.com/fakeyudi/focuspet/internal/focus"
	"github.com/fakeyudi/focuspet/internal/gaze"
	"github.com/fakeyudi/focuspet/internal/health"
	"github.com/fakeyudi/focuspet/internal/notify"
	"github.com/fakeyudi/focuspet/internal/session"
)

// ErrClosed is returned by Submit once Run has returned.
var ErrClosed = errors.New("orchestrator is not running")

// SessionAPI allocates and completes sessions.
type SessionAPI interface {
	StartSession(ctx context.Context) (*api.StartSessionResponse, error)
	EndSession(ctx context.Context, id string, focusPercentage float64) (*api.EndSessionResponse, error)
}

// BreakRecommender returns a break length in seconds.
type BreakRecommender interface {
	RequestBreak(ctx context.Context, sessionID string) (int, error)
}

// Tracker is the telemetry ingress.
type Tracker interface {
	Subscribe(ctx context.Context) (<-chan gaze.Event, error)
	StartTracking(ctx context.Context, id string) error
	StopTracking(ctx context.Context) error
	SendAlert(ctx context.Context, id string) error
	Close() error
}

// Ticker is the countdown tick source.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} }

// Options configures an Orchestrator. Sessions and Breaks are required;
// the rest have working defaults.
type Options struct {
	Config   config.Config
	Sessions SessionAPI
	Breaks   BreakRecommender
	Tracker  Tracker         // nil: no telemetry, health stays frozen
	Notifier notify.Notifier // nil: notify.Nop
	Store    session.Store   // nil: nothing is persisted
	Logger   *log.Logger     // nil: discard
	PetName  string

	NewTicker func(time.Duration) Ticker // nil: time.NewTicker
	Now       func() time.Time           // nil: time.Now
	NewID     func() string              // nil: uuid.NewString
}

type command struct {
	req   session.Request
	reply chan error
}

// Orchestrator is the single subscriber to external events.
type Orchestrator struct {
	cfg      config.Config
	sessions SessionAPI
	breaks   BreakRecommender
	tracker  Tracker
	notifier notify.Notifier
	store    session.Store
	logger   *log.Logger
	petName  string

	newTicker func(time.Duration) Ticker
	now       func() time.Time
	newID     func() string

	machine *session.Machine
	agg     *focus.Aggregator
	mech    *health.Mechanic

	// Owned by the Run goroutine.
	ticker   Ticker
	tracking string // session id tracking was last started for
	events   <-chan gaze.Event

	commands chan command
	done     chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	subs    map[chan session.Status]struct{}
}

// New returns an idle Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Sessions == nil || opts.Breaks == nil {
		return nil, errors.New("orchestrator: session and break clients are required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	o := &Orchestrator{
		cfg:       opts.Config,
		sessions:  opts.Sessions,
		breaks:    opts.Breaks,
		tracker:   opts.Tracker,
		notifier:  opts.Notifier,
		store:     opts.Store,
		logger:    opts.Logger,
		petName:   opts.PetName,
		newTicker: opts.NewTicker,
		now:       opts.Now,
		newID:     opts.NewID,
		machine:   session.NewMachine(opts.Config.WorkSeconds),
		agg:       focus.NewAggregator(),
		commands:  make(chan command),
		done:      make(chan struct{}),
		subs:      make(map[chan session.Status]struct{}),
	}
	if o.notifier == nil {
		o.notifier = notify.Nop{}
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard, "", 0)
	}
	if o.petName == "" {
		o.petName = "Your pet"
	}
	if o.newTicker == nil {
		o.newTicker = newTimeTicker
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	o.mech = health.New(opts.Config.Health(), o.onDeath)
	return o, nil
}

// Run drives the session until ctx is cancelled or Close is called. It
// restores a persisted session (paused), subscribes to telemetry, then
// processes commands, ticks and gaze events one at a time.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("orchestrator: already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.mu.Unlock()
	defer close(o.done)
	defer cancel()

	o.restore(ctx)
	o.subscribe(ctx)
	o.sync(ctx)

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil

		case cmd := <-o.commands:
			cmd.reply <- o.apply(ctx, cmd.req)

		case <-o.tickC():
			o.tick(ctx)

		case ev, ok := <-o.events:
			if !ok {
				o.logger.Printf("warning: telemetry disconnected; health is frozen until restart")
				o.events = nil
				continue
			}
			o.observe(ev)
		}
	}
}

// Close stops Run and waits for it to release the ticker and telemetry.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	cancel, running := o.cancel, o.running
	o.mu.Unlock()
	if !running {
		return nil
	}
	cancel()
	<-o.done
	return nil
}

// Submit applies req on the Run goroutine and returns its result.
func (o *Orchestrator) Submit(ctx context.Context, req session.Request) error {
	reply := make(chan error, 1)
	select {
	case o.commands <- command{req: req, reply: reply}:
	case <-o.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel receiving every status change. Slow readers
// only see the latest status. Call the returned func to unsubscribe.
func (o *Orchestrator) Subscribe() (<-chan session.Status, func()) {
	ch := make(chan session.Status, 1)
	o.mu.Lock()
	o.subs[ch] = struct{}{}
	o.mu.Unlock()
	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if _, ok := o.subs[ch]; ok {
			delete(o.subs, ch)
			close(ch)
		}
	}
}

func (o *Orchestrator) tickC() <-chan time.Time {
	if o.ticker == nil {
		return nil
	}
	return o.ticker.C()
}

func (o *Orchestrator) subscribe(ctx context.Context) {
	if o.tracker == nil {
		return
	}
	events, err := o.tracker.Subscribe(ctx)
	if err != nil {
		o.logger.Printf("warning: telemetry unavailable: %v", err)
		return
	}
	o.events = events
}

// apply executes a user command.
func (o *Orchestrator) apply(ctx context.Context, req session.Request) error {
	var err error
	switch req.Command {
	case session.CommandStart:
		err = o.start(ctx)
	case session.CommandPause:
		_, err = o.machine.Pause()
	case session.CommandResume:
		_, err = o.machine.Resume()
	case session.CommandReset:
		o.machine.Reset()
		o.mech.OnSessionReset()
	case session.CommandSetDuration:
		_, err = o.machine.SetDuration(req.Seconds)
	case session.CommandUnfocused:
		o.unfocused(ctx)
		return nil
	default:
		err = fmt.Errorf("unknown command %q", req.Command)
	}
	if err != nil {
		return err
	}
	o.sync(ctx)
	return nil
}

// start allocates a session id, falling back to a local-only id when the
// session service is unreachable.
func (o *Orchestrator) start(ctx context.Context) error {
	if o.machine.State().Phase != session.PhaseIdle {
		return session.ErrNotIdle
	}
	s := session.Session{CreatedAt: o.now()}
	resp, err := o.sessions.StartSession(ctx)
	if err != nil {
		s.ID = o.newID()
		s.LocalOnly = true
		o.logger.Printf("warning: %v; continuing offline as %s", err, s.ID)
	} else {
		s.ID = resp.SessionID
	}
	if _, err := o.machine.Start(s); err != nil {
		return err
	}
	o.agg.Reset()
	o.mech.OnSessionReset()
	return nil
}

// tick handles one countdown second.
func (o *Orchestrator) tick(ctx context.Context) {
	if !o.machine.Running() {
		return
	}
	st := o.machine.State()
	known := o.agg.Fresh(o.now(), o.cfg.StaleFocus())
	o.mech.Tick(o.agg.CurrentlyFocused(), st.Phase == session.PhaseWorking, st.Paused || !known)

	switch o.machine.Tick() {
	case session.EventWorkComplete:
		o.completeWork(ctx)
	case session.EventBreakComplete:
		o.mech.OnSessionReset()
		o.notify("Break over", "Ready for another focus session?")
	}
	o.sync(ctx)
}

// completeWork reports the finished phase and enters the break. The break
// is always entered: a failed recommendation falls back to the configured
// default.
func (o *Orchestrator) completeWork(ctx context.Context) {
	st := o.machine.State()
	seconds := o.cfg.FallbackBreakSeconds

	switch {
	case st.Session == nil || st.Session.ID == "":
		o.logger.Printf("warning: %v; using a %ds break", api.ErrNoSessionID, seconds)
	case st.Session.LocalOnly:
		o.logger.Printf("session %s is offline; using a %ds break", st.Session.ID, seconds)
	default:
		id := st.Session.ID
		if _, err := o.sessions.EndSession(ctx, id, o.agg.CurrentFocusPercentage()); err != nil {
			o.logger.Printf("warning: %v", err)
		}
		got, err := o.breaks.RequestBreak(ctx, id)
		if err != nil {
			o.logger.Printf("warning: break recommendation failed: %v; using a %ds break", err, seconds)
		} else {
			seconds = got
		}
	}

	if _, err := o.machine.EnterBreak(seconds); err != nil {
		o.logger.Printf("enter break: %v", err)
		return
	}
	o.notify("Break ready", fmt.Sprintf("Work phase complete. Take %s.", formatMinutes(seconds)))
}

// unfocused routes a window-visibility loss to the alert room of the
// tracked session. The alert comes back as a telemetry event.
func (o *Orchestrator) unfocused(ctx context.Context) {
	if o.tracker == nil || o.tracking == "" {
		return
	}
	if err := o.tracker.SendAlert(ctx, o.tracking); err != nil {
		o.logger.Printf("warning: %v", err)
	}
}

// observe folds a telemetry event into the aggregator.
func (o *Orchestrator) observe(ev gaze.Event) {
	switch ev.Kind {
	case gaze.EventAlert:
		if err := o.notifier.Alert(ev.Message); err != nil {
			o.logger.Printf("alert: %v", err)
		}
	case gaze.EventGaze:
		st := o.machine.State()
		if st.Phase != session.PhaseWorking || st.Session == nil {
			return
		}
		if ev.SessionID != "" && ev.SessionID != st.Session.ID {
			return
		}
		if o.agg.Observe(ev.Sample) {
			o.publish(o.status())
		}
	}
}

// sync brings the ticker and telemetry in line with the machine state,
// then persists and publishes the new status.
func (o *Orchestrator) sync(ctx context.Context) {
	o.syncTicker()
	o.syncTracking(ctx)
	st := o.status()
	o.persist(st)
	o.publish(st)
}

// syncTicker keeps exactly one ticker while the countdown runs and none
// otherwise.
func (o *Orchestrator) syncTicker() {
	if o.machine.Running() {
		if o.ticker == nil {
			o.ticker = o.newTicker(time.Second)
		}
		return
	}
	if o.ticker != nil {
		o.ticker.Stop()
		o.ticker = nil
	}
}

// syncTracking asks for telemetry only while a working phase runs. Calls
// are issued on change.
func (o *Orchestrator) syncTracking(ctx context.Context) {
	st := o.machine.State()
	want := ""
	if st.Phase == session.PhaseWorking && !st.Paused && !st.BreakPending && st.Session != nil {
		want = st.Session.ID
	}
	if want == o.tracking {
		return
	}
	o.tracking = want
	if o.tracker == nil {
		return
	}
	if want == "" {
		if err := o.tracker.StopTracking(ctx); err != nil {
			o.logger.Printf("warning: %v", err)
		}
		return
	}
	if err := o.tracker.StartTracking(ctx, want); err != nil {
		o.logger.Printf("warning: %v", err)
	}
}

func (o *Orchestrator) status() session.Status {
	agg := o.agg.Aggregate()
	return session.Status{
		State:           o.machine.State(),
		Vitality:        int(o.mech.Vitality()),
		Dead:            o.mech.Dead(),
		FocusPercentage: agg.Percentage,
		Focused:         agg.Focused,
		Samples:         agg.Samples,
		UpdatedAt:       o.now(),
	}
}

func (o *Orchestrator) persist(st session.Status) {
	if o.store == nil {
		return
	}
	if err := o.store.Save(&st); err != nil {
		o.logger.Printf("warning: %v", err)
	}
}

func (o *Orchestrator) publish(st session.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for ch := range o.subs {
		select {
		case ch <- st:
		default:
			// Replace the unread status with the latest one.
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}

// restore rehydrates a persisted session. It comes back paused; a work
// phase that had already run out goes straight to its break.
func (o *Orchestrator) restore(ctx context.Context) {
	if o.store == nil {
		return
	}
	st, err := o.store.Load()
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			o.logger.Printf("warning: %v", err)
		}
		return
	}
	o.machine.Restore(st.State)
	if o.machine.State().Phase == session.PhaseIdle {
		return
	}
	o.mech.Restore(health.Vitality(st.Vitality), st.Dead)
	o.agg.Restore(focus.Aggregate{Percentage: st.FocusPercentage, Focused: st.Focused, Samples: st.Samples})
	if o.machine.State().BreakPending {
		o.logger.Printf("restored session %s with its work phase complete", st.Session.ID)
		o.completeWork(ctx)
		return
	}
	o.logger.Printf("restored %s session %s (paused)", st.Phase, st.Session.ID)
}

// shutdown releases the tick source and the telemetry service.
func (o *Orchestrator) shutdown() {
	if o.ticker != nil {
		o.ticker.Stop()
		o.ticker = nil
	}
	o.persist(o.status())

	if o.tracker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.RequestTimeout())
		defer cancel()
		if err := o.tracker.StopTracking(ctx); err != nil {
			o.logger.Printf("warning: %v", err)
		}
		if err := o.tracker.Close(); err != nil {
			o.logger.Printf("warning: close telemetry: %v", err)
		}
	}
	o.tracking = ""

	o.mu.Lock()
	defer o.mu.Unlock()
	for ch := range o.subs {
		delete(o.subs, ch)
		close(ch)
	}
}

func (o *Orchestrator) onDeath() {
	o.logger.Printf("%s has fainted", o.petName)
	if err := o.notifier.Alert(o.petName + " has fainted"); err != nil {
		o.logger.Printf("alert: %v", err)
	}
}

func (o *Orchestrator) notify(title, body string) {
	if err := o.notifier.Notify(title, body); err != nil {
		o.logger.Printf("notify: %v", err)
	}
}

func formatMinutes(seconds int) string {
	if seconds%60 == 0 {
		m := seconds / 60
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return fmt.Sprintf("%ds", seconds)
}
