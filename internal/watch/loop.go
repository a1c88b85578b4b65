package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
)

// DefaultDebounce is the quiet window applied to bursts of change events.
const DefaultDebounce = 300 * time.Millisecond

// DefaultMaxDelay bounds how long a continuous burst can postpone a rebuild.
const DefaultMaxDelay = 5 * time.Second

// Trigger names used for logging and metrics.
const (
	TriggerChange  = "change"
	TriggerRefresh = "refresh"
)

// BuildFunc runs one build. Its error is logged and never stops the loop.
type BuildFunc func(ctx context.Context, trigger string) error

// Loop serializes rebuilds requested through Notify and Trigger.
type Loop struct {
	build    BuildFunc
	debounce time.Duration
	maxDelay time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	recorder metrics.Recorder

	events chan string

	mu       sync.Mutex
	quiet    clockwork.Timer
	deadline clockwork.Timer
	pending  bool
	machine  Machine
}

// NewLoop creates a loop with the default debounce window.
func NewLoop(build BuildFunc) *Loop {
	return &Loop{
		build:    build,
		debounce: DefaultDebounce,
		maxDelay: DefaultMaxDelay,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
		events:   make(chan string, 1),
	}
}

// WithDebounce sets the quiet window. Zero disables debouncing.
func (l *Loop) WithDebounce(d time.Duration) *Loop {
	if d >= 0 {
		l.debounce = d
	}
	return l
}

// WithMaxDelay caps how long after the first change of a burst the rebuild
// fires, even if changes keep arriving. Zero leaves bursts unbounded.
func (l *Loop) WithMaxDelay(d time.Duration) *Loop {
	if d >= 0 {
		l.maxDelay = d
	}
	return l
}

// WithClock injects the clock driving the debounce timer.
func (l *Loop) WithClock(c clockwork.Clock) *Loop {
	if c != nil {
		l.clock = c
	}
	return l
}

// WithLogger sets a custom logger.
func (l *Loop) WithLogger(logger *slog.Logger) *Loop {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// WithRecorder sets the metrics recorder.
func (l *Loop) WithRecorder(recorder metrics.Recorder) *Loop {
	if recorder != nil {
		l.recorder = recorder
	}
	return l
}

// State returns the current machine state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.machine.State()
}

// Notify reports a source change. Calls within the debounce window collapse
// into one event, which fires no later than the max delay after the first
// call of the burst. Notify never blocks.
func (l *Loop) Notify() {
	if l.debounce <= 0 {
		l.post(TriggerChange)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = true
	if l.quiet != nil {
		l.quiet.Stop()
	}
	l.quiet = l.clock.AfterFunc(l.debounce, l.flush)
	if l.deadline == nil && l.maxDelay > 0 {
		l.deadline = l.clock.AfterFunc(l.maxDelay, l.flush)
	}
}

// flush ends the current burst. Whichever of the quiet and deadline timers
// fires second finds nothing pending.
func (l *Loop) flush() {
	l.mu.Lock()
	pending := l.pending
	l.stopTimersLocked()
	l.mu.Unlock()
	if pending {
		l.post(TriggerChange)
	}
}

func (l *Loop) stopTimersLocked() {
	if l.quiet != nil {
		l.quiet.Stop()
		l.quiet = nil
	}
	if l.deadline != nil {
		l.deadline.Stop()
		l.deadline = nil
	}
	l.pending = false
}

// Trigger requests a rebuild immediately, bypassing the debounce window.
func (l *Loop) Trigger(reason string) {
	l.post(reason)
}

func (l *Loop) post(trigger string) {
	select {
	case l.events <- trigger:
	default:
		// An undelivered event is already pending; it covers this one.
	}
}

// Run processes events until ctx is done. Builds execute one at a time on a
// single worker goroutine. Run waits for an in-flight build before returning;
// builds see a context that shutdown does not cancel.
func (l *Loop) Run(ctx context.Context) error {
	start := make(chan string)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for trigger := range start {
			l.runBuild(ctx, trigger)
			done <- struct{}{}
		}
	}()

	defer func() {
		l.mu.Lock()
		l.stopTimersLocked()
		busy := l.machine.State() != Idle
		l.mu.Unlock()
		close(start)
		if busy {
			<-done
		}
		wg.Wait()
	}()

	lastTrigger := TriggerChange
	for {
		select {
		case <-ctx.Done():
			return nil
		case trigger := <-l.events:
			lastTrigger = trigger
			l.mu.Lock()
			action := l.machine.OnChange()
			state := l.machine.State()
			l.mu.Unlock()
			if action == StartBuild {
				start <- trigger
			} else {
				l.logger.Debug("Build running; rebuild queued", slog.String("state", state.String()), logfields.Trigger(trigger))
			}
		case <-done:
			l.mu.Lock()
			action := l.machine.OnBuildDone()
			l.mu.Unlock()
			if action == StartBuild {
				start <- lastTrigger
			}
		}
	}
}

func (l *Loop) runBuild(ctx context.Context, trigger string) {
	l.recorder.IncRebuild(trigger)
	l.logger.Info("Rebuilding site", logfields.Trigger(trigger))
	if err := l.build(context.WithoutCancel(ctx), trigger); err != nil {
		l.logger.Warn("Rebuild failed", logfields.Trigger(trigger), logfields.Error(err))
	}
}
