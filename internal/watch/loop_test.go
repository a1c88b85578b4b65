package watch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatedBuild struct {
	started chan string
	release chan error
	count   atomic.Int32
	active  atomic.Int32
	overlap atomic.Bool
}

func newGatedBuild() *gatedBuild {
	return &gatedBuild{started: make(chan string, 16), release: make(chan error)}
}

func (g *gatedBuild) build(_ context.Context, trigger string) error {
	if g.active.Add(1) > 1 {
		g.overlap.Store(true)
	}
	defer g.active.Add(-1)
	g.count.Add(1)
	g.started <- trigger
	return <-g.release
}

func startLoop(t *testing.T, l *Loop) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
	})
}

func waitStarted(t *testing.T, g *gatedBuild) string {
	t.Helper()
	select {
	case trig := <-g.started:
		return trig
	case <-time.After(2 * time.Second):
		t.Fatal("build did not start")
		return ""
	}
}

func TestLoop_CoalescesChangesDuringBuild(t *testing.T) {
	g := newGatedBuild()
	l := NewLoop(g.build).WithDebounce(0)
	startLoop(t, l)

	l.Notify()
	waitStarted(t, g)

	for range 5 {
		l.Notify()
	}
	require.Eventually(t, func() bool { return l.State() == BuildingQueued }, time.Second, 5*time.Millisecond)

	g.release <- nil
	waitStarted(t, g)
	g.release <- nil

	require.Eventually(t, func() bool { return l.State() == Idle }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return g.count.Load() > 2 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.False(t, g.overlap.Load())
}

func TestLoop_BuildErrorKeepsLoopAlive(t *testing.T) {
	g := newGatedBuild()
	l := NewLoop(g.build).WithDebounce(0)
	startLoop(t, l)

	l.Notify()
	waitStarted(t, g)
	g.release <- errors.New("plugin failed")
	require.Eventually(t, func() bool { return l.State() == Idle }, time.Second, 5*time.Millisecond)

	l.Notify()
	waitStarted(t, g)
	g.release <- nil
	assert.EqualValues(t, 2, g.count.Load())
}

func TestLoop_DebounceCollapsesBurst(t *testing.T) {
	g := newGatedBuild()
	clock := clockwork.NewFakeClock()
	l := NewLoop(g.build).WithClock(clock)
	startLoop(t, l)

	for range 3 {
		l.Notify()
		clock.Advance(100 * time.Millisecond)
	}
	assert.Zero(t, g.count.Load(), "quiet window not yet elapsed")

	clock.Advance(DefaultDebounce)
	assert.Equal(t, TriggerChange, waitStarted(t, g))
	g.release <- nil

	require.Eventually(t, func() bool { return l.State() == Idle }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, g.count.Load())
}

func TestLoop_TriggerBypassesDebounce(t *testing.T) {
	g := newGatedBuild()
	l := NewLoop(g.build).WithClock(clockwork.NewFakeClock())
	startLoop(t, l)

	l.Trigger(TriggerRefresh)
	assert.Equal(t, TriggerRefresh, waitStarted(t, g))
	g.release <- nil
}

func TestLoop_ShutdownWaitsForRunningBuild(t *testing.T) {
	g := newGatedBuild()
	l := NewLoop(g.build).WithDebounce(0)

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	l.Notify()
	waitStarted(t, g)
	cancel()

	select {
	case <-errCh:
		t.Fatal("Run returned while a build was running")
	case <-time.After(50 * time.Millisecond):
	}

	g.release <- nil
	require.NoError(t, <-errCh)
}

func TestLoop_MaxDelayBoundsContinuousChanges(t *testing.T) {
	var count atomic.Int32
	clock := clockwork.NewFakeClock()
	l := NewLoop(func(context.Context, string) error {
		count.Add(1)
		return nil
	}).WithClock(clock).WithDebounce(300 * time.Millisecond).WithMaxDelay(time.Second)
	startLoop(t, l)

	// A change every 200ms never leaves a 300ms quiet gap.
	for range 15 {
		l.Notify()
		clock.Advance(200 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return count.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestLoop_WithoutMaxDelayWaitsForQuiet(t *testing.T) {
	var count atomic.Int32
	clock := clockwork.NewFakeClock()
	l := NewLoop(func(context.Context, string) error {
		count.Add(1)
		return nil
	}).WithClock(clock).WithDebounce(300 * time.Millisecond).WithMaxDelay(0)
	startLoop(t, l)

	for range 15 {
		l.Notify()
		clock.Advance(200 * time.Millisecond)
	}
	assert.Never(t, func() bool { return count.Load() > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	clock.Advance(300 * time.Millisecond)
	require.Eventually(t, func() bool { return count.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestLoop_ShutdownDoesNotCancelRunningBuild(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	seen := make(chan error, 1)
	l := NewLoop(func(ctx context.Context, _ string) error {
		close(started)
		<-release
		seen <- ctx.Err()
		return nil
	}).WithDebounce(0)

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	l.Trigger(TriggerRefresh)
	<-started
	cancel()
	close(release)

	require.NoError(t, <-seen)
	require.NoError(t, <-errCh)
}
