package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, ModeLinear, p.Mode)
	assert.Equal(t, time.Second, p.Initial)
	assert.Equal(t, 30*time.Second, p.Max)
	assert.Equal(t, 2, p.MaxRetries)
	require.NoError(t, p.Validate())
}

func TestNewPolicy_ClampsInitial(t *testing.T) {
	p := NewPolicy(ModeFixed, 5*time.Second, 2*time.Second, 5)
	assert.Equal(t, 2*time.Second, p.Initial)
	assert.Equal(t, ModeFixed, p.Mode)
	assert.Equal(t, 5, p.MaxRetries)

	p = NewPolicy("bogus", 0, 0, -1)
	assert.Equal(t, DefaultPolicy(), p)
}

func TestDelay(t *testing.T) {
	ms := time.Millisecond
	tests := []struct {
		mode    Mode
		attempt int
		want    time.Duration
	}{
		{ModeFixed, 3, 100 * ms},
		{ModeLinear, 1, 100 * ms},
		{ModeLinear, 2, 200 * ms},
		{ModeLinear, 3, 250 * ms},
		{ModeExponential, 1, 100 * ms},
		{ModeExponential, 2, 200 * ms},
		{ModeExponential, 3, 250 * ms},
		{ModeLinear, 0, 0},
	}
	for _, tt := range tests {
		p := NewPolicy(tt.mode, 100*ms, 250*ms, 5)
		assert.Equal(t, tt.want, p.Delay(tt.attempt), "%s attempt %d", tt.mode, tt.attempt)
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("EXPONENTIAL")
	require.NoError(t, err)
	assert.Equal(t, ModeExponential, m)

	_, err = ParseMode("random")
	assert.Error(t, err)
}

func TestRetrier_RetriesTransientErrors(t *testing.T) {
	calls := 0
	r := New(NewPolicy(ModeFixed, time.Millisecond, time.Millisecond, 3))

	err := r.Do(t.Context(), "fetch", func(context.Context) error {
		calls++
		if calls < 3 {
			return ferrors.NetworkError("503").Retryable().Build()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_StopsOnPermanentError(t *testing.T) {
	calls := 0
	r := New(DefaultPolicy())
	err := r.Do(t.Context(), "fetch", func(context.Context) error {
		calls++
		return errors.New("401 unauthorized")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_GivesUpAfterBudget(t *testing.T) {
	calls := 0
	r := New(NewPolicy(ModeFixed, time.Millisecond, time.Millisecond, 2))
	err := r.Do(t.Context(), "fetch", func(context.Context) error {
		calls++
		return ferrors.NetworkError("timeout").Retryable().Build()
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_WaitsOnClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(NewPolicy(ModeFixed, time.Minute, time.Minute, 1)).WithClock(clock)

	done := make(chan error, 1)
	calls := 0
	go func() {
		done <- r.Do(context.Background(), "fetch", func(context.Context) error {
			calls++
			if calls == 1 {
				return ferrors.NetworkError("busy").Retryable().Build()
			}
			return nil
		})
	}()

	require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
	clock.Advance(time.Minute)
	require.NoError(t, <-done)
}
