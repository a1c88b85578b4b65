// Package retry applies backoff to transient failures of remote content sources.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/normalization"
)

// Mode selects how the delay grows between attempts.
type Mode string

const (
	ModeFixed       Mode = "fixed"
	ModeLinear      Mode = "linear"
	ModeExponential Mode = "exponential"
)

var modeNormalizer = normalization.NewNormalizer("retry backoff", map[string]Mode{
	"fixed":       ModeFixed,
	"linear":      ModeLinear,
	"exponential": ModeExponential,
}, ModeLinear)

// ParseMode parses a configured backoff mode; empty selects linear.
func ParseMode(s string) (Mode, error) { return modeNormalizer.Parse(s) }

// Policy holds retry/backoff settings. It is immutable after construction.
type Policy struct {
	Mode       Mode
	Initial    time.Duration // base delay
	Max        time.Duration // cap for growth
	MaxRetries int           // retries after the first failure
}

// DefaultPolicy returns linear backoff, 1s initial, 30s cap, 2 retries.
func DefaultPolicy() Policy {
	return Policy{Mode: ModeLinear, Initial: time.Second, Max: 30 * time.Second, MaxRetries: 2}
}

// NewPolicy builds a policy from raw config fields; zero or invalid values fall back to defaults.
func NewPolicy(mode Mode, initial, maxDelay time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	switch mode {
	case ModeFixed, ModeLinear, ModeExponential:
		p.Mode = mode
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// Delay returns the backoff before retry number retryCount (1-based).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case ModeFixed:
		return p.Initial
	case ModeExponential:
		d = p.Initial * (1 << (retryCount - 1))
	default:
		d = time.Duration(retryCount) * p.Initial
	}
	if d > p.Max || d <= 0 {
		return p.Max
	}
	return d
}

// Validate reports a policy that cannot be applied.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// Retrier runs operations under a Policy.
type Retrier struct {
	policy Policy
	clock  clockwork.Clock
	logger *slog.Logger
}

// New creates a retrier using the real clock.
func New(p Policy) *Retrier {
	return &Retrier{policy: p, clock: clockwork.NewRealClock(), logger: slog.Default()}
}

// WithClock injects the clock used for sleeping between attempts.
func (r *Retrier) WithClock(c clockwork.Clock) *Retrier {
	if c != nil {
		r.clock = c
	}
	return r
}

// WithLogger sets a custom logger.
func (r *Retrier) WithLogger(logger *slog.Logger) *Retrier {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Do calls fn until it succeeds, returns a non-transient error, or the retry
// budget is spent. Only classified errors marked transient are retried.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= r.policy.MaxRetries || !transient(err) {
			return err
		}
		delay := r.policy.Delay(attempt + 1)
		r.logger.Warn("Retrying after transient failure",
			slog.String("operation", op),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(delay):
		}
	}
}

func transient(err error) bool {
	classified, ok := ferrors.AsClassified(err)
	return ok && classified.IsTransient()
}
