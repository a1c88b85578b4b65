// Package pipeline runs the ordered plugin list that populates a build's context.
//
// Plugins execute strictly sequentially against one shared sitectx.Draft; a
// plugin observes every key written by the plugins before it. When the last
// plugin returns the draft is frozen and handed to the render phase. Any plugin
// failure aborts the rest of the pipeline.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/sitectx"
)

// Plugin is one pipeline stage. Run may write any number of keys into draft
// and may use runner to execute a nested pipeline over a sub-list of plugins.
type Plugin interface {
	Name() string
	Run(ctx context.Context, draft *sitectx.Draft, runner *Runner) error
}

// RunFunc is the function form of Plugin.Run.
type RunFunc func(ctx context.Context, draft *sitectx.Draft, runner *Runner) error

type funcPlugin struct {
	name string
	fn   RunFunc
}

func (p funcPlugin) Name() string { return p.name }

func (p funcPlugin) Run(ctx context.Context, draft *sitectx.Draft, runner *Runner) error {
	return p.fn(ctx, draft, runner)
}

// Func adapts a function into a named Plugin.
func Func(name string, fn RunFunc) Plugin {
	return funcPlugin{name: name, fn: fn}
}

// Runner executes plugin lists. A single Runner is shared by the top-level
// pipeline and every nested pipeline started from it.
type Runner struct {
	logger   *slog.Logger
	recorder metrics.Recorder
}

// NewRunner creates a runner that logs to slog.Default and records nothing.
func NewRunner() *Runner {
	return &Runner{
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
	}
}

// WithLogger sets a custom logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithRecorder sets the metrics recorder.
func (r *Runner) WithRecorder(recorder metrics.Recorder) *Runner {
	if recorder != nil {
		r.recorder = recorder
	}
	return r
}

// Logger returns the runner's logger so plugins can log with build-scoped fields.
func (r *Runner) Logger() *slog.Logger { return r.logger }

// Recorder returns the runner's metrics recorder.
func (r *Runner) Recorder() metrics.Recorder { return r.recorder }

// Run executes plugins in order over a fresh draft seeded with initial and
// returns the frozen result. Cancellation is honored between plugins only.
func (r *Runner) Run(ctx context.Context, plugins []Plugin, initial map[string]any) (*sitectx.Frozen, error) {
	draft := sitectx.NewDraft(initial)

	for _, p := range plugins {
		if err := ctx.Err(); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "pipeline canceled").
				Fatal().
				WithContext(logfields.KeyPlugin, p.Name()).
				Build()
		}

		t0 := time.Now()
		err := p.Run(ctx, draft, r)
		dur := time.Since(t0)
		r.recorder.ObservePluginDuration(p.Name(), dur)

		if err != nil {
			r.recorder.IncPluginResult(p.Name(), metrics.ResultFailed)
			r.logger.Error("Plugin failed",
				logfields.Plugin(p.Name()),
				logfields.DurationMS(float64(dur.Milliseconds())),
				logfields.Error(err))
			return nil, classify(p.Name(), err)
		}

		r.recorder.IncPluginResult(p.Name(), metrics.ResultSuccess)
		r.logger.Debug("Plugin complete",
			logfields.Plugin(p.Name()),
			logfields.DurationMS(float64(dur.Milliseconds())),
			slog.Int("keys", draft.Len()))
	}

	return draft.Freeze(), nil
}

// classify keeps errors that already carry a build category (for example a
// corrupt cache entry surfacing from a nested pipeline) and wraps everything
// else as a plugin failure.
func classify(plugin string, err error) error {
	if ferrors.IsBuildFailure(err) {
		return err
	}
	return ferrors.WrapError(err, ferrors.CategoryPlugin, "plugin failed").
		Fatal().
		WithContext(logfields.KeyPlugin, plugin).
		Build()
}
