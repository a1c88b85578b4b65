// Package builder orchestrates one site build: run the plugin pipeline,
// freeze the resulting context, then resolve and render the target tree.
// In watch mode the same build runs on every relevant source change.
package builder

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/fsutil"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/notify"
	"git.home.luguber.info/inful/sitebuilder/internal/pipeline"
	"git.home.luguber.info/inful/sitebuilder/internal/target"
)

// Status is the outcome of a build.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// IsSuccess reports whether the build completed.
func (s Status) IsSuccess() bool { return s == StatusSuccess }

// Phase names the stage a build failed in.
type Phase string

const (
	PhasePlugins Phase = "plugins"
	PhaseRender  Phase = "render"
)

// Report summarizes one build.
type Report struct {
	BuildID   string
	Trigger   string
	Status    Status
	Phase     Phase
	StartTime time.Time
	Duration  time.Duration
	// ContextKeys lists the keys of the frozen context.
	ContextKeys []string
	Rendered    int
	Skipped     int
	Written     []string
	Err         error
}

// TemplateLoader returns the render function for one build. It is called
// after the pipeline succeeds so template edits are picked up in watch mode.
type TemplateLoader func() (target.RenderFunc, error)

// Options wires a Builder.
type Options struct {
	// Prepare runs ahead of Plugins in a build and has side effects on the
	// output tree, such as cleaning it or copying static assets. Targets
	// skips it.
	Prepare   []pipeline.Plugin
	Plugins   []pipeline.Plugin
	Targets   []target.Node
	Initial   map[string]any
	Templates TemplateLoader
	Writer    fsutil.Writer

	Logger   *slog.Logger
	Recorder metrics.Recorder
	Notifier notify.Notifier
	Clock    clockwork.Clock
}

// Builder runs builds. Builds must not overlap; the watch loop serializes them.
type Builder struct {
	opts Options
}

// New creates a Builder, filling unset collaborators with defaults.
func New(opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Noop{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Builder{opts: opts}
}

// Build runs the pipeline and renders every target. A plugin failure stops
// the build before any target is rendered.
func (b *Builder) Build(ctx context.Context, trigger string) (Report, error) {
	rep := Report{
		BuildID:   uuid.NewString(),
		Trigger:   trigger,
		StartTime: b.opts.Clock.Now(),
	}
	logger := b.opts.Logger.With(logfields.BuildID(rep.BuildID))
	logger.Info("Build started", logfields.Trigger(trigger))

	err := b.build(ctx, logger, &rep)
	rep.Duration = b.opts.Clock.Since(rep.StartTime)
	rep.Err = err
	switch {
	case err == nil:
		rep.Status = StatusSuccess
	case ctx.Err() != nil:
		rep.Status = StatusCanceled
	default:
		rep.Status = StatusFailed
	}

	b.opts.Recorder.ObserveBuildDuration(rep.Duration)
	if rep.Status.IsSuccess() {
		b.opts.Recorder.IncBuildOutcome(metrics.BuildOutcomeSuccess)
		logger.Info("Build completed",
			slog.Int("rendered", rep.Rendered),
			slog.Int("skipped", rep.Skipped),
			logfields.DurationMS(float64(rep.Duration.Milliseconds())))
	} else {
		b.opts.Recorder.IncBuildOutcome(metrics.BuildOutcomeFailed)
		logger.Error("Build failed",
			slog.String("phase", string(rep.Phase)),
			slog.String("status", string(rep.Status)),
			logfields.Error(err))
	}
	b.publish(logger, rep)
	return rep, err
}

func (b *Builder) build(ctx context.Context, logger *slog.Logger, rep *Report) error {
	rep.Phase = PhasePlugins
	runner := pipeline.NewRunner().WithLogger(logger).WithRecorder(b.opts.Recorder)
	plugins := make([]pipeline.Plugin, 0, len(b.opts.Prepare)+len(b.opts.Plugins))
	plugins = append(plugins, b.opts.Prepare...)
	plugins = append(plugins, b.opts.Plugins...)
	frozen, err := runner.Run(ctx, plugins, b.opts.Initial)
	if err != nil {
		return err
	}
	rep.ContextKeys = frozen.Keys()

	rep.Phase = PhaseRender
	if b.opts.Templates == nil {
		return ferrors.InternalError("no template loader configured").Build()
	}
	render, err := b.opts.Templates()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRender, "failed to load templates").Fatal().Build()
	}
	renderer := target.NewRenderer(render, b.opts.Writer).
		WithLogger(logger).
		WithRecorder(b.opts.Recorder)
	sum, err := renderer.RenderTargets(ctx, b.opts.Targets, frozen)
	rep.Rendered = sum.Rendered
	rep.Skipped = sum.Skipped
	rep.Written = sum.Written
	if err != nil {
		return err
	}
	rep.Phase = ""
	return nil
}

func (b *Builder) publish(logger *slog.Logger, rep Report) {
	ev := notify.Event{
		BuildID:    rep.BuildID,
		Outcome:    string(rep.Status),
		Trigger:    rep.Trigger,
		StartedAt:  rep.StartTime,
		DurationMS: rep.Duration.Milliseconds(),
		Rendered:   rep.Rendered,
		Skipped:    rep.Skipped,
	}
	if rep.Err != nil {
		ev.Error = rep.Err.Error()
	}
	// The build context may already be canceled; delivery gets its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.opts.Notifier.Notify(ctx, ev); err != nil {
		logger.Warn("Build notification failed", logfields.Error(err))
	}
}

// Targets resolves the target tree against the context produced by the
// data plugins, without rendering or touching the output tree.
func (b *Builder) Targets(ctx context.Context) ([]target.Target, error) {
	runner := pipeline.NewRunner().WithLogger(b.opts.Logger).WithRecorder(b.opts.Recorder)
	frozen, err := runner.Run(ctx, b.opts.Plugins, b.opts.Initial)
	if err != nil {
		return nil, err
	}
	return target.Resolve(b.opts.Targets, frozen)
}

// Close releases the notifier.
func (b *Builder) Close() error {
	return b.opts.Notifier.Close()
}
