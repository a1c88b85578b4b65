package target

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/fsutil"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/sitectx"
)

// maxDepth bounds generator recursion so a generator returning itself fails
// instead of overflowing the stack.
const maxDepth = 64

// RenderFunc renders the template identified by templateID with data.
type RenderFunc func(templateID string, data map[string]any) (string, error)

// Summary describes one render phase.
type Summary struct {
	Rendered int
	Skipped  int
	// Written lists destination paths in render order.
	Written []string
}

// Renderer walks a target tree, rendering and writing each enabled target.
type Renderer struct {
	render   RenderFunc
	writer   fsutil.Writer
	logger   *slog.Logger
	recorder metrics.Recorder
}

// NewRenderer creates a renderer over the given template engine and writer.
func NewRenderer(render RenderFunc, writer fsutil.Writer) *Renderer {
	return &Renderer{
		render:   render,
		writer:   writer,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
	}
}

// WithLogger sets a custom logger.
func (r *Renderer) WithLogger(logger *slog.Logger) *Renderer {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithRecorder sets the metrics recorder.
func (r *Renderer) WithRecorder(recorder metrics.Recorder) *Renderer {
	if recorder != nil {
		r.recorder = recorder
	}
	return r
}

// RenderTargets renders tree against c. The first render or write failure
// stops the phase; targets already written stay on disk and are listed in
// the returned Summary.
func (r *Renderer) RenderTargets(ctx context.Context, tree []Node, c *sitectx.Frozen) (Summary, error) {
	var sum Summary
	err := walk(tree, c, 0, func(t Target) error {
		if err := ctx.Err(); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryRuntime, "render canceled").Build()
		}
		if !t.IsEnabled() {
			sum.Skipped++
			r.recorder.IncTargetResult(metrics.TargetSkipped)
			r.logger.Debug("Target disabled", logfields.Template(t.Template), logfields.Dest(t.Dest))
			return nil
		}
		if err := r.renderOne(t, c); err != nil {
			r.recorder.IncTargetResult(metrics.TargetFailed)
			return err
		}
		sum.Rendered++
		sum.Written = append(sum.Written, t.Dest)
		r.recorder.IncTargetResult(metrics.TargetRendered)
		return nil
	})
	return sum, err
}

func (r *Renderer) renderOne(t Target, c *sitectx.Frozen) error {
	t0 := time.Now()
	text, err := r.render(t.Template, SubContext(t, c))
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRender, "render target").
			Fatal().
			WithContext(logfields.KeyTemplate, t.Template).
			WithContext(logfields.KeyDest, t.Dest).
			Build()
	}
	if err := r.writer.WriteFile(t.Dest, []byte(text)); err != nil {
		return ferrors.WriteError("write target").
			WithCause(err).
			WithContext(logfields.KeyTemplate, t.Template).
			WithContext(logfields.KeyDest, t.Dest).
			Build()
	}
	r.logger.Debug("Rendered target",
		logfields.Template(t.Template),
		logfields.Dest(t.Dest),
		logfields.DurationMS(float64(time.Since(t0).Milliseconds())))
	return nil
}

// Resolve flattens tree into its targets in render order without rendering.
// Disabled targets are included; callers check Target.IsEnabled.
func Resolve(tree []Node, c *sitectx.Frozen) ([]Target, error) {
	var out []Target
	err := walk(tree, c, 0, func(t Target) error {
		out = append(out, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func walk(nodes []Node, c *sitectx.Frozen, depth int, visit func(Target) error) error {
	if depth > maxDepth {
		return ferrors.RenderError("target tree too deep").
			WithContext("max_depth", maxDepth).
			Build()
	}
	for i, n := range nodes {
		switch node := n.(type) {
		case Target:
			if err := visit(node); err != nil {
				return err
			}
		case Group:
			if err := walk(node, c, depth+1, visit); err != nil {
				return err
			}
		case Generator:
			if node == nil {
				continue
			}
			derived, err := node(c)
			if err != nil {
				return ferrors.WrapError(err, ferrors.CategoryRender, "target derivation failed").
					Fatal().
					WithContext("node", fmt.Sprintf("%d@%d", i, depth)).
					Build()
			}
			if err := walk(derived, c, depth+1, visit); err != nil {
				return err
			}
		case nil:
			continue
		}
	}
	return nil
}
