package builder

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/notify"
	"git.home.luguber.info/inful/sitebuilder/internal/pipeline"
	"git.home.luguber.info/inful/sitebuilder/internal/sitectx"
	"git.home.luguber.info/inful/sitebuilder/internal/target"
	"git.home.luguber.info/inful/sitebuilder/internal/watch"
)

type memWriter struct {
	mu    sync.Mutex
	files map[string]string
}

func newMemWriter() *memWriter { return &memWriter{files: map[string]string{}} }

func (w *memWriter) WriteFile(dest string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[dest] = string(data)
	return nil
}

func (w *memWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.files)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func jsonTemplates() TemplateLoader {
	return func() (target.RenderFunc, error) {
		return func(id string, data map[string]any) (string, error) {
			b, err := json.Marshal(data)
			return id + ":" + string(b), err
		}, nil
	}
}

func TestBuild_RendersTargetsFromPipelineContext(t *testing.T) {
	w := newMemWriter()
	n := &recordingNotifier{}
	b := New(Options{
		Plugins: []pipeline.Plugin{
			pipeline.Set("title", "Home"),
			pipeline.Set("pages", []any{map[string]any{"slug": "x"}}),
		},
		Targets: []target.Node{
			target.Target{Template: "index.html", Dest: "index.html", Include: target.IncludeKeys("title")},
			target.Target{Template: "off.html", Dest: "off.html", Enabled: target.Bool(false)},
		},
		Initial:   map[string]any{"isDevelopment": true},
		Templates: jsonTemplates(),
		Writer:    w,
		Notifier:  n,
	})

	rep, err := b.Build(t.Context(), "manual")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, rep.Status)
	assert.NotEmpty(t, rep.BuildID)
	assert.Equal(t, []string{"isDevelopment", "pages", "title"}, rep.ContextKeys)
	assert.Equal(t, 1, rep.Rendered)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, `index.html:{"title":"Home"}`, w.files["index.html"])

	require.Len(t, n.events, 1)
	assert.Equal(t, rep.BuildID, n.events[0].BuildID)
	assert.Equal(t, "success", n.events[0].Outcome)
	assert.Equal(t, "manual", n.events[0].Trigger)
}

func TestBuild_PluginFailureRendersNothing(t *testing.T) {
	w := newMemWriter()
	n := &recordingNotifier{}
	loaded := false
	b := New(Options{
		Plugins: []pipeline.Plugin{
			pipeline.Func("events", func(context.Context, *sitectx.Draft, *pipeline.Runner) error {
				return errors.New("upstream down")
			}),
		},
		Targets: []target.Node{target.Target{Template: "a", Dest: "a"}},
		Templates: func() (target.RenderFunc, error) {
			loaded = true
			return jsonTemplates()()
		},
		Writer:   w,
		Notifier: n,
	})

	rep, err := b.Build(t.Context(), "change")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryPlugin))
	assert.Equal(t, StatusFailed, rep.Status)
	assert.Equal(t, PhasePlugins, rep.Phase)
	assert.False(t, loaded, "templates are not loaded after a plugin failure")
	assert.Zero(t, w.count())

	require.Len(t, n.events, 1)
	assert.Equal(t, "failed", n.events[0].Outcome)
	assert.Contains(t, n.events[0].Error, "upstream down")
}

func TestBuild_TemplateLoadFailureIsRenderError(t *testing.T) {
	b := New(Options{
		Targets: []target.Node{target.Target{Template: "a", Dest: "a"}},
		Templates: func() (target.RenderFunc, error) {
			return nil, errors.New("parse error")
		},
		Writer: newMemWriter(),
	})
	rep, err := b.Build(t.Context(), "change")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryRender))
	assert.Equal(t, PhaseRender, rep.Phase)
}

func TestBuild_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	b := New(Options{
		Plugins:   []pipeline.Plugin{pipeline.Set("a", 1)},
		Templates: jsonTemplates(),
		Writer:    newMemWriter(),
	})
	rep, err := b.Build(ctx, "change")
	require.Error(t, err)
	assert.Equal(t, StatusCanceled, rep.Status)
}

func TestTargets_SkipsPreparePlugins(t *testing.T) {
	prepared := false
	b := New(Options{
		Prepare: []pipeline.Plugin{pipeline.Func("clean", func(context.Context, *sitectx.Draft, *pipeline.Runner) error {
			prepared = true
			return nil
		})},
		Plugins: []pipeline.Plugin{pipeline.Set("pages", []any{
			map[string]any{"slug": "x"},
			map[string]any{"slug": "y"},
		})},
		Targets: []target.Node{
			target.Target{Template: "index.html", Dest: "index.html"},
			target.Generator(func(c *sitectx.Frozen) ([]target.Node, error) {
				pages, _ := c.Lookup("pages")
				var out []target.Node
				for _, p := range pages.([]any) {
					slug := p.(map[string]any)["slug"].(string)
					out = append(out, target.Target{Template: "page.html", Dest: slug + "/index.html"})
				}
				return out, nil
			}),
		},
	})

	targets, err := b.Targets(t.Context())
	require.NoError(t, err)
	require.Len(t, targets, 3)
	assert.Equal(t, "y/index.html", targets[2].Dest)
	assert.False(t, prepared)
}

// A failing build must not stop watch mode; the next change rebuilds.
func TestWatchLoop_SurvivesPluginFailure(t *testing.T) {
	w := newMemWriter()
	var mu sync.Mutex
	fail := true
	b := New(Options{
		Plugins: []pipeline.Plugin{
			pipeline.Func("source", func(_ context.Context, d *sitectx.Draft, _ *pipeline.Runner) error {
				mu.Lock()
				defer mu.Unlock()
				if fail {
					return errors.New("boom")
				}
				d.Set("ok", true)
				return nil
			}),
		},
		Targets:   []target.Node{target.Target{Template: "index.html", Dest: "index.html", Include: target.IncludeAll()}},
		Templates: jsonTemplates(),
		Writer:    w,
	})

	var builds sync.WaitGroup
	var results []error
	var resMu sync.Mutex
	loop := watch.NewLoop(func(ctx context.Context, trigger string) error {
		defer builds.Done()
		_, err := b.Build(ctx, trigger)
		resMu.Lock()
		results = append(results, err)
		resMu.Unlock()
		return err
	}).WithDebounce(0)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	builds.Add(1)
	loop.Notify()
	builds.Wait()
	assert.Zero(t, w.count())

	mu.Lock()
	fail = false
	mu.Unlock()

	builds.Add(1)
	loop.Notify()
	builds.Wait()

	require.Eventually(t, func() bool { return loop.State() == watch.Idle }, time.Second, 5*time.Millisecond)
	resMu.Lock()
	defer resMu.Unlock()
	require.Len(t, results, 2)
	assert.True(t, ferrors.HasCategory(results[0], ferrors.CategoryPlugin))
	assert.NoError(t, results[1])
	assert.Equal(t, `index.html:{"ok":true}`, w.files["index.html"])
}
