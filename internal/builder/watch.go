package builder

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/watch"
)

// TriggerInitial labels the build that starts watch mode.
const TriggerInitial = "initial"

// Watch builds once, then rebuilds on every relevant change below
// watch.dir until ctx is done. Failed builds are logged and the loop keeps
// running. When metrics is non-nil and watch.metrics_addr is set, the
// handler is served there.
func (s *Site) Watch(ctx context.Context, metrics http.Handler) error {
	cfg := s.Config
	logger := s.opts.Logger

	loop := watch.NewLoop(func(ctx context.Context, trigger string) error {
		_, err := s.Build(ctx, trigger)
		return err
	}).
		WithDebounce(cfg.Watch.Debounce).
		WithMaxDelay(cfg.Watch.MaxDelay).
		WithClock(s.opts.Clock).
		WithLogger(logger).
		WithRecorder(s.opts.Recorder)

	source := watch.NewSource(cfg.Resolve(cfg.Watch.Dir), loop.Notify).
		WithLogger(logger).
		WithExcludes(s.OutputDir, cfg.Resolve(cfg.Cache.Dir))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				logger.Error("Watch component stopped", "component", name, logfields.Error(err))
				errCh <- err
				cancel()
			}
		}()
	}

	if cfg.Watch.RefreshInterval > 0 {
		ref, err := newRefresher(s.opts.Clock, logger)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to start refresh scheduler").Build()
		}
		if _, err := ref.schedule(cfg.Watch.RefreshInterval, loop); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to schedule refresh").Build()
		}
		ref.start()
		defer func() {
			if err := ref.stop(); err != nil {
				logger.Warn("Refresh scheduler shutdown failed", logfields.Error(err))
			}
		}()
	}

	if metrics != nil && cfg.Watch.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Watch.MetricsAddr,
			Handler:           metricsMux(metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}
		run("metrics", func(ctx context.Context) error {
			return serve(ctx, srv)
		})
		logger.Info("Serving metrics", "addr", cfg.Watch.MetricsAddr)
	}

	loop.Trigger(TriggerInitial)
	run("loop", loop.Run)
	run("source", source.Run)

	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return ferrors.WrapError(errors.Join(errs...), ferrors.CategoryRuntime, "watch mode failed").Build()
	}
	return nil
}

func metricsMux(h http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	return mux
}

func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
