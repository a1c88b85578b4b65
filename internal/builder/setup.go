package builder

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/sitebuilder/internal/cache"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/fsutil"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/notify"
	"git.home.luguber.info/inful/sitebuilder/internal/pipeline"
	"git.home.luguber.info/inful/sitebuilder/internal/render"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
	"git.home.luguber.info/inful/sitebuilder/internal/sources"
	"git.home.luguber.info/inful/sitebuilder/internal/sources/assets"
	"git.home.luguber.info/inful/sitebuilder/internal/sources/contentful"
	"git.home.luguber.info/inful/sitebuilder/internal/sources/eventbrite"
	"git.home.luguber.info/inful/sitebuilder/internal/sources/markdown"
	"git.home.luguber.info/inful/sitebuilder/internal/sources/tickettailor"
	"git.home.luguber.info/inful/sitebuilder/internal/target"
)

// Overrides are command line settings that win over the configuration.
type Overrides struct {
	// NoCache bypasses the cache for this run.
	NoCache bool
	// OutputDir replaces output.dir.
	OutputDir string
}

// Site is a Builder assembled from configuration, together with the
// resources it owns.
type Site struct {
	*Builder
	Config    *config.Config
	Cache     *cache.Store
	OutputDir string
}

// Setup assembles the plugin list, target tree, cache and notifier described
// by cfg. The caller must Close the returned Site.
func Setup(cfg *config.Config, ov Overrides, logger *slog.Logger, recorder metrics.Recorder) (*Site, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	outDir := cfg.Resolve(cfg.Output.Dir)
	if ov.OutputDir != "" {
		outDir = ov.OutputDir
	}

	store, err := OpenCache(cfg, ov, logger, recorder)
	if err != nil {
		return nil, err
	}

	plugins, err := dataPlugins(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.NATSURL != "" {
		n, err := notify.NewNATS(cfg.Notify.NATSURL, cfg.Notify.Subject)
		if err != nil {
			_ = store.Close()
			return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to connect to NATS").
				WithContext("url", cfg.Notify.NATSURL).
				Build()
		}
		notifier = n
	}

	tmplDir := cfg.Resolve(cfg.Templates.Dir)
	loader := func() (target.RenderFunc, error) {
		engine, err := render.Load(render.Options{
			Dir:        tmplDir,
			BaseDir:    cfg.BaseDir,
			Extensions: cfg.Templates.Extensions,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return engine.Render, nil
	}

	b := New(Options{
		Prepare:   preparePlugins(cfg, outDir),
		Plugins:   plugins,
		Targets:   TargetTree(cfg.Targets, cfg.Environment),
		Initial:   cfg.InitialContext(),
		Templates: loader,
		Writer:    fsutil.DirWriter{Root: outDir},
		Logger:    logger,
		Recorder:  recorder,
		Notifier:  notifier,
	})
	return &Site{Builder: b, Config: cfg, Cache: store, OutputDir: outDir}, nil
}

// Close releases the cache backend and the notifier.
func (s *Site) Close() error {
	return errors.Join(s.Builder.Close(), s.Cache.Close())
}

// OpenCache opens the configured cache backend and wraps it in a Store.
// The store is enabled per cfg.CacheEnabled unless ov.NoCache is set.
func OpenCache(cfg *config.Config, ov Overrides, logger *slog.Logger, recorder metrics.Recorder) (*cache.Store, error) {
	policy, err := cache.ParseCorruptPolicy(cfg.Cache.CorruptPolicy)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid cache policy").Build()
	}
	dir := cfg.Resolve(cfg.Cache.Dir)

	var backend cache.Backend
	switch cfg.Cache.Backend {
	case "sqlite":
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, ferrors.WriteError("failed to create cache directory").WithCause(err).
				WithContext("path", dir).Build()
		}
		backend, err = cache.NewSQLiteBackend(filepath.Join(dir, "cache.db"), cfg.Cache.Namespace)
	default:
		backend, err = cache.NewFileBackend(dir, cfg.Cache.Namespace)
	}
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to open cache").
			WithContext("backend", cfg.Cache.Backend).Build()
	}

	return cache.NewStore(backend).
		WithEnabled(cfg.CacheEnabled() && !ov.NoCache).
		WithPolicy(policy).
		WithLogger(logger).
		WithRecorder(recorder), nil
}

func preparePlugins(cfg *config.Config, outDir string) []pipeline.Plugin {
	var out []pipeline.Plugin
	if cfg.Output.Clean {
		out = append(out, assets.Clean(outDir))
	}
	for _, sc := range cfg.Static {
		out = append(out, assets.Copy(cfg.Resolve(sc.From), filepath.Join(outDir, sc.To)))
	}
	return out
}

// dataPlugins wraps the remote sources in one cached group and appends the
// local markdown sources, which are always read fresh.
func dataPlugins(cfg *config.Config, store *cache.Store, logger *slog.Logger) ([]pipeline.Plugin, error) {
	src := cfg.Sources
	mode, err := retry.ParseMode(src.Retry.Backoff)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid retry backoff").Build()
	}
	maxRetries := -1
	if src.Retry.MaxRetries != nil {
		maxRetries = *src.Retry.MaxRetries
	}
	client := sources.NewClient(
		&http.Client{Timeout: sources.DefaultTimeout},
		retry.NewPolicy(mode, src.Retry.Initial, src.Retry.Max, maxRetries),
	).WithLogger(logger)

	var remote []pipeline.Plugin
	if cf := src.Contentful; cf != nil {
		entries := make([]contentful.Source, 0, len(cf.Sources))
		for _, e := range cf.Sources {
			entries = append(entries, contentful.Source{Key: e.Key, ContentType: e.ContentType})
		}
		remote = append(remote, contentful.Plugin(contentful.Config{
			Space:       cf.Space,
			AccessToken: cf.AccessToken,
			Environment: cf.Environment,
			Host:        cf.Host,
			Sources:     entries,
		}, client))
	}
	if tt := src.TicketTailor; tt != nil {
		remote = append(remote, tickettailor.Plugin(tickettailor.Config{
			Token: tt.Token,
			URL:   tt.URL,
			Key:   tt.Key,
		}, client))
	}
	if eb := src.Eventbrite; eb != nil {
		remote = append(remote, eventbrite.Plugin(eventbrite.Config{
			Token:          eb.Token,
			OrganizationID: eb.OrganizationID,
			BaseURL:        eb.BaseURL,
			Key:            eb.Key,
			Expand:         eb.Expand,
		}, client))
	}

	var plugins []pipeline.Plugin
	if len(remote) > 0 {
		plugins = append(plugins, cache.Plugin(store, cfg.Cache.Key, cfg.Cache.TTL, remote...))
	}
	for _, md := range src.Markdown {
		plugins = append(plugins, markdown.Plugin(markdown.Config{
			Dir:    cfg.Resolve(md.Dir),
			Key:    md.Key,
			SortBy: md.SortBy,
		}))
	}
	if len(plugins) == 0 {
		logger.Debug("No data sources configured")
	}
	return plugins, nil
}
