package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Source watches a directory tree and reports relevant changes.
type Source struct {
	dir    string
	notify func()
	logger *slog.Logger
	ready  chan struct{}
	// excludes are absolute paths whose subtrees never trigger a build.
	excludes []string
}

// NewSource creates a watcher for dir that calls notify on every relevant event.
func NewSource(dir string, notify func()) *Source {
	return &Source{dir: dir, notify: notify, logger: slog.Default(), ready: make(chan struct{})}
}

// WithLogger sets a custom logger.
func (s *Source) WithLogger(logger *slog.Logger) *Source {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithExcludes skips the given directories, typically the output and cache
// directories the build itself writes to.
func (s *Source) WithExcludes(paths ...string) *Source {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			s.excludes = append(s.excludes, abs)
		}
	}
	return s
}

func (s *Source) excluded(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, ex := range s.excludes {
		if abs == ex || strings.HasPrefix(abs, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Ready is closed once the initial directory tree is being watched.
func (s *Source) Ready() <-chan struct{} { return s.ready }

// Run watches until ctx is done. New subdirectories are watched as they appear.
func (s *Source) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer func() { _ = w.Close() }()

	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("watch dir: %w", err)
	}
	s.addDirsRecursive(w, s.dir)
	close(s.ready)
	s.logger.Info("Watching for changes", logfields.Path(s.dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			s.handle(w, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Watcher error", logfields.Error(err))
		}
	}
}

func (s *Source) handle(w *fsnotify.Watcher, ev fsnotify.Event) {
	if ShouldIgnore(ev.Name) || ev.Op == fsnotify.Chmod || s.excluded(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			s.addDirsRecursive(w, ev.Name)
		}
	}
	s.logger.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	s.notify()
}

func (s *Source) addDirsRecursive(w *fsnotify.Watcher, root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || s.excluded(path)) {
				return filepath.SkipDir
			}
			if err := w.Add(path); err != nil {
				s.logger.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
			}
		}
		return nil
	})
}

// ShouldIgnore reports whether a change to path should not trigger a rebuild:
// hidden files, editor swap and backup files, and OS metadata files.
func ShouldIgnore(path string) bool {
	base := filepath.Base(path)

	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	return base == "Thumbs.db" || base == "4913"
}
