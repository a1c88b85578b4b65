// Package assets provides the filesystem plugins of a build: clearing the
// output directory and copying static files into it.
package assets

import (
	"context"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/fsutil"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/pipeline"
	"git.home.luguber.info/inful/sitebuilder/internal/sitectx"
)

// Clean removes dir recursively. A missing directory is fine.
func Clean(dir string) pipeline.Plugin {
	return pipeline.Func("clean", func(_ context.Context, _ *sitectx.Draft, runner *pipeline.Runner) error {
		if err := fsutil.RemoveTree(dir); err != nil {
			return ferrors.WriteError("clean output directory").
				WithCause(err).
				WithContext(logfields.KeyPath, dir).
				Build()
		}
		runner.Logger().Debug("Output directory cleaned", logfields.Path(dir))
		return nil
	})
}

// Copy mirrors the tree at from into to. A missing source is skipped.
func Copy(from, to string) pipeline.Plugin {
	return pipeline.Func("copy", func(_ context.Context, _ *sitectx.Draft, runner *pipeline.Runner) error {
		n, err := fsutil.CopyTree(from, to)
		if err != nil {
			return ferrors.WriteError("copy static files").
				WithCause(err).
				WithContext("from", from).
				WithContext("to", to).
				Build()
		}
		runner.Logger().Info("Static files copied", "from", from, "to", to, "files", n)
		return nil
	})
}
