package pipeline

import (
	"context"

	"git.home.luguber.info/inful/sitebuilder/internal/sitectx"
)

// Group runs plugins as a nested pipeline and merges the nested result into
// the enclosing draft. The nested plugins start from an empty context and do
// not see the enclosing keys.
func Group(name string, plugins ...Plugin) Plugin {
	return Func(name, func(ctx context.Context, draft *sitectx.Draft, runner *Runner) error {
		sub, err := runner.Run(ctx, plugins, nil)
		if err != nil {
			return err
		}
		draft.Merge(sub.Map())
		return nil
	})
}

// Set returns a plugin that stores a fixed value. Handy for static data and tests.
func Set(key string, value any) Plugin {
	return Func("set:"+key, func(_ context.Context, draft *sitectx.Draft, _ *Runner) error {
		draft.Set(key, value)
		return nil
	})
}
