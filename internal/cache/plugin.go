package cache

import (
	"context"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/pipeline"
	"git.home.luguber.info/inful/sitebuilder/internal/sitectx"
)

// Plugin wraps plugins in a nested pipeline whose result is cached under key.
// On a hit the nested plugins do not run; either way the payload is merged
// into the enclosing context.
func Plugin(store *Store, key string, ttl time.Duration, plugins ...pipeline.Plugin) pipeline.Plugin {
	return pipeline.Func("cache:"+key, func(ctx context.Context, draft *sitectx.Draft, runner *pipeline.Runner) error {
		payload, err := store.WithCache(ctx, key, ttl, func(ctx context.Context) (map[string]any, error) {
			sub, err := runner.Run(ctx, plugins, nil)
			if err != nil {
				return nil, err
			}
			return sub.Map(), nil
		})
		if err != nil {
			return err
		}
		draft.Merge(payload)
		return nil
	})
}
