package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/builder"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

// CacheCmd groups the cache subcommands.
type CacheCmd struct {
	List  CacheListCmd  `cmd:"" help:"List cached entries"`
	Clear CacheClearCmd `cmd:"" help:"Remove all cached entries of the namespace"`
}

// CacheListCmd implements 'cache list'.
type CacheListCmd struct{}

func (c *CacheListCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	store, err := builder.OpenCache(cfg, builder.Overrides{}, g.logger(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.List(g.ctx())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(g.out(), "Cache is empty")
		return nil
	}
	now := time.Now()
	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KEY\tTTL\tEXPIRES\tSTATE")
	for _, e := range entries {
		state := "fresh"
		if !e.Fresh(now) {
			state = "expired"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Key, e.TTL, e.ExpiresAt.Format(time.RFC3339), state)
	}
	return tw.Flush()
}

// CacheClearCmd implements 'cache clear'.
type CacheClearCmd struct{}

func (c *CacheClearCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	store, err := builder.OpenCache(cfg, builder.Overrides{}, g.logger(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Clear(g.ctx()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.out(), "Cache namespace %q cleared\n", cfg.Cache.Namespace)
	return nil
}
