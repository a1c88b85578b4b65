package commands

import (
	"fmt"
	"text/tabwriter"

	"git.home.luguber.info/inful/sitebuilder/internal/builder"
)

// TargetsCmd implements the 'targets' command.
type TargetsCmd struct {
	NoCache bool `name:"no-cache" help:"Bypass the data cache while resolving"`
}

func (c *TargetsCmd) Run(g *Global, root *CLI) error {
	site, err := setup(g, root, builder.Overrides{NoCache: c.NoCache}, nil)
	if err != nil {
		return err
	}
	defer func() { _ = site.Close() }()

	targets, err := site.Targets(g.ctx())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DEST\tTEMPLATE\tINCLUDE\tENABLED")
	for _, t := range targets {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", t.Dest, t.Template, t.Include, t.IsEnabled())
	}
	return tw.Flush()
}
