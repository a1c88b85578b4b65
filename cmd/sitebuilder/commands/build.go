package commands

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitebuilder/internal/builder"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
)

// TriggerCLI labels one-shot builds started from the command line.
const TriggerCLI = "cli"

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Watch   bool   `short:"w" help:"Rebuild on source changes until interrupted"`
	NoCache bool   `name:"no-cache" help:"Bypass the data cache for this run"`
	Output  string `short:"o" help:"Override output.dir" type:"path"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	var (
		recorder metrics.Recorder = metrics.NoopRecorder{}
		handler  http.Handler
	)
	if b.Watch {
		reg := prometheus.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		handler = metrics.HTTPHandler(reg)
	}

	site, err := setup(g, root, builder.Overrides{NoCache: b.NoCache, OutputDir: b.Output}, recorder)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := site.Close(); cerr != nil {
			g.logger().Warn("Failed to release resources", "error", cerr)
		}
	}()

	if b.Watch {
		return site.Watch(g.ctx(), handler)
	}

	rep, err := site.Build(g.ctx(), TriggerCLI)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.out(), "Built %d targets (%d skipped) into %s in %s\n",
		rep.Rendered, rep.Skipped, site.OutputDir, rep.Duration.Round(time.Millisecond))
	return nil
}
