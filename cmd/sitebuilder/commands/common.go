// Package commands implements the sitebuilder command line.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitebuilder/internal/builder"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
)

// Global carries process-wide state into every command.
type Global struct {
	Context context.Context
	Logger  *slog.Logger
	// Out receives user-facing output. Logs go to stderr.
	Out io.Writer
}

// CLI is the root command and its global flags.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path" default:"sitebuilder.yaml" type:"path"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogFormat string           `name:"log-format" help:"Log output format" enum:"text,json" default:"text"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Run the plugin pipeline and render all targets"`
	Targets TargetsCmd `cmd:"" help:"Resolve and print the target list without rendering"`
	Cache   CacheCmd   `cmd:"" help:"Inspect or clear the data cache"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	slog.SetDefault(NewLogger(os.Stderr, c.Verbose, c.LogFormat))
	return nil
}

// NewLogger builds the process logger.
func NewLogger(w io.Writer, verbose bool, format string) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (g *Global) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g *Global) out() io.Writer {
	if g.Out != nil {
		return g.Out
	}
	return os.Stdout
}

func (g *Global) ctx() context.Context {
	if g.Context != nil {
		return g.Context
	}
	return context.Background()
}

// setup loads the configuration at root.Config and assembles the site.
func setup(g *Global, root *CLI, ov builder.Overrides, recorder metrics.Recorder) (*builder.Site, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	g.logger().Debug("Configuration loaded",
		"path", root.Config,
		"environment", string(cfg.Environment),
		"targets", len(cfg.Targets))
	return builder.Setup(cfg, ov, g.logger(), recorder)
}
