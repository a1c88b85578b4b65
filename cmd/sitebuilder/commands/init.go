package commands

import (
	"fmt"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite an existing configuration file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	if err := config.WriteExample(root.Config, i.Force); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.out(), "Wrote example configuration to %s\n", root.Config)
	return nil
}
