package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/chattobot/internal/plugins"
	"github.com/alfredjeanlab/chattobot/internal/registry"
	"github.com/alfredjeanlab/chattobot/internal/ui"
)

var groupsCmd = &cobra.Command{
	Use:     "groups",
	Short:   "List the built-in handler groups and their commands",
	GroupID: "bot",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		catalog := plugins.NewCatalog(&plugins.Deps{Prefix: cfg.Prefix})
		out := cmd.OutOrStdout()
		for _, name := range catalog.Names() {
			g, err := catalog.Build(name)
			if err != nil {
				return err
			}
			mark := ui.RenderMuted("  ")
			if slices.Contains(cfg.Groups, name) {
				mark = ui.RenderOK("* ")
			}
			fmt.Fprintf(out, "%s%s  %s\n", mark, ui.RenderAccent(name), ui.RenderMuted(g.Description))
			if cmds := commandNames(cfg.Prefix, g); len(cmds) > 0 {
				fmt.Fprintf(out, "    %s\n", strings.Join(cmds, " "))
			}
		}
		return nil
	},
}

func commandNames(prefix string, g registry.Group) []string {
	var names []string
	for _, e := range g.Entries {
		if e.Kind == registry.Command && !e.Hidden {
			names = append(names, prefix+e.Trigger)
		}
	}
	return names
}
