package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/chattobot/internal/config"
	"github.com/alfredjeanlab/chattobot/internal/ui"
)

const redacted = "********"

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Print the effective configuration and check it",
	GroupID: "bot",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if err := toml.NewEncoder(out).Encode(redact(cfg)); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(out)
			fmt.Fprintln(out, ui.RenderWarn("# invalid:"))
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, ui.RenderOK("# valid"))
		return nil
	},
}

// redact returns a copy with credentials masked.
func redact(cfg *config.Config) *config.Config {
	cp := *cfg
	for _, s := range []*string{&cp.Session, &cp.Password, &cp.HTTPToken} {
		if *s != "" {
			*s = redacted
		}
	}
	return &cp
}
