package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/chattobot/internal/config"
	"github.com/alfredjeanlab/chattobot/internal/ui"
)

var (
	configPath string
	envFile    string
	noColor    bool

	// overrides, applied only when the flag was given
	flagInstance string
	flagPrefix   string
	flagSpaces   []string
	flagGroups   []string
	flagAdmins   []string
	flagStateURL string
	flagNATSURL  string
	flagHTTPAddr string
	flagLogLevel string
	flagReplay   time.Duration
	flagNoDMs    bool
)

var rootCmd = &cobra.Command{
	Use:           "chattobot <command>",
	Short:         "Command bot for Chatto spaces",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || !ui.ShouldUseColor(os.Stdout) {
			ui.ForceNoColor()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "TOML config file")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")
	pf.BoolVar(&noColor, "no-color", false, "disable coloured output")

	pf.StringVar(&flagInstance, "instance", "", "service base URL")
	pf.StringVar(&flagPrefix, "prefix", "", "command prefix")
	pf.StringSliceVar(&flagSpaces, "spaces", nil, "space ids to subscribe to")
	pf.StringSliceVar(&flagGroups, "groups", nil, "handler groups to load")
	pf.StringSliceVar(&flagAdmins, "admins", nil, "admin user logins")
	pf.StringVar(&flagStateURL, "state-url", "", "cursor store: path, file://, postgres:// or redis://")
	pf.StringVar(&flagNATSURL, "nats-url", "", "NATS URL for lifecycle events and control")
	pf.StringVar(&flagHTTPAddr, "http-addr", "", "status server listen address")
	pf.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")
	pf.DurationVar(&flagReplay, "replay-horizon", 0, "how far back to replay on first start")
	pf.BoolVar(&flagNoDMs, "no-dms", false, "do not subscribe to direct messages")

	rootCmd.AddGroup(
		&cobra.Group{ID: "bot", Title: "Bot:"},
		&cobra.Group{ID: "state", Title: "State:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cursorCmd)
}

// loadConfig reads every configuration source and applies the flags that
// were set on cmd. It does not validate.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{Path: configPath, DotEnv: envFile})
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("instance") {
		cfg.Instance = flagInstance
	}
	if changed("prefix") {
		cfg.Prefix = flagPrefix
	}
	if changed("spaces") {
		cfg.Spaces = flagSpaces
	}
	if changed("groups") {
		cfg.Groups = flagGroups
	}
	if changed("admins") {
		cfg.Admins = flagAdmins
	}
	if changed("state-url") {
		cfg.StateURL = flagStateURL
	}
	if changed("nats-url") {
		cfg.NATSURL = flagNATSURL
	}
	if changed("http-addr") {
		cfg.HTTPAddr = flagHTTPAddr
	}
	if changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if changed("replay-horizon") {
		cfg.ReplayHorizon = flagReplay
	}
	if changed("no-dms") {
		cfg.DMs = !flagNoDMs
	}
}

// newLogger writes text to a terminal and JSON otherwise.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if ui.IsTerminal(os.Stderr) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderWarn("Error:"), err)
		os.Exit(1)
	}
}
