package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/chattobot/internal/bot"
	"github.com/alfredjeanlab/chattobot/internal/conn"
	"github.com/alfredjeanlab/chattobot/internal/dispatch"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Connect and answer commands until stopped",
	GroupID: "bot",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration:\n%w", err)
		}
		logger := newLogger(cfg)

		ctx := context.Background()
		b, err := bot.New(ctx, cfg, logger)
		if err != nil {
			return err
		}

		// SIGINT/SIGTERM stop the bot; SIGHUP reloads every loaded group.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(sigCh)
		go func() {
			for sig := range sigCh {
				if sig == syscall.SIGHUP {
					if err := b.Reload(ctx, "sighup", ""); err != nil {
						logger.Warn("reload failed", "err", err)
					}
					continue
				}
				logger.Info("received signal, shutting down", "signal", sig)
				go b.Shutdown("signal: " + sig.String())
			}
		}()

		err = b.Run(ctx)
		switch {
		case err == nil:
			return nil
		case conn.IsAuthentication(err):
			return fmt.Errorf("credential rejected by %s: %w", cfg.Instance, err)
		case errors.Is(err, dispatch.ErrDrainTimeout):
			return fmt.Errorf("shutdown abandoned an in-flight dispatch: %w", err)
		default:
			return err
		}
	},
}
