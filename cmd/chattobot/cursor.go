package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/chattobot/internal/bot"
	"github.com/alfredjeanlab/chattobot/internal/model"
	cursorsync "github.com/alfredjeanlab/chattobot/internal/sync"
	"github.com/alfredjeanlab/chattobot/internal/ui"
)

var cursorCmd = &cobra.Command{
	Use:     "cursor",
	Short:   "Inspect or reset persisted replay cursors",
	GroupID: "state",
}

var cursorShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted cursor of every space",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := bot.OpenStore(cmd.Context(), cfg.StateURL)
		if err != nil {
			return err
		}
		defer s.Close()
		cursors, err := s.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("loading cursors: %w", err)
		}
		printCursors(cmd, cursors)
		return nil
	},
}

var cursorResetCmd = &cobra.Command{
	Use:   "reset [space...]",
	Short: "Forget persisted cursors so the next start replays from the horizon",
	Long: `Forget persisted cursors. With no arguments every space is reset;
otherwise only the named spaces. Stop the bot first: a running bot
overwrites the store on its next checkpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := bot.OpenStore(cmd.Context(), cfg.StateURL)
		if err != nil {
			return err
		}
		defer s.Close()

		cursors := model.Cursors{}
		if len(args) > 0 {
			if cursors, err = s.Load(cmd.Context()); err != nil {
				return fmt.Errorf("loading cursors: %w", err)
			}
			for _, space := range args {
				delete(cursors, space)
			}
		}
		if err := s.Save(cmd.Context(), cursors); err != nil {
			return fmt.Errorf("saving cursors: %w", err)
		}
		if len(args) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderOK("Reset all cursors."))
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", ui.RenderOK("Reset cursors for"), args)
		}
		return nil
	},
}

var cursorExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the persisted cursors as a JSON snapshot to stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := bot.OpenStore(cmd.Context(), cfg.StateURL)
		if err != nil {
			return err
		}
		defer s.Close()
		cursors, err := s.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("loading cursors: %w", err)
		}
		return cursorsync.ExportJSON(cursors, time.Now(), cmd.OutOrStdout())
	},
}

var cursorImportCmd = &cobra.Command{
	Use:   "import <snapshot.json>",
	Short: "Replace the persisted cursors with a JSON snapshot (e.g. an S3 backup)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		cursors, err := cursorsync.ImportJSON(f)
		if err != nil {
			return err
		}
		if err := replaceCursors(cmd, cfg.StateURL, cursors); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d cursors from %s\n", ui.RenderOK("Imported"), len(cursors), args[0])
		return nil
	},
}

var cursorRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the persisted cursors with the S3 backup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.BackupS3Bucket == "" {
			return errors.New("no S3 backup configured (set backup_s3_bucket)")
		}
		dest, err := cursorsync.NewS3Destination(cmd.Context(), bot.S3Options(cfg))
		if err != nil {
			return err
		}
		cursors, err := dest.Fetch(cmd.Context())
		if err != nil {
			return err
		}
		if err := replaceCursors(cmd, cfg.StateURL, cursors); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d cursors from s3://%s/%s\n",
			ui.RenderOK("Restored"), len(cursors), cfg.BackupS3Bucket, cfg.BackupS3Key)
		return nil
	},
}

func replaceCursors(cmd *cobra.Command, stateURL string, cursors model.Cursors) error {
	s, err := bot.OpenStore(cmd.Context(), stateURL)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Save(cmd.Context(), cursors); err != nil {
		return fmt.Errorf("saving cursors: %w", err)
	}
	return nil
}

func init() {
	cursorCmd.AddCommand(cursorShowCmd)
	cursorCmd.AddCommand(cursorResetCmd)
	cursorCmd.AddCommand(cursorExportCmd)
	cursorCmd.AddCommand(cursorImportCmd)
	cursorCmd.AddCommand(cursorRestoreCmd)
}

func printCursors(cmd *cobra.Command, cursors model.Cursors) {
	out := cmd.OutOrStdout()
	if len(cursors) == 0 {
		fmt.Fprintln(out, ui.RenderMuted("No cursors persisted."))
		return
	}
	spaces := make([]string, 0, len(cursors))
	for space := range cursors {
		spaces = append(spaces, space)
	}
	sort.Strings(spaces)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SPACE\tLAST EVENT\tTIMESTAMP")
	for _, space := range spaces {
		c := cursors[space]
		fmt.Fprintf(w, "%s\t%s\t%s\n", space, c.LastEventID, c.LastTimestamp.Format(time.RFC3339))
	}
	w.Flush()
}
