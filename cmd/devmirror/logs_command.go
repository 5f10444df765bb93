package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"devmirror/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var device string
	var level string
	var raw bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the JSON log file written when logging.file is set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := strings.TrimSpace(cfg.Logging.File)
			if path == "" {
				return errors.New("no log file configured; set [logging] file in the config")
			}

			var minLevel slog.Level
			if level != "" {
				if err := minLevel.UnmarshalText([]byte(level)); err != nil {
					return fmt.Errorf("invalid --level %q", level)
				}
			}
			filter := logs.Filter{Device: strings.TrimSpace(device), MinLevel: minLevel}
			out := cmd.OutOrStdout()
			emit := func(line string) { printLogLine(out, line, filter, raw) }

			// Filters apply after the tail, so fewer than --lines records may print.
			initial, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			for _, line := range initial {
				emit(line)
			}
			if !follow {
				return nil
			}

			followCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			_, err = logs.Follow(followCtx, path, offset, 250*time.Millisecond, emit)
			return err
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&device, "device", "", "Only show records for this device")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print JSON lines unmodified")
	return cmd
}

func printLogLine(out io.Writer, line string, filter logs.Filter, raw bool) {
	rec, ok := logs.ParseRecord(line)
	if !ok {
		if filter.Device == "" && !raw {
			fmt.Fprintln(out, line)
		}
		return
	}
	if !filter.Match(rec) {
		return
	}
	if raw {
		fmt.Fprintln(out, line)
		return
	}
	fmt.Fprintln(out, rec.Format())
}
