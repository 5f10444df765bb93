package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"devmirror/internal/daemon"
	"devmirror/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var diagnostic bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the supervisor in the foreground",
		Long: "Run the supervisor in the foreground. Type quit, devices, restart <id>, history [id] [n] or help on stdin.\n" +
			"Closing stdin stops the supervisor and every mirror.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			err = daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:   ctx.logLevel(),
				Diagnostic: diagnostic,
				In:         cmd.InOrStdin(),
				Out:        cmd.OutOrStdout(),
			})
			if errors.Is(err, daemon.ErrAlreadyRunning) {
				return fmt.Errorf("%w (lock %s); use `devmirror quit` to stop it", err, cfg.LockPath())
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&diagnostic, "diagnostic", false, "Write a debug-level JSON log under the runtime directory")
	return cmd
}
