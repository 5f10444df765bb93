package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"devmirror/internal/daemonctl"
	"devmirror/internal/ipc"
)

const quitGracePeriod = 30 * time.Second

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List attached devices and their mirrors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Devices()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), resp.Devices)
				}
				out := cmd.OutOrStdout()
				if len(resp.Devices) == 0 {
					fmt.Fprintln(out, "No devices attached")
					return nil
				}
				fmt.Fprintln(out, renderDeviceTable(resp.Devices, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <id>",
		Short: "Kill and respawn the mirror for one device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return errors.New("device id is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Restart(id)
				if err != nil {
					return err
				}
				if resp.Queued {
					fmt.Fprintf(cmd.OutOrStdout(), "Restart queued for %s\n", id)
				}
				return nil
			})
		},
	}
}

func newQuitCommand(ctx *commandContext) *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "quit",
		Short: "Stop the running supervisor and every mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			socket, err := ctx.socketPath()
			if err != nil {
				return err
			}
			grace := quitGracePeriod
			if noWait {
				grace = 0
			}
			result, err := daemonctl.QuitAndWait(socket, grace)
			out := cmd.OutOrStdout()
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "devmirror is not running")
				return nil
			}
			if err != nil {
				return err
			}
			switch {
			case result.Stopped:
				fmt.Fprintf(out, "devmirror stopped (pid %d)\n", result.PID)
			case result.Acknowledged:
				fmt.Fprintln(out, "Quit requested")
			default:
				fmt.Fprintln(out, "Quit request sent")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return as soon as the request is accepted")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "Show mirror lifecycle events for this session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			device := ""
			if len(args) == 1 {
				device = strings.TrimSpace(args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(device, limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), resp.Events)
				}
				out := cmd.OutOrStdout()
				if len(resp.Events) == 0 {
					fmt.Fprintln(out, "No events recorded")
					return nil
				}
				fmt.Fprintln(out, renderEventTable(resp.Events))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of events (default 50)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
