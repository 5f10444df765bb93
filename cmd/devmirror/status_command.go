package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"devmirror/internal/daemonctl"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show supervisor, dependency and configuration health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), cfg.Paths.SocketPath, cfg)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), snapshot)
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderStatus(snapshot, shouldColorize(out)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderStatus(snapshot *daemonctl.StatusSnapshot, colorize bool) string {
	var b strings.Builder
	writeLines := func(lines ...string) {
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	writeLines(renderSectionHeader("System", colorize)...)
	for _, line := range snapshot.SystemChecks {
		writeLines(renderCheck(line.Label, line.Severity, line.Detail, colorize))
	}
	b.WriteByte('\n')

	writeLines(renderSectionHeader("Dependencies", colorize)...)
	summary := snapshot.DependencySummary
	writeLines(renderCheck("Summary", summary.Severity, summary.Detail, colorize))
	if len(snapshot.Dependencies) > 0 {
		writeLines(renderDependencyTable(snapshot.Dependencies, colorize))
	}

	if snapshot.Running {
		b.WriteByte('\n')
		writeLines(renderSectionHeader("Devices", colorize)...)
		if len(snapshot.Devices) == 0 {
			writeLines(checkIndent + "No devices attached")
		} else {
			writeLines(renderDeviceTable(snapshot.Devices, colorize))
		}
	}
	return b.String()
}
