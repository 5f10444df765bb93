package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"devmirror/internal/config"
	"devmirror/internal/deps"
	"devmirror/internal/preflight"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Write or check the devmirror configuration file",
	}
	configCmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand())
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the sample configuration (adb discovery, scrcpy mirrors)",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := configTarget(targetPath)
			if err != nil {
				return err
			}
			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("check config path: %w", err)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Defaults mirror every adb device with scrcpy; edit [mirror] args to change the window options.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func configTarget(flagValue string) (string, error) {
	if target := strings.TrimSpace(flagValue); target != "" {
		expanded, err := config.ExpandPath(target)
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		return expanded, nil
	}
	path, err := config.DefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("determine default config path: %w", err)
	}
	return path, nil
}

// newConfigValidateCommand loads the file without starting anything and
// prints the command lines the supervisor would run with it.
func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Check the configuration and show the resulting adb and scrcpy command lines",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, resolved, exists, err := config.Load(strings.TrimSpace(path))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			source := resolved
			if !exists {
				source += " (not found, using defaults)"
			}
			fmt.Fprintf(out, "Config path: %s\n", source)
			describeConfig(out, cfg)

			missing := deps.Missing(preflight.CheckSystemDeps(cfg))
			for _, status := range missing {
				fmt.Fprintln(out, renderCheck(status.Name, "warn", status.Detail, false))
			}
			if len(missing) > 0 {
				fmt.Fprintln(out, "Configuration valid, but required tools are missing")
				return nil
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func describeConfig(out io.Writer, cfg *config.Config) {
	discovery := append([]string{cfg.Discovery.Binary}, cfg.Discovery.ListArgs...)
	mirror := append([]string{cfg.Mirror.Binary}, cfg.MirrorArgs("<serial>")...)
	fmt.Fprintf(out, "Discovery: %s (every %s, hotplug %s)\n", strings.Join(discovery, " "), cfg.PollInterval(), yesNo(cfg.Discovery.Hotplug))
	fmt.Fprintf(out, "Mirror: %s\n", strings.Join(mirror, " "))
	fmt.Fprintf(out, "Restart grace: %s, kill timeout: %s\n", cfg.RestartGrace(), cfg.KillTimeout())
	fmt.Fprintf(out, "Socket: %s\n", cfg.Paths.SocketPath)
}
