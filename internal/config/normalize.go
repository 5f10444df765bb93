package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeDiscovery()
	c.normalizeMirror()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizeDiscovery() {
	c.Discovery.Binary = strings.TrimSpace(c.Discovery.Binary)
	if c.Discovery.Binary == "" {
		c.Discovery.Binary = defaultDiscoveryBinary
	}
	c.Discovery.ListArgs = trimArgs(c.Discovery.ListArgs)
	c.Discovery.StartArgs = trimArgs(c.Discovery.StartArgs)
	if c.Discovery.QueryTimeout <= 0 {
		c.Discovery.QueryTimeout = defaultQueryTimeout
	}
}

func (c *Config) normalizeMirror() {
	c.Mirror.Binary = strings.TrimSpace(c.Mirror.Binary)
	if c.Mirror.Binary == "" {
		c.Mirror.Binary = defaultMirrorBinary
	}
	c.Mirror.SerialFlag = strings.TrimSpace(c.Mirror.SerialFlag)
	c.Mirror.Args = trimArgs(c.Mirror.Args)
	if c.Mirror.KillTimeout <= 0 {
		c.Mirror.KillTimeout = defaultKillTimeout
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RuntimeDir) == "" {
		c.Paths.RuntimeDir = defaultRuntimeDir()
	}
	if c.Paths.RuntimeDir, err = expandPath(strings.TrimSpace(c.Paths.RuntimeDir)); err != nil {
		return fmt.Errorf("paths.runtime_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.RuntimeDir, defaultSocketName)
	}
	if c.Paths.SocketPath, err = expandPath(strings.TrimSpace(c.Paths.SocketPath)); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	var err error
	if c.Logging.File, err = expandPath(strings.TrimSpace(c.Logging.File)); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("DEVMIRROR_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func trimArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		out = append(out, arg)
	}
	return out
}
