package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDiscovery(); err != nil {
		return err
	}
	if err := c.validateMirror(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validateDiscovery() error {
	if len(c.Discovery.ListArgs) == 0 {
		return errors.New("discovery.list_args must include at least one argument")
	}
	return ensurePositiveMap(map[string]int{
		"discovery.poll_interval": c.Discovery.PollInterval,
		"discovery.query_timeout": c.Discovery.QueryTimeout,
	})
}

func (c *Config) validateMirror() error {
	if c.Mirror.RestartGrace < 0 {
		return errors.New("mirror.restart_grace must be >= 0")
	}
	if c.Mirror.KillTimeout <= 0 {
		return errors.New("mirror.kill_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full URL, got %q", topic)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
