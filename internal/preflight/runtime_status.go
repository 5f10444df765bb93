package preflight

import (
	"context"
	"strings"

	"devmirror/internal/config"
)

// CheckNotificationsFromConfig evaluates ntfy status from config and connectivity.
func CheckNotificationsFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	if !cfg.Notifications.DeviceEvents && !cfg.Notifications.Failures {
		return Result{Name: name, Passed: true, Detail: "Muted (all events disabled)"}
	}
	check := CheckNtfy(ctx, cfg.Notifications.NtfyTopic)
	return Result{Name: name, Passed: check.Passed, Detail: check.Detail}
}
