package daemonctl

import (
	"context"
	"fmt"
	"strings"

	"devmirror/internal/config"
	"devmirror/internal/deps"
	"devmirror/internal/ipc"
	"devmirror/internal/preflight"
)

// StatusLine is one labelled row of status output.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int
	Available       int
	MissingRequired int
	MissingOptional int
	Severity        string
	Detail          string
}

// DependencyStatus is a dependency check annotated with a severity.
type DependencyStatus struct {
	deps.Status
	Severity string
}

// StatusSnapshot collects everything "devmirror status" renders.
type StatusSnapshot struct {
	Running           bool
	Daemon            *ipc.StatusResponse
	Devices           []ipc.Device
	Dependencies      []DependencyStatus
	DependencySummary DependencySummary
	SystemChecks      []StatusLine
}

// BuildStatusSnapshot queries the daemon when it is reachable and always
// evaluates local dependencies and config-driven checks.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not available")
	}
	snapshot := &StatusSnapshot{}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			snapshot.Running = true
			snapshot.Daemon = resp
			if devices, devErr := client.Devices(); devErr == nil && devices != nil {
				snapshot.Devices = devices.Devices
			}
		}
	} else if !isDaemonUnavailable(err) {
		return nil, err
	}

	snapshot.Dependencies = ResolveDependencies(cfg)
	snapshot.DependencySummary = BuildDependencySummary(snapshot.Dependencies)
	snapshot.SystemChecks = BuildSystemChecks(ctx, cfg, snapshot.Daemon)
	return snapshot, nil
}

// ResolveDependencies returns current dependency availability for status output.
func ResolveDependencies(cfg *config.Config) []DependencyStatus {
	if cfg == nil {
		return nil
	}
	checks := preflight.CheckSystemDeps(cfg)
	statuses := make([]DependencyStatus, 0, len(checks))
	for _, check := range checks {
		severity := "ok"
		if !check.Available {
			severity = "error"
			if check.Optional {
				severity = "warn"
			}
		}
		statuses = append(statuses, DependencyStatus{Status: check, Severity: severity})
	}
	return statuses
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(ctx context.Context, cfg *config.Config, daemon *ipc.StatusResponse) []StatusLine {
	lines := make([]StatusLine, 0, 4)
	if daemon != nil {
		lines = append(lines, StatusLine{
			Label:    "devmirror",
			Severity: "ok",
			Detail:   fmt.Sprintf("Running (pid %d, %d/%d mirrored)", daemon.PID, daemon.Mirroring, daemon.Devices),
		})
	} else {
		lines = append(lines, StatusLine{Label: "devmirror", Severity: "warn", Detail: "Not running (run `devmirror run`)"})
	}

	runtimeDir := preflight.CheckDirectoryAccess("Runtime directory", cfg.Paths.RuntimeDir)
	switch {
	case runtimeDir.Passed:
		lines = append(lines, StatusLine{Label: runtimeDir.Name, Severity: "ok", Detail: runtimeDir.Detail})
	case daemon == nil && strings.Contains(runtimeDir.Detail, "does not exist"):
		lines = append(lines, StatusLine{Label: runtimeDir.Name, Severity: "info", Detail: runtimeDir.Detail})
	default:
		lines = append(lines, StatusLine{Label: runtimeDir.Name, Severity: "error", Detail: runtimeDir.Detail})
	}

	notify := preflight.CheckNotificationsFromConfig(ctx, cfg)
	switch {
	case notify.Passed && strings.EqualFold(notify.Detail, "Disabled"):
		lines = append(lines, StatusLine{Label: notify.Name, Severity: "info", Detail: notify.Detail})
	case notify.Passed:
		lines = append(lines, StatusLine{Label: notify.Name, Severity: "ok", Detail: notify.Detail})
	default:
		lines = append(lines, StatusLine{Label: notify.Name, Severity: "warn", Detail: notify.Detail})
	}

	if cfg.Discovery.Hotplug {
		lines = append(lines, StatusLine{Label: "Hotplug", Severity: "ok", Detail: "Enabled (netlink uevents)"})
	} else {
		lines = append(lines, StatusLine{Label: "Hotplug", Severity: "info", Detail: fmt.Sprintf("Disabled (polling every %s)", cfg.PollInterval())})
	}

	return lines
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(deps []DependencyStatus) DependencySummary {
	if len(deps) == 0 {
		return DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range deps {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(deps) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(deps), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(deps))
	}

	return DependencySummary{
		Total:           len(deps),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}
