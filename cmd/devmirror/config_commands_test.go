package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)
	binDir := t.TempDir()
	for _, name := range []string{"adb", "scrcpy"} {
		if err := os.WriteFile(filepath.Join(binDir, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			t.Fatalf("write stub: %v", err)
		}
	}
	t.Setenv("PATH", binDir)

	out, _, err := runCLI(t, []string{"config", "validate"}, "", env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid\n")
	requireContains(t, out, "Discovery: adb devices (every 5s, hotplug no)")
	requireContains(t, out, "Mirror: scrcpy -s <serial> --no-audio")
	requireContains(t, out, env.socketPath)
	if strings.Contains(out, "[WARN]") {
		t.Fatalf("expected no missing tools, got %q", out)
	}

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected overwrite guard, got %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, "", ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateReportsMissingTools(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("PATH", t.TempDir())

	out, _, err := runCLI(t, []string{"config", "validate"}, "", env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "[WARN] binary \"adb\" not found")
	requireContains(t, out, "[WARN] binary \"scrcpy\" not found")
	requireContains(t, out, "required tools are missing")
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.WriteFile(env.configPath, []byte("[mirror]\nrestart_grace = -1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, err := runCLI(t, []string{"config", "validate"}, "", env.configPath)
	if err == nil || !strings.Contains(err.Error(), "mirror.restart_grace") {
		t.Fatalf("expected restart_grace validation error, got %v", err)
	}
}

func TestStatusCommandShowsRunningDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== System ==")
	requireContains(t, out, "1/2 mirrored")
	requireContains(t, out, "== Devices ==")
	requireContains(t, out, "ABC123")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("DEVMIRROR_NTFY_TOPIC", "")

	out, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "not configured")
}

func TestLogsCommandFiltersByDevice(t *testing.T) {
	env := setupCLITestEnv(t)
	logPath := filepath.Join(filepath.Dir(env.configPath), "devmirror.log")
	content := `{"ts":"t1","level":"info","msg":"device attached","component":"supervisor","device":"ABC123"}
{"ts":"t2","level":"info","msg":"device attached","component":"supervisor","device":"XYZ789"}
{"ts":"t3","level":"debug","msg":"mirror output","component":"mirror","device":"ABC123","line":"INFO: Renderer: opengl"}
`
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	f, err := os.OpenFile(env.configPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	if _, err := f.WriteString("\n[logging]\nfile = \"" + logPath + "\"\n"); err != nil {
		t.Fatalf("append config: %v", err)
	}
	_ = f.Close()

	out, _, err := runCLI(t, []string{"logs", "--device", "ABC123", "--level", "info"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "t1 INFO  [supervisor] ABC123 - device attached")
	if strings.Contains(out, "XYZ789") || strings.Contains(out, "mirror output") {
		t.Fatalf("expected device and level filtering, got %q", out)
	}
}

func TestLogsCommandRequiresLogFile(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"logs"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "no log file configured") {
		t.Fatalf("expected missing log file error, got %v", err)
	}
}
