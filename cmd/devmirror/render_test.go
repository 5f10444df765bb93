package main

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"devmirror/internal/daemonctl"
	"devmirror/internal/deps"
	"devmirror/internal/ipc"
)

func TestRenderCheckNoColor(t *testing.T) {
	got := renderCheck("devmirror", "error", "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", checkIndent, checkLabelWidth, "devmirror:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderCheck mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderCheckUnknownSeverityIsInfo(t *testing.T) {
	for _, severity := range []string{"", "info", "bogus"} {
		if got := renderCheck("Hotplug", severity, "", false); !strings.HasSuffix(got, "[INFO]") {
			t.Errorf("severity %q rendered %q", severity, got)
		}
	}
}

func TestRenderDeviceTableSummarizesMirrors(t *testing.T) {
	out := renderDeviceTable([]ipc.Device{
		{ID: "ABC123", Mirroring: true, PID: 4242, Since: time.Now().Add(-90 * time.Second)},
		{ID: "emulator-5554"},
	}, false)
	for _, want := range []string{"ABC123", "4242", "1m0s", "emulator-5554", "2 attached", "1 mirroring"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in device table:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no escape codes without colour:\n%s", out)
	}
}

func TestRenderEventTable(t *testing.T) {
	out := renderEventTable([]ipc.Event{{Seq: 7, At: time.Now(), Device: "ABC123", Kind: "spawn_failed", Detail: "exit status 1"}})
	for _, want := range []string{"7", "ABC123", "spawn_failed", "exit status 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in event table:\n%s", want, out)
		}
	}
}

func TestRenderStatusSections(t *testing.T) {
	snapshot := &daemonctl.StatusSnapshot{
		Running: true,
		Devices: []ipc.Device{{ID: "ABC123", Mirroring: true, PID: 9}},
		Dependencies: []daemonctl.DependencyStatus{
			{Status: deps.Status{Name: "Discovery", Command: "adb", Path: "/usr/bin/adb", Available: true}, Severity: "ok"},
			{Status: deps.Status{Name: "Mirror", Command: "scrcpy", Detail: `binary "scrcpy" not found`}, Severity: "error"},
		},
		DependencySummary: daemonctl.DependencySummary{Severity: "error", Detail: "1/2 available"},
		SystemChecks: []daemonctl.StatusLine{
			{Label: "devmirror", Severity: "ok", Detail: "Running"},
		},
	}
	out := renderStatus(snapshot, false)
	for _, want := range []string{"== System ==", "== Dependencies ==", "== Devices ==", "[OK] Running", "[ERROR] 1/2 available", "adb (/usr/bin/adb)", `binary "scrcpy" not found`, "ABC123"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected status output to contain %q:\n%s", want, out)
		}
	}

	snapshot.Running = false
	if strings.Contains(renderStatus(snapshot, false), "== Devices ==") {
		t.Fatal("expected devices section to be omitted when not running")
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
