package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"devmirror/internal/config"
	"devmirror/internal/ipc"
	"devmirror/internal/ledger"
	"devmirror/internal/logging"
	"devmirror/internal/supervisor"
	"devmirror/internal/testsupport"
)

type fakeTarget struct {
	mu       sync.Mutex
	devices  []supervisor.DeviceStatus
	events   []ledger.Event
	restarts []string
	quits    int
	onQuit   func()
}

func (f *fakeTarget) Devices(context.Context) ([]supervisor.DeviceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]supervisor.DeviceStatus(nil), f.devices...), nil
}

func (f *fakeTarget) Restart(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts = append(f.restarts, id)
	return nil
}

func (f *fakeTarget) Quit(context.Context) error {
	f.mu.Lock()
	f.quits++
	onQuit := f.onQuit
	f.mu.Unlock()
	if onQuit != nil {
		time.AfterFunc(100*time.Millisecond, onQuit)
	}
	return nil
}

func (f *fakeTarget) History(_ context.Context, device string, limit int) ([]ledger.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.Event
	for _, ev := range f.events {
		if device == "" || ev.Device == device {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	target     *fakeTarget
	server     *ipc.Server
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	started := time.Now().Add(-90 * time.Second)
	target := &fakeTarget{
		devices: []supervisor.DeviceStatus{
			{ID: "ABC123", Mirroring: true, PID: 4321, Since: started},
			{ID: "XYZ789", Mirroring: false},
		},
		events: []ledger.Event{
			{Seq: 3, At: started, Device: "ABC123", Kind: ledger.KindSpawned, Detail: "pid 4321"},
			{Seq: 2, At: started, Device: "XYZ789", Kind: ledger.KindSpawnFailed, Detail: "exec: not found"},
			{Seq: 1, At: started, Device: "ABC123", Kind: ledger.KindAttached},
		},
	}
	server, err := ipc.NewServer(context.Background(), cfg.Paths.SocketPath, target, ipc.Info{
		SessionID: "cli-session",
		PID:       os.Getpid(),
		StartedAt: started,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	server.Serve()
	t.Cleanup(server.Close)

	return &cliTestEnv{
		cfg:        cfg,
		target:     target,
		server:     server,
		socketPath: cfg.Paths.SocketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nruntime_dir = %q\nsocket_path = %q\n\n[discovery]\nhotplug = false\n",
		cfg.Paths.RuntimeDir,
		cfg.Paths.SocketPath,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
