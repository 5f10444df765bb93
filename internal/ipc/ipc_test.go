package ipc_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"devmirror/internal/ipc"
	"devmirror/internal/ledger"
	"devmirror/internal/logging"
	"devmirror/internal/supervisor"
)

type fakeTarget struct {
	mu       sync.Mutex
	restarts []string
	quits    int
}

func (f *fakeTarget) Devices(context.Context) ([]supervisor.DeviceStatus, error) {
	return []supervisor.DeviceStatus{
		{ID: "ABC123", Mirroring: true, PID: 4242, Since: time.Unix(1700000000, 0).UTC()},
		{ID: "XYZ"},
	}, nil
}

func (f *fakeTarget) Restart(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts = append(f.restarts, id)
	return nil
}

func (f *fakeTarget) Quit(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quits++
	if f.quits > 1 {
		return supervisor.ErrStopped
	}
	return nil
}

func (f *fakeTarget) History(_ context.Context, device string, limit int) ([]ledger.Event, error) {
	if device == "broken" {
		return nil, errors.New("ledger closed")
	}
	return []ledger.Event{
		{Seq: 2, Device: "ABC123", Kind: ledger.KindSpawned, Detail: "pid 4242"},
		{Seq: 1, Device: "ABC123", Kind: ledger.KindAttached},
	}[:min(limit, 2)], nil
}

func startServer(t *testing.T, target ipc.Target) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "dm-ipc")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socket := filepath.Join(dir, "devmirror.sock")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	info := ipc.Info{SessionID: "session-1", PID: 99, StartedAt: time.Unix(1700000000, 0).UTC()}
	srv, err := ipc.NewServer(ctx, socket, target, info, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)
	return socket
}

func TestIPCServerClient(t *testing.T) {
	target := &fakeTarget{}
	socket := startServer(t, target)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	devices, err := client.Devices()
	if err != nil {
		t.Fatalf("Devices RPC failed: %v", err)
	}
	if len(devices.Devices) != 2 || devices.Devices[0].ID != "ABC123" || devices.Devices[0].PID != 4242 {
		t.Fatalf("unexpected devices %+v", devices.Devices)
	}
	if devices.Devices[1].Mirroring {
		t.Fatal("expected XYZ not mirroring")
	}

	restart, err := client.Restart("ABC123")
	if err != nil {
		t.Fatalf("Restart RPC failed: %v", err)
	}
	if !restart.Queued {
		t.Fatal("expected restart queued")
	}
	if _, err := client.Restart(""); err == nil {
		t.Fatal("expected error for empty restart id")
	}

	history, err := client.History("ABC123", 1)
	if err != nil {
		t.Fatalf("History RPC failed: %v", err)
	}
	if len(history.Events) != 1 || history.Events[0].Kind != "spawned" {
		t.Fatalf("unexpected history %+v", history.Events)
	}
	if _, err := client.History("broken", 5); err == nil || !strings.Contains(err.Error(), "ledger closed") {
		t.Fatalf("expected history error to propagate, got %v", err)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.SessionID != "session-1" || status.PID != 99 || status.Devices != 2 || status.Mirroring != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.Socket != socket {
		t.Fatalf("unexpected socket %q", status.Socket)
	}

	for i := 0; i < 2; i++ {
		quit, err := client.Quit()
		if err != nil {
			t.Fatalf("Quit RPC %d failed: %v", i, err)
		}
		if !quit.Stopping {
			t.Fatal("expected stopping=true")
		}
	}

	target.mu.Lock()
	defer target.mu.Unlock()
	if len(target.restarts) != 1 || target.restarts[0] != "ABC123" {
		t.Fatalf("unexpected restarts %v", target.restarts)
	}
}

func TestDialMissingSocketReportsNotRunning(t *testing.T) {
	_, err := ipc.Dial(filepath.Join(t.TempDir(), "absent.sock"))
	if !errors.Is(err, ipc.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestServerCloseRemovesSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "dm-ipc")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(dir)
	socket := filepath.Join(dir, "s.sock")

	srv, err := ipc.NewServer(context.Background(), socket, &fakeTarget{}, ipc.Info{}, nil)
	if err != nil {
		t.Skipf("skipping IPC server test: %v", err)
	}
	srv.Serve()
	srv.Close()
	srv.Close()

	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Fatalf("expected socket removed, stat err=%v", err)
	}
}

func TestNewServerRequiresTarget(t *testing.T) {
	if _, err := ipc.NewServer(context.Background(), filepath.Join(t.TempDir(), "x.sock"), nil, ipc.Info{}, nil); err == nil {
		t.Fatal("expected error without target")
	}
}
