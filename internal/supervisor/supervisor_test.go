package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"devmirror/internal/discovery"
	"devmirror/internal/ledger"
	"devmirror/internal/logging"
	"devmirror/internal/mirror"
)

// eventLog records spawn and kill calls in order across all fakes.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) count(prefix string) int {
	n := 0
	for _, ev := range l.snapshot() {
		if len(ev) >= len(prefix) && ev[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type fakeHandle struct {
	device  string
	pid     int
	log     *eventLog
	done    chan struct{}
	once    sync.Once
	kills   atomic.Int32
	exitErr error
	// killErr, when set, makes Kill fail without the process exiting.
	killErr error
}

func (h *fakeHandle) PID() int              { return h.pid }
func (h *fakeHandle) Started() time.Time    { return time.Unix(1700000000, 0) }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) ExitError() error      { return h.exitErr }

func (h *fakeHandle) Kill(context.Context) error {
	h.kills.Add(1)
	h.log.add("kill %s pid=%d", h.device, h.pid)
	if h.killErr != nil {
		return h.killErr
	}
	h.once.Do(func() { close(h.done) })
	return nil
}

func (h *fakeHandle) exit(err error) {
	h.exitErr = err
	h.once.Do(func() { close(h.done) })
}

type fakeSpawner struct {
	mu      sync.Mutex
	log     *eventLog
	nextPID int
	fail    map[string]error
	handles map[string][]*fakeHandle
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{
		log:     &eventLog{},
		nextPID: 100,
		fail:    map[string]error{},
		handles: map[string][]*fakeHandle{},
	}
}

func (f *fakeSpawner) Spawn(_ context.Context, device string) (mirror.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[device]; err != nil {
		f.log.add("spawn-failed %s", device)
		return nil, err
	}
	f.nextPID++
	h := &fakeHandle{device: device, pid: f.nextPID, log: f.log, done: make(chan struct{})}
	f.handles[device] = append(f.handles[device], h)
	f.log.add("spawn %s pid=%d", device, h.pid)
	return h, nil
}

func (f *fakeSpawner) setFail(device string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, device)
		return
	}
	f.fail[device] = err
}

func (f *fakeSpawner) latest(device string) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	hs := f.handles[device]
	if len(hs) == 0 {
		return nil
	}
	return hs[len(hs)-1]
}

func newTestSupervisor(t *testing.T, spawner *fakeSpawner) (*Supervisor, *ledger.Ledger) {
	t.Helper()
	journal, err := ledger.Open("test")
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = journal.Close() })
	s := New(spawner, discovery.NewMailbox(), logging.NewNop(),
		WithJournal(journal),
		WithRestartGrace(0),
	)
	return s, journal
}

func TestReconcileSpawnsAndRemovesDifference(t *testing.T) {
	spawner := newFakeSpawner()
	s, _ := newTestSupervisor(t, spawner)
	ctx := context.Background()

	s.reconcile(ctx, discovery.NewDeviceSet("A", "B", "C"))
	handleB := s.handles["B"].handle
	handleC := s.handles["C"].handle

	s.reconcile(ctx, discovery.NewDeviceSet("B", "C", "D"))

	if _, ok := s.handles["A"]; ok {
		t.Fatal("expected A to be removed")
	}
	if s.handles["B"].handle != handleB || s.handles["C"].handle != handleC {
		t.Fatal("expected handles for unchanged devices to be preserved")
	}
	if _, ok := s.handles["D"]; !ok {
		t.Fatal("expected D to be spawned")
	}
	if got := spawner.log.count("spawn "); got != 4 {
		t.Fatalf("expected 4 spawns, got %d: %v", got, spawner.log.snapshot())
	}
	if got := spawner.log.count("kill "); got != 1 {
		t.Fatalf("expected 1 kill, got %d: %v", got, spawner.log.snapshot())
	}
	if spawner.latest("A").kills.Load() != 1 {
		t.Fatal("expected A's handle to be killed")
	}
	if !s.known.Equal(discovery.NewDeviceSet("B", "C", "D")) {
		t.Fatalf("unexpected known set %v", s.known.Sorted())
	}
}

func TestReconcileSameSetTwiceIsNoop(t *testing.T) {
	spawner := newFakeSpawner()
	s, _ := newTestSupervisor(t, spawner)
	ctx := context.Background()

	set := discovery.NewDeviceSet("A", "B")
	s.reconcile(ctx, set)
	before := len(spawner.log.snapshot())
	s.reconcile(ctx, set.Clone())

	if after := len(spawner.log.snapshot()); after != before {
		t.Fatalf("expected no spawn or kill on identical set, got %v", spawner.log.snapshot()[before:])
	}
}

func TestAttachDetachScenario(t *testing.T) {
	spawner := newFakeSpawner()
	s, journal := newTestSupervisor(t, spawner)
	ctx := context.Background()

	s.reconcile(ctx, discovery.ParseDeviceList("List of devices attached\nABC123\tdevice\n"))
	if _, ok := s.handles["ABC123"]; !ok {
		t.Fatal("expected ABC123 to be tracked")
	}

	s.reconcile(ctx, discovery.ParseDeviceList("List of devices attached\n"))
	if len(s.handles) != 0 {
		t.Fatalf("expected no tracked devices, got %d", len(s.handles))
	}
	if spawner.latest("ABC123").kills.Load() != 1 {
		t.Fatal("expected ABC123 handle to be killed")
	}

	events, err := journal.History(ctx, "ABC123", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	var kinds []ledger.Kind
	for i := len(events) - 1; i >= 0; i-- {
		kinds = append(kinds, events[i].Kind)
	}
	want := []ledger.Kind{ledger.KindAttached, ledger.KindSpawned, ledger.KindDetached, ledger.KindKilled}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("ledger kinds = %v, want %v", kinds, want)
	}
}

func TestSpawnFailureLeavesDeviceUntracked(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.setFail("BAD", errors.New("exec: scrcpy: not found"))
	s, _ := newTestSupervisor(t, spawner)

	s.reconcile(context.Background(), discovery.NewDeviceSet("BAD", "GOOD"))

	if _, ok := s.handles["BAD"]; ok {
		t.Fatal("expected failed device to be untracked")
	}
	if _, ok := s.handles["GOOD"]; !ok {
		t.Fatal("expected good device to be tracked")
	}
	statuses := s.statuses()
	if len(statuses) != 2 || statuses[0].ID != "BAD" || statuses[0].Mirroring {
		t.Fatalf("unexpected statuses %+v", statuses)
	}
	if !statuses[1].Mirroring || statuses[1].PID == 0 {
		t.Fatalf("expected GOOD mirroring with pid, got %+v", statuses[1])
	}
}

func TestRestartKillsBeforeSpawning(t *testing.T) {
	spawner := newFakeSpawner()
	s, _ := newTestSupervisor(t, spawner)
	ctx := context.Background()

	s.reconcile(ctx, discovery.NewDeviceSet("A"))
	old := spawner.latest("A")

	s.restart(ctx, "A")

	events := spawner.log.snapshot()
	want := []string{
		fmt.Sprintf("spawn A pid=%d", old.pid),
		fmt.Sprintf("kill A pid=%d", old.pid),
		fmt.Sprintf("spawn A pid=%d", old.pid+1),
	}
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	if s.handles["A"].handle == mirror.Handle(old) {
		t.Fatal("expected a new handle after restart")
	}
}

func TestRestartSpawnFailureLeavesUntracked(t *testing.T) {
	spawner := newFakeSpawner()
	s, _ := newTestSupervisor(t, spawner)
	ctx := context.Background()

	s.reconcile(ctx, discovery.NewDeviceSet("A"))
	spawner.setFail("A", errors.New("device offline"))
	s.restart(ctx, "A")

	if _, ok := s.handles["A"]; ok {
		t.Fatal("expected A untracked after failed respawn")
	}
	if !s.known.Has("A") {
		t.Fatal("expected A to remain in the known set")
	}

	// A later explicit restart retries.
	spawner.setFail("A", nil)
	s.restart(ctx, "A")
	if _, ok := s.handles["A"]; !ok {
		t.Fatal("expected A tracked after successful retry")
	}
}

func TestRestartUnknownDeviceDoesNothing(t *testing.T) {
	spawner := newFakeSpawner()
	s, _ := newTestSupervisor(t, spawner)
	ctx := context.Background()

	s.reconcile(ctx, discovery.NewDeviceSet("A"))
	before := spawner.log.snapshot()
	s.restart(ctx, "NOPE")

	if after := spawner.log.snapshot(); len(after) != len(before) {
		t.Fatalf("expected no spawn or kill, got %v", after[len(before):])
	}
}

func TestRestartGraceIsContextAware(t *testing.T) {
	spawner := newFakeSpawner()
	s, _ := newTestSupervisor(t, spawner)
	s.grace = time.Hour

	s.reconcile(context.Background(), discovery.NewDeviceSet("A"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		s.restart(ctx, "A")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("restart grace ignored context cancellation")
	}
	if spawner.log.count("spawn ") != 1 {
		t.Fatalf("expected no respawn after cancellation, got %v", spawner.log.snapshot())
	}
}

func TestSelfExitedMirrorIsMarkedNotRespawned(t *testing.T) {
	spawner := newFakeSpawner()
	s, journal := newTestSupervisor(t, spawner)
	ctx := context.Background()

	s.reconcile(ctx, discovery.NewDeviceSet("A"))
	h := spawner.latest("A")
	h.exit(errors.New("exit status 1"))

	s.handleExit(ctx, exitNotice{id: "A", handle: h})
	s.handleExit(ctx, exitNotice{id: "A", handle: h})

	statuses := s.statuses()
	if len(statuses) != 1 || statuses[0].Mirroring {
		t.Fatalf("expected A not mirroring, got %+v", statuses)
	}
	if spawner.log.count("spawn ") != 1 {
		t.Fatalf("expected no automatic respawn, got %v", spawner.log.snapshot())
	}
	events, err := journal.History(ctx, "A", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	exited := 0
	for _, ev := range events {
		if ev.Kind == ledger.KindExited {
			exited++
		}
	}
	if exited != 1 {
		t.Fatalf("expected exactly one exited event, got %d", exited)
	}
}

func TestStaleExitNoticeIgnored(t *testing.T) {
	spawner := newFakeSpawner()
	s, _ := newTestSupervisor(t, spawner)
	ctx := context.Background()

	s.reconcile(ctx, discovery.NewDeviceSet("A"))
	old := spawner.latest("A")
	s.restart(ctx, "A")

	s.handleExit(ctx, exitNotice{id: "A", handle: old})
	if s.handles["A"].exited {
		t.Fatal("exit of replaced handle must not mark the new one")
	}
}

func runSupervisor(t *testing.T, s *Supervisor, ctx context.Context) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	return errCh
}

func waitForDevices(t *testing.T, s *Supervisor, want int) []DeviceStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		statuses, err := s.Devices(context.Background())
		if err != nil {
			t.Fatalf("Devices: %v", err)
		}
		if len(statuses) == want {
			return statuses
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d devices", want)
	return nil
}

func TestQuitKillsAllAndStops(t *testing.T) {
	spawner := newFakeSpawner()
	s, _ := newTestSupervisor(t, spawner)

	errCh := runSupervisor(t, s, context.Background())
	s.mailbox.Publish(discovery.NewDeviceSet("A", "B", "C"))
	waitForDevices(t, s, 3)

	if err := s.Quit(context.Background()); err != nil {
		t.Fatalf("Quit: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after Quit")
	}

	for _, id := range []string{"A", "B", "C"} {
		if spawner.latest(id).kills.Load() != 1 {
			t.Fatalf("expected %s killed once", id)
		}
	}
	if _, err := s.Devices(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after quit, got %v", err)
	}
	if err := s.Quit(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped for second quit, got %v", err)
	}
}

func TestQuitStopsWhenOneKillTimesOut(t *testing.T) {
	spawner := newFakeSpawner()
	s, journal := newTestSupervisor(t, spawner)

	errCh := runSupervisor(t, s, context.Background())
	s.mailbox.Publish(discovery.NewDeviceSet("A", "B", "C"))
	waitForDevices(t, s, 3)
	spawner.latest("B").killErr = mirror.ErrKillTimeout

	if err := s.Quit(context.Background()); err != nil {
		t.Fatalf("Quit: %v", err)
	}
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after Quit with a stuck mirror")
	}
	for _, id := range []string{"A", "B", "C"} {
		if spawner.latest(id).kills.Load() != 1 {
			t.Fatalf("expected one kill attempt for %s", id)
		}
	}

	events, err := journal.History(context.Background(), "B", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	for _, ev := range events {
		if ev.Kind == ledger.KindKilled {
			t.Fatalf("stuck mirror must not be recorded as killed: %+v", events)
		}
	}
}

func TestContextCancelKillsAll(t *testing.T) {
	spawner := newFakeSpawner()
	s, _ := newTestSupervisor(t, spawner)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runSupervisor(t, s, ctx)
	s.mailbox.Publish(discovery.NewDeviceSet("A", "B"))
	waitForDevices(t, s, 2)

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("expected Done to be closed")
	}
	if spawner.latest("A").kills.Load() != 1 || spawner.latest("B").kills.Load() != 1 {
		t.Fatal("expected every mirror killed on cancellation")
	}
}

func TestRunHandlesSelfExitAndRestart(t *testing.T) {
	spawner := newFakeSpawner()
	s, _ := newTestSupervisor(t, spawner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := runSupervisor(t, s, ctx)

	s.mailbox.Publish(discovery.NewDeviceSet("A"))
	waitForDevices(t, s, 1)
	spawner.latest("A").exit(errors.New("exit status 2"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		statuses, err := s.Devices(ctx)
		if err != nil {
			t.Fatalf("Devices: %v", err)
		}
		if !statuses[0].Mirroring {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("self exit not observed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := s.Restart(ctx, "A"); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	statuses, err := s.Devices(ctx)
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if !statuses[0].Mirroring {
		t.Fatalf("expected A mirroring after restart, got %+v", statuses[0])
	}

	history, err := s.History(ctx, "A", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) == 0 || history[0].Kind != ledger.KindSpawned {
		t.Fatalf("expected newest event to be the respawn, got %+v", history)
	}

	cancel()
	<-errCh
}

func TestRestartBlankIDIsDropped(t *testing.T) {
	s, _ := newTestSupervisor(t, newFakeSpawner())
	if err := s.Restart(context.Background(), "   "); err != nil {
		t.Fatalf("Restart blank: %v", err)
	}
	if len(s.control) != 0 {
		t.Fatal("blank restart should not be queued")
	}
}
