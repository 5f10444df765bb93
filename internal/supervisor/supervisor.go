package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"devmirror/internal/discovery"
	"devmirror/internal/ledger"
	"devmirror/internal/logging"
	"devmirror/internal/mirror"
	"devmirror/internal/notifications"
)

// Journal records lifecycle events. *ledger.Ledger satisfies it.
type Journal interface {
	Record(ctx context.Context, device string, kind ledger.Kind, detail string) error
	History(ctx context.Context, device string, limit int) ([]ledger.Event, error)
}

type tracked struct {
	handle mirror.Handle
	exited bool
}

// Supervisor reconciles running mirrors against the discovered device set.
type Supervisor struct {
	logger   *slog.Logger
	spawner  mirror.Spawner
	mailbox  *discovery.Mailbox
	journal  Journal
	notifier notifications.Service
	grace    time.Duration

	control chan message
	exits   chan exitNotice
	stopped chan struct{}
	runOnce sync.Once

	// Owned by the Run goroutine.
	handles map[discovery.DeviceID]*tracked
	known   discovery.DeviceSet
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithJournal records lifecycle events to j.
func WithJournal(j Journal) Option {
	return func(s *Supervisor) { s.journal = j }
}

// WithNotifier sends attach, detach and failure notifications through n.
func WithNotifier(n notifications.Service) Option {
	return func(s *Supervisor) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithRestartGrace sets the pause between killing and respawning on restart.
func WithRestartGrace(d time.Duration) Option {
	return func(s *Supervisor) {
		if d >= 0 {
			s.grace = d
		}
	}
}

// New creates a supervisor that spawns mirrors with spawner and reads device
// sets from mailbox.
func New(spawner mirror.Spawner, mailbox *discovery.Mailbox, logger *slog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		logger:   logging.NewComponentLogger(logger, "supervisor"),
		spawner:  spawner,
		mailbox:  mailbox,
		notifier: notifications.NewService(nil),
		grace:    2 * time.Second,
		control:  make(chan message, controlBuffer),
		exits:    make(chan exitNotice),
		stopped:  make(chan struct{}),
		handles:  make(map[discovery.DeviceID]*tracked),
		known:    make(discovery.DeviceSet),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Done is closed once Run has returned and every mirror has been killed.
func (s *Supervisor) Done() <-chan struct{} {
	return s.stopped
}

// Run processes device sets, requests and exit notices until Quit is received
// or ctx is cancelled. Every mirror is killed before it returns.
func (s *Supervisor) Run(ctx context.Context) error {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("supervisor already ran")
	}
	defer close(s.stopped)

	s.logger.Info("supervisor started",
		logging.String(logging.FieldEventType, "supervisor_started"),
	)

	for {
		select {
		case <-ctx.Done():
			s.shutdown(ctx, "context cancelled")
			return nil
		case msg := <-s.control:
			if s.handleMessage(ctx, msg) {
				s.shutdown(ctx, "quit requested")
				return nil
			}
		case set := <-s.mailbox.C():
			s.reconcile(ctx, set)
		case notice := <-s.exits:
			s.handleExit(ctx, notice)
		}
	}
}

// handleMessage applies one control message and reports whether the loop should stop.
func (s *Supervisor) handleMessage(ctx context.Context, msg message) bool {
	s.logger.Debug("control message received", logging.String("command", msg.kind()))
	switch m := msg.(type) {
	case quitMsg:
		return true
	case listMsg:
		m.reply <- s.statuses()
	case restartMsg:
		s.restart(ctx, m.id)
	case historyMsg:
		m.reply <- s.history(ctx, m.device, m.limit)
	}
	return false
}

func (s *Supervisor) statuses() []DeviceStatus {
	out := make([]DeviceStatus, 0, len(s.known))
	for _, id := range s.known.Sorted() {
		status := DeviceStatus{ID: string(id)}
		if tr, ok := s.handles[id]; ok && !tr.exited {
			status.Mirroring = true
			status.PID = tr.handle.PID()
			status.Since = tr.handle.Started()
		}
		out = append(out, status)
	}
	return out
}

func (s *Supervisor) history(ctx context.Context, device string, limit int) historyReply {
	if s.journal == nil {
		return historyReply{}
	}
	events, err := s.journal.History(ctx, device, limit)
	return historyReply{events: events, err: err}
}

// reconcile spawns mirrors for new devices and kills mirrors for departed ones.
func (s *Supervisor) reconcile(ctx context.Context, set discovery.DeviceSet) {
	added, removed := s.known.Diff(set)
	if len(added) == 0 && len(removed) == 0 {
		return
	}

	for _, id := range added {
		s.logger.Info("device attached",
			logging.String(logging.FieldEventType, "device_attached"),
			logging.Device(string(id)),
		)
		s.record(ctx, id, ledger.KindAttached, "")
		s.notify(ctx, func(ctx context.Context) error { return s.notifier.NotifyDeviceAttached(ctx, string(id)) })
		s.spawn(ctx, id)
	}

	for _, id := range removed {
		s.logger.Info("device detached",
			logging.String(logging.FieldEventType, "device_detached"),
			logging.Device(string(id)),
		)
		s.record(ctx, id, ledger.KindDetached, "")
		s.notify(ctx, func(ctx context.Context) error { return s.notifier.NotifyDeviceDetached(ctx, string(id)) })
		if tr, ok := s.handles[id]; ok {
			delete(s.handles, id)
			s.kill(ctx, id, tr)
		}
	}

	s.known = set.Clone()
}

// restart replaces the mirror for a device in the last-known set.
func (s *Supervisor) restart(ctx context.Context, id discovery.DeviceID) {
	if !s.known.Has(id) {
		s.logger.Info("restart ignored for unknown device",
			logging.String(logging.FieldEventType, "restart_ignored"),
			logging.Device(string(id)),
		)
		return
	}

	s.logger.Info("restarting mirror",
		logging.String(logging.FieldEventType, "mirror_restart"),
		logging.Device(string(id)),
		logging.Duration("grace", s.grace),
	)
	s.record(ctx, id, ledger.KindRestarted, "")

	if tr, ok := s.handles[id]; ok {
		delete(s.handles, id)
		s.kill(ctx, id, tr)
	}

	if s.grace > 0 {
		timer := time.NewTimer(s.grace)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	s.spawn(ctx, id)
}

func (s *Supervisor) spawn(ctx context.Context, id discovery.DeviceID) {
	handle, err := s.spawner.Spawn(ctx, string(id))
	if err != nil {
		logging.WarnWithContext(s.logger, "mirror spawn failed; device left unmirrored", "mirror_spawn_failed",
			logging.Device(string(id)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the mirror binary and that the device is authorized, then run restart "+string(id)),
			logging.String(logging.FieldImpact, "device is not mirrored until restarted or reattached"),
		)
		s.record(ctx, id, ledger.KindSpawnFailed, err.Error())
		s.notify(ctx, func(ctx context.Context) error { return s.notifier.NotifyMirrorFailed(ctx, string(id), err) })
		return
	}

	s.handles[id] = &tracked{handle: handle}
	s.logger.Info("mirror spawned",
		logging.String(logging.FieldEventType, "mirror_spawned"),
		logging.Device(string(id)),
		logging.PID(handle.PID()),
	)
	s.record(ctx, id, ledger.KindSpawned, fmt.Sprintf("pid %d", handle.PID()))
	go s.watch(id, handle)
}

func (s *Supervisor) watch(id discovery.DeviceID, handle mirror.Handle) {
	select {
	case <-handle.Done():
	case <-s.stopped:
		return
	}
	select {
	case s.exits <- exitNotice{id: id, handle: handle}:
	case <-s.stopped:
	}
}

// handleExit marks a mirror that stopped without being asked to.
func (s *Supervisor) handleExit(ctx context.Context, notice exitNotice) {
	tr, ok := s.handles[notice.id]
	if !ok || tr.handle != notice.handle || tr.exited {
		return
	}
	tr.exited = true

	detail := "exit status 0"
	if err := notice.handle.ExitError(); err != nil {
		detail = err.Error()
	}
	logging.WarnWithContext(s.logger, "mirror exited on its own", "mirror_exited",
		logging.Device(string(notice.id)),
		logging.PID(notice.handle.PID()),
		logging.String("reason", detail),
		logging.String(logging.FieldErrorHint, "run restart "+string(notice.id)+" to start it again"),
		logging.String(logging.FieldImpact, "device is no longer mirrored"),
	)
	s.record(ctx, notice.id, ledger.KindExited, detail)
	s.notify(ctx, func(ctx context.Context) error {
		return s.notifier.NotifyMirrorFailed(ctx, string(notice.id), fmt.Errorf("mirror exited: %s", detail))
	})
}

func (s *Supervisor) kill(ctx context.Context, id discovery.DeviceID, tr *tracked) {
	killCtx := context.WithoutCancel(ctx)
	if err := tr.handle.Kill(killCtx); err != nil {
		logging.WarnWithContext(s.logger, "mirror kill failed", "mirror_kill_failed",
			logging.Device(string(id)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for a stray mirror process with ps"),
			logging.String(logging.FieldImpact, "mirror window may remain open"),
		)
		return
	}
	s.logger.Info("mirror killed",
		logging.String(logging.FieldEventType, "mirror_killed"),
		logging.Device(string(id)),
		logging.PID(tr.handle.PID()),
	)
	s.record(killCtx, id, ledger.KindKilled, "")
}

// shutdown kills every mirror concurrently.
func (s *Supervisor) shutdown(ctx context.Context, reason string) {
	killCtx := context.WithoutCancel(ctx)
	ids := make([]discovery.DeviceID, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		handle := s.handles[id].handle
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = handle.Kill(killCtx)
		}()
	}
	wg.Wait()

	var failed []string
	for i, id := range ids {
		if errs[i] != nil {
			failed = append(failed, string(id)+": "+errs[i].Error())
			continue
		}
		s.record(killCtx, id, ledger.KindKilled, reason)
	}
	clear(s.handles)

	if len(failed) > 0 {
		logging.WarnWithContext(s.logger, "some mirrors could not be killed", "shutdown_kill_failed",
			logging.String("failures", strings.Join(failed, "; ")),
			logging.String(logging.FieldErrorHint, "check for stray mirror processes with ps"),
			logging.String(logging.FieldImpact, "mirror windows may remain open"),
		)
	}
	s.logger.Info("supervisor stopped",
		logging.String(logging.FieldEventType, "supervisor_stopped"),
		logging.String("reason", reason),
		logging.Int("killed", len(ids)-len(failed)),
	)
}

func (s *Supervisor) record(ctx context.Context, id discovery.DeviceID, kind ledger.Kind, detail string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(ctx, string(id), kind, detail); err != nil {
		s.logger.Debug("ledger record failed", logging.Device(string(id)), logging.Error(err))
	}
}

// notify delivers a notification off the loop goroutine so slow endpoints never
// delay reconciliation.
func (s *Supervisor) notify(ctx context.Context, send func(context.Context) error) {
	notifyCtx := context.WithoutCancel(ctx)
	go func() {
		if err := send(notifyCtx); err != nil {
			logging.WarnWithContext(s.logger, "notification delivery failed", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
				logging.String(logging.FieldImpact, "push notification not delivered"),
			)
		}
	}()
}
