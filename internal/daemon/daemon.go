package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"devmirror/internal/config"
	"devmirror/internal/control"
	"devmirror/internal/deps"
	"devmirror/internal/discovery"
	"devmirror/internal/ipc"
	"devmirror/internal/ledger"
	"devmirror/internal/logging"
	"devmirror/internal/mirror"
	"devmirror/internal/notifications"
	"devmirror/internal/preflight"
	"devmirror/internal/supervisor"
)

// ErrAlreadyRunning is returned when another instance holds the lock.
var ErrAlreadyRunning = errors.New("another devmirror instance is already running")

// Daemon owns one supervisor session from lock acquisition to socket removal.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	sessionID string
	runner    discovery.Runner
	spawner   mirror.Spawner
	notifier  notifications.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithRunner replaces the discovery command runner.
func WithRunner(r discovery.Runner) Option {
	return func(d *Daemon) {
		if r != nil {
			d.runner = r
		}
	}
}

// WithSpawner replaces the mirror launcher.
func WithSpawner(s mirror.Spawner) Option {
	return func(d *Daemon) {
		if s != nil {
			d.spawner = s
		}
	}
}

// WithNotifier replaces the notification service built from config.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithSessionID fixes the session identifier instead of generating one.
func WithSessionID(id string) Option {
	return func(d *Daemon) {
		if id != "" {
			d.sessionID = id
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		sessionID: uuid.NewString(),
		runner:    discovery.ExecRunner{},
		notifier:  notifications.NewService(cfg),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.spawner == nil {
		d.spawner = mirror.NewLauncher(cfg, logger)
	}
	return d, nil
}

// SessionID identifies this run in logs, the ledger and IPC status.
func (d *Daemon) SessionID() string {
	return d.sessionID
}

// Run holds the instance lock and drives the poller, supervisor and operator
// shell until quit, a fatal poller error, or ctx cancellation. Every mirror is
// killed and the socket removed before it returns.
func (d *Daemon) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	d.logDependencySnapshot(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	mailbox := discovery.NewMailbox()
	poller := discovery.NewPoller(d.cfg, mailbox, d.logger, discovery.WithRunner(d.runner))
	if err := poller.StartBackend(runCtx); err != nil {
		return err
	}

	journal, err := ledger.Open(d.sessionID)
	if err != nil {
		return err
	}
	defer journal.Close()

	sup := supervisor.New(d.spawner, mailbox, d.logger,
		supervisor.WithJournal(journal),
		supervisor.WithNotifier(d.notifier),
		supervisor.WithRestartGrace(d.cfg.RestartGrace()),
	)

	server, err := ipc.NewServer(runCtx, d.cfg.Paths.SocketPath, sup, ipc.Info{
		SessionID: d.sessionID,
		PID:       os.Getpid(),
		StartedAt: time.Now().UTC(),
	}, d.logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer server.Close()
	server.Serve()

	if d.cfg.Discovery.Hotplug {
		watcher := discovery.NewHotplugWatcher(d.logger, poller.Nudge)
		if err := watcher.Start(runCtx); err != nil {
			d.logger.Warn("hotplug watcher unavailable", logging.Error(err))
		}
		defer watcher.Stop()
	}

	d.logger.Info("devmirror started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("socket", server.Path()),
	)

	var wg sync.WaitGroup
	pollErr := make(chan error, 1)
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := poller.Run(runCtx); err != nil {
			pollErr <- err
		}
	}()
	go func() {
		defer wg.Done()
		if err := sup.Run(runCtx); err != nil {
			d.logger.Error("supervisor failed", logging.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		shell := control.NewShell(sup, in, out, d.logger)
		if err := shell.Run(runCtx); err != nil {
			d.logger.Warn("operator shell stopped", logging.Error(err))
		}
	}()

	var runErr error
	select {
	case <-sup.Done():
		d.logger.Info("supervisor stopped; shutting down")
	case err := <-pollErr:
		runErr = err
		logging.ErrorWithContext(d.logger, "device discovery failed", "discovery_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the discovery binary works from a shell"),
			logging.String(logging.FieldImpact, "all mirrors are stopped"),
		)
	case <-ctx.Done():
		d.logger.Info("devmirror shutting down", logging.String("reason", context.Cause(ctx).Error()))
	}

	cancel()
	wg.Wait()

	d.logger.Info("devmirror stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
	)
	return runErr
}

func (d *Daemon) logDependencySnapshot(ctx context.Context) {
	attrs := []any{logging.String(logging.FieldEventType, "dependency_snapshot")}
	statuses := preflight.CheckSystemDeps(d.cfg)
	for _, status := range statuses {
		binary := status.Command
		if status.Path != "" {
			binary = status.Path
		}
		attrs = append(attrs,
			logging.Bool(strings.ToLower(status.Name)+"_available", status.Available),
			logging.String(strings.ToLower(status.Name)+"_binary", binary),
		)
	}
	attrs = append(attrs,
		logging.Bool("hotplug", d.cfg.Discovery.Hotplug),
		logging.Bool("notifications", d.cfg.Notifications.NtfyTopic != ""),
	)
	d.logger.Info("dependency snapshot", attrs...)

	for _, status := range deps.Missing(statuses) {
		logging.WarnWithContext(d.logger, "required tool unavailable", "dependency_missing",
			logging.String("dependency", status.Name),
			logging.String("detail", status.Detail),
			logging.String(logging.FieldErrorHint, "install "+status.Command+" or set its binary in the config file"),
			logging.String(logging.FieldImpact, strings.ToLower(status.Description)),
		)
	}

	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run devmirror status for details"),
			logging.String(logging.FieldImpact, "some features may not work"),
		)
	}
}
