package mirror

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"devmirror/internal/config"
	"devmirror/internal/logging"
)

// Spawner starts a mirror for a device.
type Spawner interface {
	Spawn(ctx context.Context, device string) (Handle, error)
}

// Launcher spawns the configured mirroring tool.
type Launcher struct {
	Binary      string
	Args        func(device string) []string
	KillTimeout time.Duration
	Logger      *slog.Logger
}

// NewLauncher builds a launcher from the mirror configuration.
func NewLauncher(cfg *config.Config, logger *slog.Logger) *Launcher {
	return &Launcher{
		Binary:      cfg.Mirror.Binary,
		Args:        cfg.MirrorArgs,
		KillTimeout: cfg.KillTimeout(),
		Logger:      logging.NewComponentLogger(logger, "mirror"),
	}
}

// Spawn starts the mirroring tool for device. The process outlives ctx; it
// is only stopped through Kill.
func (l *Launcher) Spawn(ctx context.Context, device string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var args []string
	if l.Args != nil {
		args = l.Args(device)
	}
	killTimeout := l.KillTimeout
	if killTimeout <= 0 {
		killTimeout = 3 * time.Second
	}

	stderr := &lineWriter{logger: l.logger().With(logging.String(logging.FieldDevice, device))}
	cmd := exec.Command(l.Binary, args...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = stderr
	// Descendants that leave the group can hold stderr open; Wait closes it after this delay.
	cmd.WaitDelay = killTimeout

	proc := newProcess(device, cmd, killTimeout)
	proc.stderr = stderr
	if err := proc.start(); err != nil {
		return nil, fmt.Errorf("%s for %s: %w", l.Binary, device, err)
	}
	return proc, nil
}

func (l *Launcher) logger() *slog.Logger {
	if l.Logger == nil {
		return logging.NewNop()
	}
	return l.Logger
}

const maxLineBytes = 64 * 1024

// lineWriter logs each complete stderr line of a mirror at DEBUG. Only the
// exec copy goroutine writes to it, and flush runs after Wait returns.
type lineWriter struct {
	logger *slog.Logger
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLineBytes {
		w.emit(w.buf)
		w.buf = nil
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineWriter) emit(raw []byte) {
	line := strings.TrimSpace(string(raw))
	if line == "" {
		return
	}
	w.logger.Debug("mirror output", logging.String("line", line))
}
