package mirror

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// State is the lifecycle state of a mirror process.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateExited
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

var (
	// ErrNotStarted is returned when an operation needs a started process.
	ErrNotStarted = errors.New("mirror process not started")
	// ErrAlreadyStarted is returned when start is called twice.
	ErrAlreadyStarted = errors.New("mirror process already started")
	// ErrKillTimeout is returned when a killed process is not reaped in time.
	ErrKillTimeout = errors.New("mirror process did not exit after SIGKILL")
)

// Handle is a running mirror that the supervisor can observe and kill.
type Handle interface {
	PID() int
	Started() time.Time
	// Done is closed once the process has exited for any reason.
	Done() <-chan struct{}
	ExitError() error
	// Kill stops the process. It returns nil if the process already exited.
	Kill(ctx context.Context) error
}

// Process wraps an exec.Cmd running the mirroring tool for one device.
type Process struct {
	Device string

	cmd         *exec.Cmd
	killTimeout time.Duration
	started     time.Time
	stderr      *lineWriter

	done     chan struct{}
	state    atomic.Int32
	killed   atomic.Bool
	mu       sync.RWMutex
	exitErr  error
	waitOnce sync.Once
}

func newProcess(device string, cmd *exec.Cmd, killTimeout time.Duration) *Process {
	p := &Process{
		Device:      device,
		cmd:         cmd,
		killTimeout: killTimeout,
		done:        make(chan struct{}),
	}
	p.state.Store(int32(StateCreated))
	return p
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// PID returns the process ID, or -1 if not started.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Started returns when the process was launched.
func (p *Process) Started() time.Time {
	return p.started
}

// Done returns a channel that is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitError returns the error from Wait, or nil for a clean exit or a running process.
func (p *Process) ExitError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// HasExited reports whether the process is no longer running.
func (p *Process) HasExited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Process) start() error {
	if p.State() != StateCreated {
		return ErrAlreadyStarted
	}
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start mirror: %w", err)
	}
	p.started = time.Now()
	p.state.Store(int32(StateRunning))
	go p.waitLoop()
	return nil
}

func (p *Process) waitLoop() {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		if p.stderr != nil {
			p.stderr.flush()
		}

		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()

		state := StateExited
		if p.killed.Load() {
			state = StateKilled
		} else {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
					state = StateKilled
				}
			}
		}
		p.state.Store(int32(state))
		close(p.done)
	})
}

// Kill sends SIGTERM to the process group and waits up to the kill timeout
// for it to exit, then sends SIGKILL. A cancelled ctx skips straight to SIGKILL.
// Kill returns ErrKillTimeout if the process is still not reaped one kill
// timeout after SIGKILL plus the pipe wait delay.
func (p *Process) Kill(ctx context.Context) error {
	if p.State() == StateCreated || p.PID() <= 0 {
		return ErrNotStarted
	}
	if p.HasExited() {
		return nil
	}
	p.killed.Store(true)

	if err := p.signalGroup(unix.SIGTERM); err != nil {
		return err
	}

	timer := time.NewTimer(p.killTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	if err := p.signalGroup(unix.SIGKILL); err != nil {
		return err
	}

	grace := p.killTimeout + p.cmd.WaitDelay
	reaped := time.NewTimer(grace)
	defer reaped.Stop()
	select {
	case <-p.done:
		return nil
	case <-reaped.C:
		return fmt.Errorf("mirror %d for %s: %w after %s", p.PID(), p.Device, ErrKillTimeout, grace)
	}
}

func (p *Process) signalGroup(sig unix.Signal) error {
	err := unix.Kill(-p.PID(), sig)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return fmt.Errorf("signal mirror group %d with %s: %w", p.PID(), unix.SignalName(sig), err)
}
