package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"devmirror/internal/ipc"
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = ipc.ErrNotRunning

// QuitResult captures the outcome of a quit request.
type QuitResult struct {
	Acknowledged bool
	PID          int
	Stopped      bool
}

// WaitForShutdown waits for the daemon socket to disappear or refuse connections.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
			lastErr = err
			time.Sleep(100 * time.Millisecond)
			continue
		}
		_ = client.Close()
		lastErr = fmt.Errorf("daemon still running")
		time.Sleep(100 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for shutdown")
	}
	return fmt.Errorf("daemon did not stop: %w", lastErr)
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, statusErr := client.Status()
	if statusErr != nil {
		return true, 0, statusErr
	}
	pid := 0
	if status != nil {
		pid = status.PID
	}
	return true, pid, nil
}

// QuitAndWait asks the daemon to stop and waits up to gracePeriod for the
// socket to go away. Every mirror is killed before the socket is removed.
func QuitAndWait(socketPath string, gracePeriod time.Duration) (QuitResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return QuitResult{}, ErrDaemonNotRunning
		}
		return QuitResult{}, err
	}
	result := QuitResult{}
	if status, statusErr := client.Status(); statusErr == nil && status != nil {
		result.PID = status.PID
	}
	resp, err := client.Quit()
	_ = client.Close()
	if err != nil {
		return result, err
	}
	if resp != nil {
		result.Acknowledged = resp.Stopping
	}
	if gracePeriod <= 0 {
		return result, nil
	}
	if err := WaitForShutdown(socketPath, gracePeriod); err != nil {
		return result, err
	}
	result.Stopped = true
	return result, nil
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, ipc.ErrNotRunning) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
