package supervisor

import (
	"errors"
	"time"

	"devmirror/internal/discovery"
	"devmirror/internal/ledger"
	"devmirror/internal/mirror"
)

// ErrStopped is returned by requests made after the supervisor loop has exited.
var ErrStopped = errors.New("supervisor stopped")

// controlBuffer bounds queued operator requests.
const controlBuffer = 16

// DeviceStatus describes one device in the last-known set.
type DeviceStatus struct {
	ID        string    `json:"id"`
	Mirroring bool      `json:"mirroring"`
	PID       int       `json:"pid,omitempty"`
	Since     time.Time `json:"since,omitempty"`
}

type message interface {
	kind() string
}

type quitMsg struct{}

type listMsg struct {
	reply chan []DeviceStatus
}

type restartMsg struct {
	id discovery.DeviceID
}

type historyMsg struct {
	device string
	limit  int
	reply  chan historyReply
}

type historyReply struct {
	events []ledger.Event
	err    error
}

func (quitMsg) kind() string    { return "quit" }
func (listMsg) kind() string    { return "devices" }
func (restartMsg) kind() string { return "restart" }
func (historyMsg) kind() string { return "history" }

type exitNotice struct {
	id     discovery.DeviceID
	handle mirror.Handle
}
