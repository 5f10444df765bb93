package ipc

import "time"

// Device is the wire form of one device's status.
type Device struct {
	ID        string    `json:"id"`
	Mirroring bool      `json:"mirroring"`
	PID       int       `json:"pid,omitempty"`
	Since     time.Time `json:"since,omitempty"`
}

// Event is the wire form of one ledger event.
type Event struct {
	Seq    int64     `json:"seq"`
	At     time.Time `json:"at"`
	Device string    `json:"device"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

// DevicesRequest lists devices.
type DevicesRequest struct{}

// DevicesResponse carries the last-known device set.
type DevicesResponse struct {
	Devices []Device `json:"devices"`
}

// RestartRequest restarts the mirror for one device.
type RestartRequest struct {
	ID string `json:"id"`
}

// RestartResponse reports whether the request was queued.
type RestartResponse struct {
	Queued bool `json:"queued"`
}

// QuitRequest stops the supervisor.
type QuitRequest struct{}

// QuitResponse reports whether shutdown was requested.
type QuitResponse struct {
	Stopping bool `json:"stopping"`
}

// HistoryRequest fetches ledger events.
type HistoryRequest struct {
	Device string `json:"device,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// HistoryResponse carries ledger events, newest first.
type HistoryResponse struct {
	Events []Event `json:"events"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse summarizes the running daemon.
type StatusResponse struct {
	SessionID string    `json:"session_id"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Socket    string    `json:"socket"`
	Devices   int       `json:"devices"`
	Mirroring int       `json:"mirroring"`
}
