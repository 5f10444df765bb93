package supervisor

import (
	"context"
	"strings"

	"devmirror/internal/discovery"
	"devmirror/internal/ledger"
)

func (s *Supervisor) send(ctx context.Context, msg message) error {
	select {
	case <-s.stopped:
		return ErrStopped
	default:
	}
	select {
	case s.control <- msg:
		return nil
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Devices returns the status of every device in the last-known set, sorted by ID.
func (s *Supervisor) Devices(ctx context.Context) ([]DeviceStatus, error) {
	reply := make(chan []DeviceStatus, 1)
	if err := s.send(ctx, listMsg{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case statuses := <-reply:
		return statuses, nil
	case <-s.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Restart asks the loop to kill and respawn the mirror for id. Unknown
// identifiers are ignored by the loop. Blank identifiers are dropped here.
func (s *Supervisor) Restart(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return s.send(ctx, restartMsg{id: discovery.DeviceID(id)})
}

// Quit asks the loop to kill every mirror and stop.
func (s *Supervisor) Quit(ctx context.Context) error {
	return s.send(ctx, quitMsg{})
}

// History returns journal events, newest first.
func (s *Supervisor) History(ctx context.Context, device string, limit int) ([]ledger.Event, error) {
	reply := make(chan historyReply, 1)
	if err := s.send(ctx, historyMsg{device: strings.TrimSpace(device), limit: limit, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.events, r.err
	case <-s.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
