package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// DefaultHistoryLimit caps History when the caller passes a non-positive limit.
const DefaultHistoryLimit = 50

// Kind classifies a lifecycle event.
type Kind string

const (
	KindAttached    Kind = "attached"
	KindDetached    Kind = "detached"
	KindSpawned     Kind = "spawned"
	KindSpawnFailed Kind = "spawn_failed"
	KindKilled      Kind = "killed"
	KindExited      Kind = "exited"
	KindRestarted   Kind = "restarted"
)

// Event is one journal entry.
type Event struct {
	Seq     int64     `json:"seq"`
	At      time.Time `json:"at"`
	Session string    `json:"session"`
	Device  string    `json:"device"`
	Kind    Kind      `json:"kind"`
	Detail  string    `json:"detail,omitempty"`
}

// ErrClosed is returned when the ledger has been closed.
var ErrClosed = errors.New("ledger closed")

// Ledger records lifecycle events in an in-memory SQLite database.
type Ledger struct {
	db      *sql.DB
	session string
	now     func() time.Time
}

// Open creates an empty ledger tagged with session.
func Open(session string) (*Ledger, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Ledger{db: db, session: session, now: time.Now}, nil
}

// Close discards the journal.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// Record appends an event for device.
func (l *Ledger) Record(ctx context.Context, device string, kind Kind, detail string) error {
	if l == nil || l.db == nil {
		return ErrClosed
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO events (at, session, device, kind, detail) VALUES (?, ?, ?, ?, ?)`,
		l.now().UTC().Format(time.RFC3339Nano),
		l.session,
		device,
		string(kind),
		strings.TrimSpace(detail),
	)
	if err != nil {
		return fmt.Errorf("record %s event for %s: %w", kind, device, err)
	}
	return nil
}

// History returns up to limit events, newest first. An empty device returns
// events for every device.
func (l *Ledger) History(ctx context.Context, device string, limit int) ([]Event, error) {
	if l == nil || l.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `SELECT seq, at, session, device, kind, detail FROM events`
	args := make([]any, 0, 2)
	if device = strings.TrimSpace(device); device != "" {
		query += ` WHERE device = ?`
		args = append(args, device)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev   Event
			at   string
			kind string
		)
		if err := rows.Scan(&ev.Seq, &at, &ev.Session, &ev.Device, &kind, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		ev.Kind = Kind(kind)
		if parsed, err := time.Parse(time.RFC3339Nano, at); err == nil {
			ev.At = parsed
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return events, nil
}
