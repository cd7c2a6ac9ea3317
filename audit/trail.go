// Package audit records lifecycle decisions in a sqlite database so that the
// marker files' diagnostic intent has a queryable history. The trail is
// best-effort: callers log write failures and carry on, a trigger never fails
// because the audit database was unavailable.
package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// EventType classifies a lifecycle audit event.
type EventType string

const (
	EventStarted            EventType = "started"
	EventAlreadyRunning     EventType = "already_running"
	EventSkippedPowerSource EventType = "skipped_power_source"
	EventSuspended          EventType = "suspended"
	EventNotRunning         EventType = "not_running"
	EventExitPreserved      EventType = "exit_preserved"
	EventManualClose        EventType = "manual_close"
	EventFailure            EventType = "failure"
)

// Event is one audit log entry.
type Event struct {
	ID          string `db:"id"`
	EventType   string `db:"event_type"`
	Timestamp   int64  `db:"timestamp"`
	Application string `db:"application"`
	PID         *int   `db:"pid"` // Nullable for events without a live process
	Detail      string `db:"detail"`
}

// Trail appends and queries lifecycle audit events.
type Trail struct {
	db *sqlx.DB
}

// NewTrail creates a Trail over db, initializing the schema if needed.
func NewTrail(db *sqlx.DB) (*Trail, error) {
	if err := DBInit(db); err != nil {
		return nil, err
	}
	return &Trail{db: db}, nil
}

// DBInit initializes the lifecycle events table.
func DBInit(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS lifecycle_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		application TEXT NOT NULL,
		pid INTEGER,
		detail TEXT
	)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_lifecycle_events_timestamp ON lifecycle_events(timestamp)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_lifecycle_events_application ON lifecycle_events(application)`)
	return err
}

// Record appends one event. pid may be zero for events without a live
// process.
func (t *Trail) Record(eventType EventType, application string, pid int, detail string) error {
	event := &Event{
		ID:          uuid.New().String(),
		EventType:   string(eventType),
		Timestamp:   time.Now().UTC().Unix(),
		Application: application,
		Detail:      detail,
	}
	if pid != 0 {
		event.PID = &pid
	}
	return t.insertEvent(event)
}

func (t *Trail) insertEvent(event *Event) error {
	_, err := t.db.Exec(`
		INSERT INTO lifecycle_events (
			id, event_type, timestamp, application, pid, detail
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID,
		event.EventType,
		event.Timestamp,
		event.Application,
		event.PID,
		event.Detail,
	)
	return err
}

// GetEventsByApplication retrieves the most recent events for one
// application.
func (t *Trail) GetEventsByApplication(application string, limit int) ([]Event, error) {
	var events []Event
	err := t.db.Select(&events,
		"SELECT * FROM lifecycle_events WHERE application = $1 ORDER BY timestamp DESC LIMIT $2",
		application, limit)
	return events, err
}

// GetRecentEvents retrieves the most recent events across all applications.
func (t *Trail) GetRecentEvents(limit int) ([]Event, error) {
	var events []Event
	err := t.db.Select(&events,
		"SELECT * FROM lifecycle_events ORDER BY timestamp DESC LIMIT $1",
		limit)
	return events, err
}

// DeleteOldEvents deletes events older than the specified duration and
// returns the number removed.
func (t *Trail) DeleteOldEvents(olderThan time.Duration) (int64, error) {
	threshold := time.Now().UTC().Add(-olderThan).Unix()
	result, err := t.db.Exec("DELETE FROM lifecycle_events WHERE timestamp < $1", threshold)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
