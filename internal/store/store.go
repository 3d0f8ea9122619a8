// Package store persists calibration state and the session event log in
// a local SQLite database.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ubicomp-capstone/gazepatch/pkg/calib"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	ts     INTEGER NOT NULL,
	kind   TEXT NOT NULL,
	detail TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
`

const calibrationKey = "calibration"

// Store wraps the SQLite database. It implements calib.Store for the
// calibration state and swap.EventSink for the session log. Event
// writes go through a bounded queue drained by a background goroutine,
// so Record never blocks the sample path.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	closed  bool
	queue   chan eventRow
	drained chan struct{}
}

// eventRow is one queued event write. A row with a non-nil flush is a
// barrier: the writer acknowledges it once everything before it hit the
// database.
type eventRow struct {
	ts     int64
	kind   string
	detail any
	flush  chan struct{}
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:      db,
		logger:  logger.With("component", "store"),
		now:     time.Now,
		queue:   make(chan eventRow, 256),
		drained: make(chan struct{}),
	}
	go s.writeLoop()
	return s, nil
}

// writeLoop drains the event queue until Close.
func (s *Store) writeLoop() {
	defer close(s.drained)
	for row := range s.queue {
		if row.flush != nil {
			close(row.flush)
			continue
		}
		_, err := s.db.Exec(
			`INSERT INTO events (ts, kind, detail) VALUES (?, ?, ?)`,
			row.ts, row.kind, row.detail,
		)
		if err != nil {
			s.logger.Warn("event not recorded", "kind", row.kind, "error", err)
		}
	}
}

// Close stops the event writer, waits for queued events to land and
// closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.drained
	return s.db.Close()
}

// LoadCalibration returns the persisted calibration state, or nil when
// none exists. Malformed state is logged and treated as absent so a
// corrupt row can never keep the daemon from starting.
func (s *Store) LoadCalibration() (*calib.PersistedState, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, calibrationKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load calibration: %w", err)
	}

	var state calib.PersistedState
	if err := json.Unmarshal([]byte(value), &state); err != nil {
		s.logger.Warn("calibration state malformed, ignoring", "error", err)
		return nil, nil
	}
	return &state, nil
}

// SaveCalibration upserts the calibration state.
func (s *Store) SaveCalibration(state calib.PersistedState) error {
	value, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store: encode calibration: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		calibrationKey, string(value),
	)
	if err != nil {
		return fmt.Errorf("store: save calibration: %w", err)
	}
	return nil
}

// DeleteCalibration removes the persisted calibration state.
func (s *Store) DeleteCalibration() error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, calibrationKey); err != nil {
		return fmt.Errorf("store: delete calibration: %w", err)
	}
	return nil
}

// Event is one row of the session log.
type Event struct {
	ID     int64           `json:"id"`
	At     time.Time       `json:"ts"`
	Kind   string          `json:"kind"`
	Detail json.RawMessage `json:"detail,omitempty"`
}

// Record queues an event for the background writer. It never blocks and
// never returns an error; a full queue or a failed write is logged and
// the event dropped.
func (s *Store) Record(kind string, detail map[string]any) {
	var detailJSON any
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			s.logger.Warn("event detail not encodable", "kind", kind, "error", err)
		} else {
			detailJSON = string(b)
		}
	}
	row := eventRow{ts: s.now().UnixMilli(), kind: kind, detail: detailJSON}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- row:
	default:
		s.logger.Warn("event queue full, event dropped", "kind", kind)
	}
}

// Flush blocks until every event recorded before it has been written.
// Readers that need a consistent view (and tests) call it before
// querying.
func (s *Store) Flush() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ack := make(chan struct{})
	s.queue <- eventRow{flush: ack}
	s.mu.Unlock()
	<-ack
}

// Events returns the most recent events, newest first.
func (s *Store) Events(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, ts, kind, detail FROM events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e      Event
			ts     int64
			detail sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Kind, &detail); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		e.At = time.UnixMilli(ts)
		if detail.Valid {
			e.Detail = json.RawMessage(detail.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
