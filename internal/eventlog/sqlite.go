package eventlog

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/spachava753/peerlab/internal/models"
)

// SQLiteSink stores events in an "events" table, one row per event with the
// full event as a JSON payload. Several runs may share one database; rows are
// keyed by run id.
type SQLiteSink struct {
	db    *sql.DB
	stmt  *sql.Stmt
	runID string
}

// OpenSQLite opens (or creates) a SQLite database at path and prepares the
// events table for the run runID.
func OpenSQLite(path, runID string) (*SQLiteSink, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	schema := `
CREATE TABLE IF NOT EXISTS events (
    run_id TEXT NOT NULL DEFAULT '',
    seq INTEGER NOT NULL,
    ts INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    turn INTEGER NOT NULL DEFAULT 0,
    agent TEXT,
    stage TEXT,
    error_type TEXT,
    description TEXT NOT NULL,
    payload TEXT NOT NULL,
    PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	stmt, err := db.Prepare(`INSERT INTO events
    (run_id, seq, ts, event_type, turn, agent, stage, error_type, description, payload)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return &SQLiteSink{db: db, stmt: stmt, runID: runID}, nil
}

// Write inserts e under the sink's run id.
func (s *SQLiteSink) Write(e models.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event %d: %w", e.Seq, err)
	}
	var stage sql.NullString
	if e.Stage != nil {
		stage = sql.NullString{String: e.Stage.String(), Valid: true}
	}
	_, err = s.stmt.Exec(
		s.runID,
		e.Seq,
		e.Timestamp.UnixMilli(),
		string(e.Type),
		e.Turn,
		nullable(string(e.Agent)),
		stage,
		nullable(string(e.ErrorType)),
		e.Message,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("inserting event %d: %w", e.Seq, err)
	}
	return nil
}

// Events reads back the run's stored events in sequence order.
func (s *SQLiteSink) Events() ([]models.Event, error) {
	rows, err := s.db.Query(`SELECT payload FROM events WHERE run_id = ? ORDER BY seq`, s.runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var e models.Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByType returns the number of the run's stored events of each type.
func (s *SQLiteSink) CountByType() (map[models.EventType]int, error) {
	rows, err := s.db.Query(`SELECT event_type, COUNT(*) FROM events WHERE run_id = ? GROUP BY event_type`, s.runID)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.EventType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[models.EventType(t)] = n
	}
	return counts, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteSink) Close() error {
	s.stmt.Close()
	return s.db.Close()
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
