package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink mirrors audit events into a queryable SQLite table. The JSONL
// log stays authoritative; this sink exists for ad-hoc inspection.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at path and migrates the
// events table.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		event_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		proposal_id TEXT,
		capability TEXT,
		summary TEXT,
		token_digest TEXT,
		metadata JSON
	);
	CREATE INDEX IF NOT EXISTS idx_audit_proposal ON audit_events(proposal_id);
	CREATE INDEX IF NOT EXISTS idx_audit_token ON audit_events(token_digest);`
	_, err := s.db.Exec(query)
	return err
}

// Record inserts the already-redacted event.
func (s *SQLiteSink) Record(e Event) error {
	metaJSON, _ := json.Marshal(e.Metadata)
	_, err := s.db.Exec(
		`INSERT INTO audit_events (event_id, event_type, timestamp, proposal_id, capability, summary, token_digest, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.EventType, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.ProposalID, e.Capability, e.Summary, e.TokenDigest, string(metaJSON),
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// CountByType returns how many events of the given type are recorded.
func (s *SQLiteSink) CountByType(eventType string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM audit_events WHERE event_type = ?`, eventType).Scan(&n)
	return n, err
}

// Close releases the database handle.
func (s *SQLiteSink) Close() error { return s.db.Close() }
