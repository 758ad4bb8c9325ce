// Package monitoring - audit.go records request events to sqlite.
//
// DESIGN: AuditStore appends one row per request to an embedded sqlite
// database so operators can answer "who hit what and when" after the
// fact. Writes happen after the response is sent and a write
// failure is logged, never surfaced to the client. An empty path disables
// the store entirely; every method is nil-safe so callers need no guards.
package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS request_audit (
	id              TEXT PRIMARY KEY,
	ts              TEXT NOT NULL,
	method          TEXT NOT NULL,
	path            TEXT NOT NULL,
	client_ip       TEXT,
	status          INTEGER NOT NULL,
	upstream_status INTEGER,
	outcome         TEXT NOT NULL,
	duration_ms     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS request_audit_ts ON request_audit(ts);
CREATE INDEX IF NOT EXISTS request_audit_outcome ON request_audit(outcome);
`

// AuditStore persists request events. A nil store is a disabled store.
type AuditStore struct {
	db       *sql.DB
	path     string
	recorded atomic.Int64
}

// OpenAudit opens (creating if needed) the audit database at path.
// An empty path returns a nil store, which disables auditing.
func OpenAudit(path string) (*AuditStore, error) {
	if path == "" {
		return nil, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// sqlite allows a single writer; a second connection would just block.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(auditSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}

	return &AuditStore{db: db, path: path}, nil
}

// Record appends one request event. Failures are logged and swallowed so a
// broken audit disk never takes down request serving.
func (s *AuditStore) Record(ctx context.Context, evt *RequestEvent) {
	if s == nil || evt == nil {
		return
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO request_audit
		 (id, ts, method, path, client_ip, status, upstream_status, outcome, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.RequestID,
		evt.Timestamp.UTC().Format(time.RFC3339Nano),
		evt.Method,
		evt.Path,
		evt.ClientIP,
		evt.StatusCode,
		evt.UpstreamStatus,
		string(evt.Outcome),
		evt.DurationMs,
	)
	if err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("audit: failed to record request")
		return
	}
	s.recorded.Add(1)
}

// Recent returns the most recent events, newest first.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]RequestEvent, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, method, path, client_ip, status, upstream_status, outcome, duration_ms
		 FROM request_audit ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []RequestEvent
	for rows.Next() {
		var evt RequestEvent
		var ts, outcome string
		if err := rows.Scan(&evt.RequestID, &ts, &evt.Method, &evt.Path, &evt.ClientIP,
			&evt.StatusCode, &evt.UpstreamStatus, &outcome, &evt.DurationMs); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		evt.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		evt.Outcome = Outcome(outcome)
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Ping checks the store is reachable, for the health endpoint.
func (s *AuditStore) Ping(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Close flushes and closes the store.
func (s *AuditStore) Close() error {
	if s == nil {
		return nil
	}
	if n := s.recorded.Load(); n > 0 {
		log.Info().Str("path", s.path).Int64("events", n).Msg("audit: session complete")
	}
	return s.db.Close()
}
