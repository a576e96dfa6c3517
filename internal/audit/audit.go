// Package audit appends a best-effort forensic record of admission
// decisions (signed register-pc and pending-sid, unsigned sid-status) to
// Postgres.
// It is disabled by default and, when enabled, never fails the admission
// request it observes.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// Logger appends admission decisions to a Postgres table. A nil *Logger
// is valid; every method becomes a no-op so callers never need to branch
// on whether auditing is enabled.
type Logger struct {
	db *sql.DB
}

// New opens a connection to dsn and ensures the audit table exists. An
// empty dsn disables auditing: New returns (nil, nil).
func New(dsn string) (*Logger, error) {
	if dsn == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}

	return &Logger{db: db}, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS relay_admission_audit (
	id          BIGSERIAL PRIMARY KEY,
	event_id    TEXT NOT NULL,
	op          TEXT NOT NULL,
	pcid        TEXT,
	sid         TEXT,
	outcome     TEXT NOT NULL,
	code        TEXT,
	request_id  TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Record is one admission decision to persist.
type Record struct {
	EventID   string
	Op        string // register-pc, pending-sid, sid-status
	PCID      string
	SID       string
	Outcome   string // allow, deny
	Code      string // wire error code, empty on allow
	RequestID string
}

// Write appends rec. Failures are logged, never returned to the caller,
// since auditing must not be allowed to fail the admission path it
// observes. A nil Logger is a no-op.
func (l *Logger) Write(ctx context.Context, rec Record) {
	if l == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO relay_admission_audit (event_id, op, pcid, sid, outcome, code, request_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.EventID, rec.Op, rec.PCID, rec.SID, rec.Outcome, rec.Code, rec.RequestID,
	)
	if err != nil {
		slog.Warn("audit: write failed", "event", rec.EventID, "op", rec.Op, "error", err)
	}
}

// Close releases the underlying connection. A nil Logger is a no-op.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}
