// Package ledger records request cycle outcomes in an append-only SQLite
// table for auditing. Attempt-by-attempt detail stays in the logs; the
// ledger keeps only the terminal result of each cycle.
package ledger

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbaccus/hue-presence-control/internal/huehttps"
)

// Entry represents a single recorded request cycle
type Entry struct {
	ID           int64
	ResourcePath string
	Attempts     int
	StatusCode   int
	Error        string // empty for successful cycles
	Duration     time.Duration
	CreatedAt    time.Time
}

// Ledger provides append-only outcome recording
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// RecordOutcome appends one request cycle outcome. It implements
// huehttps.Recorder and runs on the dispatch worker between cycles, so a
// write failure is logged rather than surfaced.
func (l *Ledger) RecordOutcome(o huehttps.Outcome) {
	errText := ""
	if o.Err != nil {
		errText = o.Err.Error()
	}

	_, err := l.db.Exec(`
		INSERT INTO dispatch_ledger (resource_path, attempts, status_code, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, o.ResourcePath, o.Attempts, o.StatusCode, errText, o.Duration.Milliseconds(), time.Now().UTC().Unix())
	if err != nil {
		log.Error().Err(err).Str("resource", o.ResourcePath).Msg("Failed to record dispatch outcome")
	}
}

// Recent returns the most recent entries, newest first
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, resource_path, attempts, status_code, error, duration_ms, created_at
		FROM dispatch_ledger
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ByResource returns the most recent entries for one resource path
func (l *Ledger) ByResource(resourcePath string, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, resource_path, attempts, status_code, error, duration_ms, created_at
		FROM dispatch_ledger
		WHERE resource_path = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, resourcePath, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	result, err := l.db.Exec(`
		DELETE FROM dispatch_ledger WHERE created_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var errText sql.NullString
		var durationMs, createdAt int64

		err := rows.Scan(
			&entry.ID, &entry.ResourcePath, &entry.Attempts, &entry.StatusCode,
			&errText, &durationMs, &createdAt,
		)
		if err != nil {
			return nil, err
		}

		if errText.Valid {
			entry.Error = errText.String
		}
		entry.Duration = time.Duration(durationMs) * time.Millisecond
		entry.CreatedAt = time.Unix(createdAt, 0).UTC()

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
