package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/transcript"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// startedAtLayout has fixed-width fractional seconds so that text order is
// time order.
const startedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

const attemptColumns = `ca.id, ca.agent_id, ca.lead_id, ca.script_id, ca.started_at, ca.outcome,
	ca.duration_seconds, ca.transcript, ca.messages`

// RecordAttempt appends a settled call attempt to the log. The transcript
// is stored raw and as parsed turns.
func (db *DB) RecordAttempt(ctx context.Context, a domain.CallAttempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now()
	}

	var messages sql.NullString
	if turns := transcript.Parse(a.Transcript); len(turns) > 0 {
		data, err := json.Marshal(turns)
		if err != nil {
			return err
		}
		messages = sql.NullString{String: string(data), Valid: true}
	}

	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO call_attempts (id, agent_id, lead_id, script_id, started_at, outcome, duration_seconds, transcript, messages)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AgentID, a.LeadID, a.ScriptID,
		a.StartedAt.UTC().Format(startedAtLayout), a.Outcome.String(),
		a.DurationSeconds, a.Transcript, messages,
	)
	if err != nil {
		return fmt.Errorf("recording attempt for lead %s: %w", a.LeadID, err)
	}
	return nil
}

// Attempts returns an agent's call attempts in the order they were placed.
func (db *DB) Attempts(ctx context.Context, agentID string) ([]Attempt, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT `+attemptColumns+`
		 FROM call_attempts ca
		 WHERE ca.agent_id = ?
		 ORDER BY ca.started_at, ca.rowid`, agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttempts(rows)
}

// SearchTranscripts runs an FTS5 query over stored transcripts, best match
// first. Limit of 0 defaults to 20.
func (db *DB) SearchTranscripts(ctx context.Context, query string, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.sql.QueryContext(ctx,
		`SELECT `+attemptColumns+`
		 FROM transcript_fts
		 JOIN call_attempts ca ON ca.rowid = transcript_fts.rowid
		 WHERE transcript_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, searchError(err)
	}
	defer rows.Close()
	hits, err := scanAttempts(rows)
	if err != nil {
		return nil, searchError(err)
	}
	return hits, nil
}

// searchError reports a query the FTS5 parser rejected as ErrInvalidQuery.
// The statement itself is fixed, so a plain SQL logic error can only come
// from the MATCH expression.
func searchError(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_ERROR {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return fmt.Errorf("searching transcripts: %w", err)
}

func scanAttempts(rows *sql.Rows) ([]Attempt, error) {
	attempts := []Attempt{}
	for rows.Next() {
		var a Attempt
		var startedAt, outcome string
		var messages sql.NullString

		if err := rows.Scan(
			&a.ID, &a.AgentID, &a.LeadID, &a.ScriptID, &startedAt, &outcome,
			&a.DurationSeconds, &a.Transcript, &messages,
		); err != nil {
			return nil, err
		}

		var err error
		if a.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("attempt %s: started_at: %w", a.ID, err)
		}
		if a.Outcome, err = domain.ParseOutcome(outcome); err != nil {
			return nil, fmt.Errorf("attempt %s: %w", a.ID, err)
		}
		if messages.Valid && messages.String != "" {
			if err := json.Unmarshal([]byte(messages.String), &a.Messages); err != nil {
				return nil, fmt.Errorf("attempt %s: messages: %w", a.ID, err)
			}
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
