package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"field-agent/pkg/utils"
)

// PostgresRepo stores events in an INSERT-only table:
//
//	call_history (id UUID PRIMARY KEY, kind TEXT, call_id TEXT, caller_id TEXT,
//	              caller_name TEXT, call_type TEXT, chat_id TEXT,
//	              ring_started_at TIMESTAMPTZ NULL, duration_seconds BIGINT,
//	              created_at TIMESTAMPTZ)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

var historySchema = []string{`
CREATE TABLE IF NOT EXISTS call_history (
	id               UUID PRIMARY KEY,
	kind             TEXT NOT NULL,
	call_id          TEXT NOT NULL,
	caller_id        TEXT NOT NULL DEFAULT '',
	caller_name      TEXT NOT NULL DEFAULT '',
	call_type        TEXT NOT NULL DEFAULT '',
	chat_id          TEXT NOT NULL DEFAULT '',
	ring_started_at  TIMESTAMPTZ NULL,
	duration_seconds BIGINT NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS call_history_created_at_idx ON call_history (created_at DESC)`,
}

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if err := utils.ApplySchema(ctx, r.db, historySchema...); err != nil {
		return fmt.Errorf("call history schema: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	var ringStarted sql.NullTime
	if !e.RingStartedAt.IsZero() {
		ringStarted = sql.NullTime{Time: e.RingStartedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO call_history
	(id, kind, call_id, caller_id, caller_name, call_type, chat_id, ring_started_at, duration_seconds, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, string(e.Kind), e.CallID, e.CallerID, e.CallerName, e.CallType, e.ChatID,
		ringStarted, e.DurationSeconds, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append call history: %w", err)
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Event, error) {
	q := `
SELECT id, kind, call_id, caller_id, caller_name, call_type, chat_id, ring_started_at, duration_seconds, created_at
FROM call_history
WHERE ($1 = '' OR kind = $1)
ORDER BY created_at DESC
LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, string(f.Kind), f.limit())
	if err != nil {
		return nil, fmt.Errorf("list call history: %w", err)
	}
	return scanEvents(rows)
}

func (r *PostgresRepo) ListRange(ctx context.Context, from, to time.Time) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, kind, call_id, caller_id, caller_name, call_type, chat_id, ring_started_at, duration_seconds, created_at
FROM call_history
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list call history range: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e           Event
			kind        string
			ringStarted sql.NullTime
		)
		if err := rows.Scan(&e.ID, &kind, &e.CallID, &e.CallerID, &e.CallerName, &e.CallType, &e.ChatID,
			&ringStarted, &e.DurationSeconds, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call history: %w", err)
		}
		e.Kind = Kind(kind)
		if ringStarted.Valid {
			e.RingStartedAt = ringStarted.Time
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list call history: %w", err)
	}
	return out, nil
}
