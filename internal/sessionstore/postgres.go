package sessionstore

import (
	"context"
	"database/sql"
	"fmt"

	"field-agent/pkg/utils"
)

// postgresStore keeps one row per key:
//
//	CREATE TABLE tracking_session (key TEXT PRIMARY KEY, value TEXT NOT NULL, updated_at TIMESTAMPTZ NOT NULL)
//
// Save upserts the whole key set in one transaction so a resume never reads a
// half-written identity.
type postgresStore struct {
	db    *sql.DB
	table string
}

// EnsureSchema creates the key/value table when missing.
func (s *postgresStore) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if err := utils.ApplySchema(ctx, s.db, q); err != nil {
		return fmt.Errorf("postgres session schema: %w", err)
	}
	return nil
}

func (s *postgresStore) Load(ctx context.Context) (Record, error) {
	q := fmt.Sprintf(`SELECT key, value FROM %s`, s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return Record{}, fmt.Errorf("postgres load session: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, 4)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Record{}, fmt.Errorf("postgres scan session: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return Record{}, fmt.Errorf("postgres load session: %w", err)
	}
	return FromValues(values), nil
}

func (s *postgresStore) Save(ctx context.Context, r Record) error {
	q := fmt.Sprintf(`
INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, s.table)

	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		for k, v := range r.Values() {
			if _, err := tx.ExecContext(ctx, q, k, v); err != nil {
				return fmt.Errorf("postgres save session %s: %w", k, err)
			}
		}
		return nil
	})
}

// Close leaves the shared pool open; its owner closes it.
func (s *postgresStore) Close() error { return nil }

// SchemaEnsurer is implemented by drivers that can create their own schema.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}
