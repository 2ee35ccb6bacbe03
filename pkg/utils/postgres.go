package utils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresPoolConfig sizes the database/sql pool. Zero values pick defaults
// sized for an agent that writes a few session keys and call history rows.
type PostgresPoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

var defaultPool = PostgresPoolConfig{
	MaxOpenConns:    4,
	MaxIdleConns:    2,
	ConnMaxLifetime: 30 * time.Minute,
	ConnMaxIdleTime: 5 * time.Minute,
	PingTimeout:     5 * time.Second,
}

func (c PostgresPoolConfig) withDefaults() PostgresPoolConfig {
	pick := func(v, def int) int {
		if v <= 0 {
			return def
		}
		return v
	}
	pickDur := func(v, def time.Duration) time.Duration {
		if v <= 0 {
			return def
		}
		return v
	}
	return PostgresPoolConfig{
		MaxOpenConns:    pick(c.MaxOpenConns, defaultPool.MaxOpenConns),
		MaxIdleConns:    pick(c.MaxIdleConns, defaultPool.MaxIdleConns),
		ConnMaxLifetime: pickDur(c.ConnMaxLifetime, defaultPool.ConnMaxLifetime),
		ConnMaxIdleTime: pickDur(c.ConnMaxIdleTime, defaultPool.ConnMaxIdleTime),
		PingTimeout:     pickDur(c.PingTimeout, defaultPool.PingTimeout),
	}
}

// OpenPostgres opens and pings a pool. driverName is "pgx" once the caller
// blank-imports github.com/jackc/pgx/v5/stdlib. Never log dsn.
func OpenPostgres(ctx context.Context, driverName, dsn string, pool PostgresPoolConfig) (*sql.DB, error) {
	pool = pool.withDefaults()

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := HealthCheck(ctx, db, pool.PingTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("db ping failed: %w", err)
	}
	return nil
}

var ErrEmptySchema = errors.New("utils: no schema statements")

// ApplySchema runs idempotent DDL statements in a single transaction, one
// statement per Exec so no driver has to support multi-statement strings.
func ApplySchema(ctx context.Context, db *sql.DB, stmts ...string) error {
	if len(stmts) == 0 {
		return ErrEmptySchema
	}
	return WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for i, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("schema statement %d: %w", i+1, err)
			}
		}
		return nil
	})
}

type TxFunc func(ctx context.Context, tx *sql.Tx) error

// WithTx commits when fn returns nil and rolls back on error or panic.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFunc) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(ctx, tx)
}
