package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPostgresPoolDefaults(t *testing.T) {
	c := PostgresPoolConfig{}.withDefaults()
	if c.MaxOpenConns != 4 || c.MaxIdleConns != 2 {
		t.Fatalf("unexpected pool sizes: %+v", c)
	}
	if c.PingTimeout != 5*time.Second || c.ConnMaxIdleTime != 5*time.Minute {
		t.Fatalf("unexpected timeouts: %+v", c)
	}
}

func TestPostgresPoolOverrides(t *testing.T) {
	c := PostgresPoolConfig{MaxOpenConns: 10, PingTimeout: time.Second}.withDefaults()
	if c.MaxOpenConns != 10 || c.PingTimeout != time.Second {
		t.Fatalf("overrides lost: %+v", c)
	}
	if c.MaxIdleConns != 2 {
		t.Fatalf("unset field should default, got %d", c.MaxIdleConns)
	}
}

func TestApplySchema_NoStatements(t *testing.T) {
	if err := ApplySchema(context.Background(), nil); !errors.Is(err, ErrEmptySchema) {
		t.Fatalf("expected ErrEmptySchema, got %v", err)
	}
}
