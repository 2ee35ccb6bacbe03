package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:  AppConfig{Env: "local", Port: 8080},
		Auth: AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV is required", "APP_PORT", "JWT_SECRET is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Store.Driver != "file" || c.Store.Path != defaultStorePath {
		t.Fatalf("expected file store default, got %+v", c.Store)
	}
	if c.Device.KeepAwakeDriver != "local" {
		t.Fatalf("expected local keep-awake, got %q", c.Device.KeepAwakeDriver)
	}
	if c.Push.Timeout != 10*time.Second || c.Push.Workers != 8 || c.Push.WebhookRate != 10 || c.Push.WebhookBurst != 20 {
		t.Fatalf("unexpected push defaults: %+v", c.Push)
	}
	if c.UsesPostgres() || c.UsesRedis() {
		t.Fatalf("local defaults must not need postgres or redis")
	}
}

func TestValidate_PostgresStoreNeedsDB(t *testing.T) {
	c := validLocal()
	c.Store.Driver = "postgres"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DB_HOST") {
		t.Fatalf("expected DB_HOST error, got %v", err)
	}

	c = validLocal()
	c.Store.Driver = "postgres"
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Name: "agent"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_ProductionRequiresSSLModeAndDurableStore(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "production", Port: 8080},
		Store: StoreConfig{Driver: "postgres"},
		DB:    DBConfig{Host: "db", Port: 5432, User: "postgres", Name: "agent"},
		Auth:  AuthConfig{JWTSecret: "secret", JWTIssuer: "i", JWTAudience: "a"},
	}
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected DB_SSLMODE error, got %v", err)
	}

	c.Store.Driver = "memory"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "STORE_DRIVER=memory") {
		t.Fatalf("expected memory store rejection, got %v", err)
	}
}

func TestValidate_RedisKeepAwakeNeedsRedis(t *testing.T) {
	c := validLocal()
	c.Device.KeepAwakeDriver = "redis"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "REDIS_HOST") {
		t.Fatalf("expected REDIS_HOST error, got %v", err)
	}
}

func TestValidate_RejectsUnknownDrivers(t *testing.T) {
	c := validLocal()
	c.Store.Driver = "sqlite"
	c.Device.KeepAwakeDriver = "wakelock"
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "STORE_DRIVER") || !strings.Contains(err.Error(), "KEEPAWAKE_DRIVER") {
		t.Fatalf("expected both driver errors, got %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("PUSH_TIMEOUT", "3s")
	t.Setenv("PUSH_WORKERS", "2")
	t.Setenv("CAPABILITIES", "location")
	t.Setenv("CALLS_REJECT_WHILE_ACTIVE", "true")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPAddr() != ":9090" {
		t.Fatalf("unexpected addr %q", c.HTTPAddr())
	}
	if c.Push.Timeout != 3*time.Second || c.Push.Workers != 2 {
		t.Fatalf("unexpected push config: %+v", c.Push)
	}
	if c.Device.Capabilities != "location" || !c.Device.RejectWhileActive {
		t.Fatalf("unexpected device config: %+v", c.Device)
	}
}

func TestLoad_ReportsParseErrors(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("PUSH_TIMEOUT", "soon")
	t.Setenv("PUSH_WEBHOOK_RATE", "fast")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected parse errors")
	}
	if !strings.Contains(err.Error(), "APP_PORT") || !strings.Contains(err.Error(), "PUSH_TIMEOUT") || !strings.Contains(err.Error(), "PUSH_WEBHOOK_RATE") {
		t.Fatalf("expected both parse errors, got %v", err)
	}
}
