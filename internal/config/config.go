package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the agent process needs.
// All values come from env (or an env-file loaded by the process runner).
// Nothing below cmd/ reads raw environment variables.
type Config struct {
	App    AppConfig
	Store  StoreConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Push   PushConfig
	Device DeviceConfig
}

type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

// StoreConfig selects where the tracking session (and call history) lives.
type StoreConfig struct {
	// Driver: memory, file, redis, postgres.
	Driver string
	// Path is the session file for the file driver.
	Path string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type PushConfig struct {
	// Timeout is both the connect and the read timeout of one push.
	Timeout time.Duration
	Workers int

	// Inbound webhook budget per worker, requests per second and burst.
	WebhookRate  float64
	WebhookBurst int
}

// DeviceConfig stands in for what a handset would report about itself.
type DeviceConfig struct {
	// KeepAwakeDriver: local or redis.
	KeepAwakeDriver string
	// Capabilities is a comma separated grant list, e.g. "location,notifications".
	Capabilities      string
	RejectWhileActive bool
}

const (
	defaultStorePath    = "data/tracking-session.json"
	defaultPushTimeout  = 10 * time.Second
	defaultPushWorkers  = 8
	defaultWebhookRate  = 10
	defaultWebhookBurst = 20
	defaultCapabilities = "location,notifications"
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = collect(parseErrs)(mustInt("APP_PORT"))
	c.App.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))

	c.Store.Driver = strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))
	c.Store.Path = strings.TrimSpace(os.Getenv("STORE_PATH"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = collect(parseErrs)(optionalInt("DB_PORT", 5432))
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = collect(parseErrs)(optionalInt("REDIS_PORT", 6379))
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB, parseErrs = collect(parseErrs)(optionalInt("REDIS_DB", 0))

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Durations are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL, parseErrs = collectDuration(parseErrs)(optionalDuration("JWT_ACCESS_TTL"))
	c.Auth.RefreshTokenTTL, parseErrs = collectDuration(parseErrs)(optionalDuration("JWT_REFRESH_TTL"))

	c.Push.Timeout, parseErrs = collectDuration(parseErrs)(optionalDuration("PUSH_TIMEOUT"))
	c.Push.Workers, parseErrs = collect(parseErrs)(optionalInt("PUSH_WORKERS", 0))
	c.Push.WebhookRate, parseErrs = collectFloat(parseErrs)(optionalFloat("PUSH_WEBHOOK_RATE"))
	c.Push.WebhookBurst, parseErrs = collect(parseErrs)(optionalInt("PUSH_WEBHOOK_BURST", 0))

	c.Device.KeepAwakeDriver = strings.ToLower(strings.TrimSpace(os.Getenv("KEEPAWAKE_DRIVER")))
	if v, ok := os.LookupEnv("CAPABILITIES"); ok {
		c.Device.Capabilities = strings.TrimSpace(v)
	} else {
		c.Device.Capabilities = defaultCapabilities
	}
	c.Device.RejectWhileActive, parseErrs = collectBool(parseErrs)(optionalBool("CALLS_REJECT_WHILE_ACTIVE"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the config and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.LogLevel != "" && !isValidLogLevel(c.App.LogLevel) {
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.App.LogLevel))
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "file"
	}
	switch c.Store.Driver {
	case "memory", "redis", "postgres":
	case "file":
		if c.Store.Path == "" {
			c.Store.Path = defaultStorePath
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of memory, file, redis, postgres, got %q", c.Store.Driver))
	}
	if c.Store.Driver == "memory" && c.IsProduction() {
		errs = append(errs, errors.New("STORE_DRIVER=memory cannot resume after restart and is not allowed in production"))
	}

	if c.Device.KeepAwakeDriver == "" {
		c.Device.KeepAwakeDriver = "local"
	}
	if c.Device.KeepAwakeDriver != "local" && c.Device.KeepAwakeDriver != "redis" {
		errs = append(errs, fmt.Errorf("KEEPAWAKE_DRIVER must be one of local, redis, got %q", c.Device.KeepAwakeDriver))
	}

	if c.UsesPostgres() {
		if c.DB.Host == "" {
			errs = append(errs, errors.New("DB_HOST is required for the postgres store"))
		}
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required for the postgres store"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required for the postgres store"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.UsesRedis() {
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required for the redis store or keep-awake driver"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Push.Timeout <= 0 {
		c.Push.Timeout = defaultPushTimeout
	}
	if c.Push.Workers == 0 {
		c.Push.Workers = defaultPushWorkers
	}
	if c.Push.Workers < 0 {
		errs = append(errs, fmt.Errorf("PUSH_WORKERS must be positive, got %d", c.Push.Workers))
	}
	if c.Push.WebhookRate == 0 {
		c.Push.WebhookRate = defaultWebhookRate
	}
	if c.Push.WebhookBurst == 0 {
		c.Push.WebhookBurst = defaultWebhookBurst
	}
	if c.Push.WebhookRate < 0 || c.Push.WebhookBurst < 0 {
		errs = append(errs, errors.New("PUSH_WEBHOOK_RATE and PUSH_WEBHOOK_BURST must be positive"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) UsesPostgres() bool { return c.Store.Driver == "postgres" }

func (c Config) UsesRedis() bool {
	return c.Store.Driver == "redis" || c.Device.KeepAwakeDriver == "redis"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Contains secrets; never log it.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 10s, got %q", key, v)
	}
	return d, nil
}

func optionalFloat(key string) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func optionalBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func collect(errs []error) func(int, error) (int, []error) {
	return func(n int, err error) (int, []error) {
		if err != nil {
			errs = append(errs, err)
		}
		return n, errs
	}
}

func collectDuration(errs []error) func(time.Duration, error) (time.Duration, []error) {
	return func(d time.Duration, err error) (time.Duration, []error) {
		if err != nil {
			errs = append(errs, err)
		}
		return d, errs
	}
}

func collectFloat(errs []error) func(float64, error) (float64, []error) {
	return func(f float64, err error) (float64, []error) {
		if err != nil {
			errs = append(errs, err)
		}
		return f, errs
	}
}

func collectBool(errs []error) func(bool, error) (bool, []error) {
	return func(b bool, err error) (bool, []error) {
		if err != nil {
			errs = append(errs, err)
		}
		return b, errs
	}
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
