// Package sessionstore persists the tracking identity so that the daemon can
// resume after a process restart or device reboot.
//
// The record is a flat string key/value set. It is never deleted: "no session"
// is an empty record, not a missing one.
package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Persisted keys.
const (
	KeyWorkerID        = "workerId"
	KeyOrganizationID  = "organizationId"
	KeyEndpointBaseURL = "endpointBaseUrl"
	KeyDisplayName     = "displayName"
)

var (
	ErrInvalidDriver = errors.New("sessionstore: unknown driver")
	ErrInvalidConfig = errors.New("sessionstore: invalid driver configuration")
	ErrClosed        = errors.New("sessionstore: store closed")
)

// Record is the last-known tracking identity.
type Record struct {
	WorkerID        string `json:"workerId"`
	OrganizationID  string `json:"organizationId"`
	EndpointBaseURL string `json:"endpointBaseUrl"`
	DisplayName     string `json:"displayName"`
}

// Resumable reports whether the record carries every field needed to resume tracking.
func (r Record) Resumable() bool {
	return strings.TrimSpace(r.WorkerID) != "" &&
		strings.TrimSpace(r.OrganizationID) != "" &&
		strings.TrimSpace(r.EndpointBaseURL) != ""
}

// Values flattens the record into its persisted key set.
func (r Record) Values() map[string]string {
	return map[string]string{
		KeyWorkerID:        r.WorkerID,
		KeyOrganizationID:  r.OrganizationID,
		KeyEndpointBaseURL: r.EndpointBaseURL,
		KeyDisplayName:     r.DisplayName,
	}
}

// FromValues rebuilds a record; unknown keys are ignored and missing keys stay empty.
func FromValues(v map[string]string) Record {
	return Record{
		WorkerID:        v[KeyWorkerID],
		OrganizationID:  v[KeyOrganizationID],
		EndpointBaseURL: v[KeyEndpointBaseURL],
		DisplayName:     v[KeyDisplayName],
	}
}

// Store is the persistence contract for the tracking identity.
type Store interface {
	// Load returns the stored record, or an empty Record when nothing was saved yet.
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, r Record) error
	Close() error
}

type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverFile     Driver = "file"
	DriverRedis    Driver = "redis"
	DriverPostgres Driver = "postgres"
)

// Option configures NewStore.
type Option func(*storeConfig)

type storeConfig struct {
	path     string
	redis    *redis.Client
	redisKey string
	db       *sql.DB
	table    string
}

// WithPath sets the JSON file used by the file driver.
func WithPath(path string) Option {
	return func(c *storeConfig) { c.path = path }
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(rdb *redis.Client) Option {
	return func(c *storeConfig) { c.redis = rdb }
}

// WithRedisKey overrides the hash key used by the redis driver.
func WithRedisKey(key string) Option {
	return func(c *storeConfig) { c.redisKey = key }
}

// WithDB sets the database used by the postgres driver.
func WithDB(db *sql.DB) Option {
	return func(c *storeConfig) { c.db = db }
}

// WithTable overrides the postgres table name.
func WithTable(table string) Option {
	return func(c *storeConfig) { c.table = table }
}

// NewStore builds the Store for driver.
func NewStore(driver Driver, opts ...Option) (Store, error) {
	cfg := storeConfig{
		redisKey: "field-agent:tracking-session",
		table:    "tracking_session",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFile:
		if strings.TrimSpace(cfg.path) == "" {
			return nil, ErrInvalidConfig
		}
		return &fileStore{path: cfg.path}, nil
	case DriverRedis:
		if cfg.redis == nil {
			return nil, ErrInvalidConfig
		}
		return &redisStore{client: cfg.redis, key: cfg.redisKey}, nil
	case DriverPostgres:
		if cfg.db == nil || !validTableName(cfg.table) {
			return nil, ErrInvalidConfig
		}
		return &postgresStore{db: cfg.db, table: cfg.table}, nil
	default:
		return nil, ErrInvalidDriver
	}
}

func validTableName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
