package keepawake

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"field-agent/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis backs the lock with a redis lease so that other processes on the
// device (or an operator) can observe it. The redis TTL is the hard bound;
// a local lock mirrors it so Held stays cheap.
type Redis struct {
	rdb    *redis.Client
	key    string
	holder string
	local  *Local
	log    *slog.Logger

	mu sync.Mutex
}

func NewRedis(rdb *redis.Client, key string, log *slog.Logger) *Redis {
	if log == nil {
		log = slog.Default()
	}
	return &Redis{
		rdb:    rdb,
		key:    "field-agent:keepawake:" + key,
		holder: uuid.NewString(),
		local:  NewLocal(key, log),
		log:    log,
	}
}

func (r *Redis) Acquire(ctx context.Context, limit time.Duration) error {
	if limit <= 0 {
		limit = CallLimit
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ok, err := utils.AcquireLease(ctx, r.rdb, r.key, r.holder, limit)
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeldElsewhere
	}
	return r.local.Acquire(ctx, limit)
}

// Release never reports an error: a failed redis delete still expires on its TTL.
func (r *Redis) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.local.Held() {
		return
	}
	r.local.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := utils.ReleaseLease(ctx, r.rdb, r.key, r.holder); err != nil {
		r.log.Warn("keep-awake lease release failed", "key", r.key, "err", err)
	}
}

func (r *Redis) Held() bool { return r.local.Held() }
