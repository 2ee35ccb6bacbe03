// Package keepawake models the wake-lock equivalent held while a call rings or
// a tracking session runs. Every lock carries a hard upper bound and is
// released automatically once that bound elapses.
package keepawake

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Default hard bounds, one per subsystem.
const (
	CallLimit     = 60 * time.Second
	TrackingLimit = 24 * time.Hour
)

var ErrHeldElsewhere = errors.New("keepawake: lock held by another holder")

// Lock is an exclusive, time-bounded keep-awake resource.
//
// Release must be safe to call on an already-released (or never acquired) lock.
type Lock interface {
	Acquire(ctx context.Context, limit time.Duration) error
	Release()
	Held() bool
}

// Local is an in-process lock. The hard bound is enforced with time.AfterFunc.
type Local struct {
	name string
	log  *slog.Logger

	mu    sync.Mutex
	held  bool
	timer *time.Timer
	gen   uint64
}

func NewLocal(name string, log *slog.Logger) *Local {
	if log == nil {
		log = slog.Default()
	}
	return &Local{name: name, log: log}
}

// Acquire takes the lock, or refreshes its bound if already held.
func (l *Local) Acquire(_ context.Context, limit time.Duration) error {
	if limit <= 0 {
		limit = CallLimit
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
	}
	l.gen++
	gen := l.gen
	l.held = true
	l.timer = time.AfterFunc(limit, func() { l.expire(gen) })
	l.log.Debug("keep-awake acquired", "lock", l.name, "limit", limit.String())
	return nil
}

func (l *Local) expire(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held || gen != l.gen {
		return
	}
	l.held = false
	l.timer = nil
	l.log.Warn("keep-awake hard limit reached, released", "lock", l.name)
}

func (l *Local) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.held {
		l.log.Debug("keep-awake released", "lock", l.name)
	}
	l.held = false
	l.gen++
}

func (l *Local) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}
