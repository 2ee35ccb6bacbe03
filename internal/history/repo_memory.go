package history

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-process append-only repository for tests and local runs.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// List returns matching events, newest first.
func (r *MemoryRepo) List(_ context.Context, f Filter) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, f.limit())
	for i := len(r.events) - 1; i >= 0 && len(out) < f.limit(); i-- {
		if f.Kind != "" && r.events[i].Kind != f.Kind {
			continue
		}
		out = append(out, r.events[i])
	}
	return out, nil
}

func (r *MemoryRepo) ListRange(_ context.Context, from, to time.Time) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}
