// Package history keeps the append-only record of closed call sessions.
package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"field-agent/internal/calls"
)

// Repository is the persistence contract. It is append-only: there is no
// Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, f Filter) ([]Event, error)
	// ListRange returns every event created in [from, to), oldest first.
	ListRange(ctx context.Context, from, to time.Time) ([]Event, error)
}

var (
	ErrInvalidEvent = errors.New("history: invalid event")
	ErrNoRepository = errors.New("history: repository not configured")
	ErrClosed       = errors.New("history: service closed")
	appendTimeout   = 2 * time.Second
)

// QueueSize bounds terminal events waiting for the writer.
const QueueSize = 64

// Service records call outcomes. It implements calls.Notifier: Notify only
// enqueues, and a single writer goroutine appends in arrival order, so the
// call machine never waits on the repository. Persistence is best-effort: a
// failed or overflowing append is logged, never surfaced.
type Service struct {
	repo  Repository
	clock func() time.Time
	log   *slog.Logger

	queue chan job
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// job is either an event to append or a flush barrier.
type job struct {
	ev      Event
	flushed chan struct{}
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		repo:  repo,
		clock: time.Now,
		log:   log.With("component", "history"),
		queue: make(chan job, QueueSize),
		done:  make(chan struct{}),
	}
	go s.writer()
	return s
}

func (s *Service) writer() {
	defer close(s.done)
	for j := range s.queue {
		if j.flushed != nil {
			close(j.flushed)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := s.Append(ctx, j.ev); err != nil {
			s.log.Warn("call history append failed", "call_id", j.ev.CallID, "kind", j.ev.Kind, "err", err)
		}
		cancel()
	}
}

// Flush waits until every event enqueued before the call is written.
func (s *Service) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	select {
	case s.queue <- job{flushed: barrier}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for the writer to drain the queue.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return ErrNoRepository
	}
	if e.CallID == "" || !e.Kind.Valid() {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) List(ctx context.Context, f Filter) ([]Event, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, ErrInvalidEvent
	}
	return s.repo.List(ctx, f)
}

// Notify queues terminal call signals for the writer and ignores the rest.
// It never blocks.
func (s *Service) Notify(_ context.Context, sig calls.Signal) {
	kind, ok := kindFor(sig.Kind)
	if !ok {
		return
	}
	sess := sig.Session
	e := Event{
		Kind:          kind,
		CallID:        sess.CallID,
		CallerID:      sess.CallerID,
		CallerName:    sess.CallerName,
		CallType:      string(sess.CallType),
		ChatID:        sess.ChatID,
		RingStartedAt: sess.RingStartedAt,
		CreatedAt:     sig.At.UTC(),
	}
	if !sess.ConnectedAt.IsZero() && sig.At.After(sess.ConnectedAt) {
		e.DurationSeconds = int64(sig.At.Sub(sess.ConnectedAt) / time.Second)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.log.Warn("call history dropped: service closed", "call_id", e.CallID, "kind", e.Kind)
		return
	}
	select {
	case s.queue <- job{ev: e}:
	default:
		s.log.Warn("call history dropped: queue full", "call_id", e.CallID, "kind", e.Kind)
	}
}

func kindFor(k calls.SignalKind) (Kind, bool) {
	switch k {
	case calls.SignalMissed:
		return KindMissed, true
	case calls.SignalDeclined:
		return KindDeclined, true
	case calls.SignalEnded:
		return KindEnded, true
	}
	return "", false
}
