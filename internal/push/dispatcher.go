package push

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultWorkers bounds concurrent pushes.
const DefaultWorkers = 8

// Dispatcher runs pushes off the caller's goroutine on a bounded worker pool.
//
// Dispatch never blocks: when every worker is busy the push is dropped and
// logged. Dropping is safe for periodic documents because each is a full
// upsert that the next tick replaces. A push with no next tick goes through
// Deliver, which queues for a worker instead of dropping.
type Dispatcher struct {
	putter  Putter
	sem     *semaphore.Weighted
	timeout time.Duration
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// DispatcherOptions tunes a Dispatcher. Zero values get defaults.
type DispatcherOptions struct {
	Workers int64
	// Timeout bounds a single push, end to end.
	Timeout time.Duration
	Log     *slog.Logger
}

func NewDispatcher(p Putter, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * DefaultTimeout
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		putter:  p,
		sem:     semaphore.NewWeighted(opts.Workers),
		timeout: opts.Timeout,
		log:     opts.Log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Dispatch schedules one push. kind only labels logs ("location", "presence", "offline").
// It reports whether the push was accepted by a worker.
func (d *Dispatcher) Dispatch(kind, url string, doc any) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.dropped.Add(1)
		d.log.Warn("push dropped: dispatcher closed", "kind", kind)
		return false
	}
	if !d.sem.TryAcquire(1) {
		d.mu.Unlock()
		d.dropped.Add(1)
		d.log.Warn("push dropped: all workers busy", "kind", kind)
		return false
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		d.put(kind, url, doc)
	}()
	return true
}

// Deliver schedules a push that must not be dropped for lack of a worker.
// It returns immediately; the push waits for a free worker and is only lost
// when the dispatcher is closed first or Close gives up on in-flight work.
func (d *Dispatcher) Deliver(kind, url string, doc any) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.dropped.Add(1)
		d.log.Warn("push dropped: dispatcher closed", "kind", kind)
		return false
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			d.failed.Add(1)
			d.log.Warn("push abandoned waiting for a worker", "kind", kind, "err", err)
			return
		}
		defer d.sem.Release(1)
		d.put(kind, url, doc)
	}()
	return true
}

func (d *Dispatcher) put(kind, url string, doc any) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	if err := d.putter.Put(ctx, url, doc); err != nil {
		d.failed.Add(1)
		d.log.Warn("push failed", "kind", kind, "err", err)
		return
	}
	d.sent.Add(1)
	d.log.Debug("push sent", "kind", kind)
}

// Close stops accepting pushes and waits for in-flight ones until ctx expires,
// then cancels whatever is still running.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

func (d *Dispatcher) Stats() Stats {
	return Stats{Sent: d.sent.Load(), Failed: d.failed.Load(), Dropped: d.dropped.Load()}
}
