// Package tracking runs the background location and presence producers for
// one worker and keeps the identity they report under persisted so that the
// session survives restarts.
package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"field-agent/internal/keepawake"
	"field-agent/internal/sessionstore"
)

// DefaultPresenceInterval is the heartbeat period.
const DefaultPresenceInterval = 15 * time.Second

// Dispatcher schedules a fire-and-forget push.
type Dispatcher interface {
	// Dispatch may drop the push when the pool is saturated.
	Dispatch(kind, url string, doc any) bool
	// Deliver queues the push until a worker frees up.
	Deliver(kind, url string, doc any) bool
}

type Options struct {
	Store        sessionstore.Store
	Pusher       Dispatcher
	Lock         keepawake.Lock
	Source       LocationSource
	Capabilities Capabilities

	Request          LocationRequest
	PresenceInterval time.Duration
	// LockLimit bounds the tracking keep-awake lock.
	LockLimit time.Duration

	Now func() time.Time
	Log *slog.Logger
}

// Daemon owns at most one running tracking session.
type Daemon struct {
	store    sessionstore.Store
	pusher   Dispatcher
	lock     keepawake.Lock
	source   LocationSource
	caps     Capabilities
	req      LocationRequest
	presence time.Duration
	limit    time.Duration
	now      func() time.Time
	log      *slog.Logger

	mu  sync.Mutex
	run *run

	stMu           sync.Mutex
	lastLocation   *LocationDoc
	lastPresenceAt time.Time
}

type run struct {
	id        Identity
	startedAt time.Time
	cancel    context.CancelFunc
	done      sync.WaitGroup
}

func NewDaemon(opts Options) *Daemon {
	d := &Daemon{
		store:    opts.Store,
		pusher:   opts.Pusher,
		lock:     opts.Lock,
		source:   opts.Source,
		caps:     opts.Capabilities,
		req:      opts.Request,
		presence: opts.PresenceInterval,
		limit:    opts.LockLimit,
		now:      opts.Now,
		log:      opts.Log,
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	d.log = d.log.With("component", "tracking")
	if d.store == nil {
		d.store = sessionstore.NewMemory()
	}
	if d.lock == nil {
		d.lock = keepawake.NewLocal("tracking", d.log)
	}
	if d.source == nil {
		d.source = NewFeedSource(0)
	}
	if d.caps == nil {
		d.caps = StaticCapabilities{CapabilityLocation: true}
	}
	def := DefaultLocationRequest()
	if d.req.Interval <= 0 {
		d.req.Interval = def.Interval
	}
	if d.req.MinInterval <= 0 {
		d.req.MinInterval = def.MinInterval
	}
	if d.req.MinDisplacement <= 0 {
		d.req.MinDisplacement = def.MinDisplacement
	}
	if d.presence <= 0 {
		d.presence = DefaultPresenceInterval
	}
	if d.limit <= 0 {
		d.limit = keepawake.TrackingLimit
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Start validates and persists the identity, then runs both producers.
// Starting again with the same identity is a no-op; a different identity
// replaces the running session.
func (d *Daemon) Start(ctx context.Context, id Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}
	id = id.normalized()

	if !d.caps.Granted(CapabilityLocation) {
		return ErrPermissionDenied
	}
	if d.pusher == nil {
		return fmt.Errorf("%w: no push dispatcher", ErrUnavailable)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.run != nil && d.run.id == id {
		d.log.Debug("tracking already running", "worker_id", id.WorkerID)
		return nil
	}

	if err := d.store.Save(ctx, id.record()); err != nil {
		return fmt.Errorf("persist tracking session: %w", err)
	}

	if d.run != nil {
		d.log.Info("tracking identity changed, restarting", "from", d.run.id.WorkerID, "to", id.WorkerID)
		d.halt()
	}

	if err := d.lock.Acquire(ctx, d.limit); err != nil {
		// Producers still run; the lock only keeps the host awake.
		d.log.Warn("tracking keep-awake not acquired", "err", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	samples, err := d.source.Subscribe(runCtx, d.req)
	if err != nil {
		cancel()
		d.lock.Release()
		return fmt.Errorf("%w: location source: %v", ErrUnavailable, err)
	}

	r := &run{id: id, startedAt: d.now(), cancel: cancel}
	r.done.Add(2)
	go d.locationLoop(runCtx, r, samples)
	go d.presenceLoop(runCtx, r)
	d.run = r

	d.log.Info("tracking started",
		"worker_id", id.WorkerID,
		"organization_id", id.OrganizationID,
		"endpoint", id.EndpointBaseURL,
	)
	return nil
}

// Stop halts the producers and releases the keep-awake lock. When explicit is
// set, exactly one offline presence document is pushed. It reports whether a
// session was running.
func (d *Daemon) Stop(_ context.Context, explicit bool) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.run == nil {
		return false, nil
	}
	id := d.run.id
	d.halt()

	if explicit {
		doc := PresenceDoc{IsOnline: false, LastActive: formatTime(d.now())}
		if !d.pusher.Deliver("offline", id.PresenceURL(), doc) {
			d.log.Warn("offline presence not delivered", "worker_id", id.WorkerID)
		}
	}
	d.log.Info("tracking stopped", "worker_id", id.WorkerID, "explicit", explicit)
	return true, nil
}

// halt cancels the current run and waits for its producers. Caller holds mu.
func (d *Daemon) halt() {
	r := d.run
	d.run = nil
	r.cancel()
	r.done.Wait()
	d.lock.Release()

	d.stMu.Lock()
	d.lastLocation = nil
	d.lastPresenceAt = time.Time{}
	d.stMu.Unlock()
}

// Resume restarts tracking from the persisted identity only. It reports false
// without error when the stored record is incomplete.
func (d *Daemon) Resume(ctx context.Context) (bool, error) {
	rec, err := d.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load tracking session: %w", err)
	}
	if !rec.Resumable() {
		d.log.Info("no tracking session to resume")
		return false, nil
	}
	if err := d.Start(ctx, identityFromRecord(rec)); err != nil {
		return false, err
	}
	d.log.Info("tracking resumed", "worker_id", rec.WorkerID)
	return true, nil
}

// Report feeds a sample through the daemon's FeedSource.
func (d *Daemon) Report(s Sample) error {
	if err := s.Validate(); err != nil {
		return err
	}
	feed, ok := d.source.(*FeedSource)
	if !ok {
		return fmt.Errorf("%w: location source is not fed externally", ErrUnavailable)
	}
	if !d.Running() {
		return ErrNotRunning
	}
	if s.SampledAt.IsZero() {
		s.SampledAt = d.now()
	}
	if !feed.Publish(s) {
		return ErrSampleDropped
	}
	return nil
}

func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.run != nil
}

func (d *Daemon) Status() Status {
	d.mu.Lock()
	r := d.run
	var st Status
	if r != nil {
		id := r.id
		st.Active = true
		st.Identity = &id
		st.StartedAt = formatTime(r.startedAt)
	}
	d.mu.Unlock()

	d.stMu.Lock()
	defer d.stMu.Unlock()
	if d.lastLocation != nil {
		loc := *d.lastLocation
		st.LastLocation = &loc
	}
	if !d.lastPresenceAt.IsZero() {
		st.LastPresenceAt = formatTime(d.lastPresenceAt)
	}
	return st
}

func (d *Daemon) locationLoop(ctx context.Context, r *run, samples <-chan Sample) {
	defer r.done.Done()
	filter := sampleFilter{req: d.req}
	url := r.id.LocationURL()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-samples:
			if !filter.accept(s) {
				continue
			}
			doc := LocationDoc{
				Latitude:  s.Latitude,
				Longitude: s.Longitude,
				Accuracy:  s.Accuracy,
				Timestamp: formatTime(s.SampledAt),
				Source:    SourceTag,
			}
			d.stMu.Lock()
			d.lastLocation = &doc
			d.stMu.Unlock()
			d.pusher.Dispatch("location", url, doc)
		}
	}
}

func (d *Daemon) presenceLoop(ctx context.Context, r *run) {
	defer r.done.Done()
	url := r.id.PresenceURL()

	beat := func() {
		now := d.now()
		d.stMu.Lock()
		d.lastPresenceAt = now
		d.stMu.Unlock()
		d.pusher.Dispatch("presence", url, PresenceDoc{
			IsOnline:   true,
			LastActive: formatTime(now),
			Source:     SourceTag,
		})
	}

	beat()
	ticker := time.NewTicker(d.presence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}
