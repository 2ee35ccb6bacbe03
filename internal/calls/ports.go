package calls

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Notifier receives call signals (full-screen ring, live-call view, missed-call record...).
// Notify runs while the machine holds its lock: implementations must not call back into the Machine.
type Notifier interface {
	Notify(ctx context.Context, s Signal)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, s Signal)

func (f NotifierFunc) Notify(ctx context.Context, s Signal) { f(ctx, s) }

// Notifiers fans a signal out in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, s Signal) {
	for _, n := range ns {
		if n != nil {
			n.Notify(ctx, s)
		}
	}
}

// RingPattern is the vibration waveform (off/on alternating, milliseconds), repeated while ringing.
var RingPattern = []time.Duration{
	0,
	500 * time.Millisecond,
	200 * time.Millisecond,
	500 * time.Millisecond,
	200 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
}

// Alerter drives the pattern-based alert cue. Stop must be safe when nothing is playing.
type Alerter interface {
	Start(pattern []time.Duration)
	Stop()
}

// LogAlerter is the headless alerter: it only records that a cue is active.
type LogAlerter struct {
	Log *slog.Logger

	mu     sync.Mutex
	active bool
}

func (a *LogAlerter) Start(pattern []time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = true
	a.logger().Debug("alert cue started", "steps", len(pattern))
}

func (a *LogAlerter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active {
		a.logger().Debug("alert cue stopped")
	}
	a.active = false
}

func (a *LogAlerter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *LogAlerter) logger() *slog.Logger {
	if a.Log != nil {
		return a.Log
	}
	return slog.Default()
}

// Clock abstracts time for the ring deadline.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the cancellable handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}
