package calls

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"field-agent/internal/keepawake"
)

const (
	// RingTimeout is the ring deadline: an unanswered call is missed after it.
	RingTimeout = 30 * time.Second
	// WakeLimit caps the keep-awake lock held for a ringing call, independent of RingTimeout.
	WakeLimit = keepawake.CallLimit

	unknownCaller = "Unknown"
)

var (
	ErrInvalidCall       = errors.New("calls: callId and callerName are required")
	ErrInvalidTransition = errors.New("calls: action not valid in current call state")
	ErrCallMismatch      = errors.New("calls: callId does not match the active call")
	ErrCallActive        = errors.New("calls: another call is already active")
)

// Options wires a Machine to its collaborators. Zero values get headless defaults.
type Options struct {
	Clock    Clock
	Alerter  Alerter
	Lock     keepawake.Lock
	Notifier Notifier
	Log      *slog.Logger

	// RejectWhileActive refuses an incoming call while another one is live
	// instead of overwriting it.
	RejectWhileActive bool
}

// Machine owns one call session, its ring deadline timer, the alert cue and
// the call keep-awake lock.
//
// Every transition runs under mu, so handlers invoked concurrently by the
// platform (user action, timer expiry, transport callbacks) are applied one at
// a time. The ring timer exists iff the session is Ringing and not yet accepted.
type Machine struct {
	clock             Clock
	alerter           Alerter
	lock              keepawake.Lock
	notifier          Notifier
	log               *slog.Logger
	rejectWhileActive bool

	mu    sync.Mutex
	sess  Session
	timer *ringTimer
}

// ringTimer identifies one scheduled deadline; a fire is honored only while it
// is still the machine's current timer.
type ringTimer struct {
	t Timer
}

func New(opts Options) *Machine {
	m := &Machine{
		clock:             opts.Clock,
		alerter:           opts.Alerter,
		lock:              opts.Lock,
		notifier:          opts.Notifier,
		log:               opts.Log,
		rejectWhileActive: opts.RejectWhileActive,
		sess:              Session{State: StateIdle},
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.clock == nil {
		m.clock = SystemClock
	}
	if m.alerter == nil {
		m.alerter = &LogAlerter{Log: m.log}
	}
	if m.lock == nil {
		m.lock = keepawake.NewLocal("call", m.log)
	}
	return m
}

// Snapshot returns a copy of the current session.
func (m *Machine) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// OnIncoming starts ringing for a new call.
func (m *Machine) OnIncoming(ctx context.Context, in Incoming) error {
	in.CallID = strings.TrimSpace(in.CallID)
	in.CallerName = strings.TrimSpace(in.CallerName)
	if in.CallID == "" || in.CallerName == "" {
		m.log.Warn("incoming call rejected: missing call data", "call_id", in.CallID)
		return ErrInvalidCall
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess.State != StateIdle {
		if m.rejectWhileActive {
			m.log.Warn("incoming call rejected: call already active",
				"call_id", in.CallID, "active_call_id", m.sess.CallID)
			return ErrCallActive
		}
		m.log.Warn("incoming call overwrites active session",
			"call_id", in.CallID, "active_call_id", m.sess.CallID, "state", m.sess.State)
		m.releaseAll()
	}

	now := m.clock.Now()
	m.sess = Session{
		CallID:        in.CallID,
		CallerID:      in.CallerID,
		CallerName:    in.CallerName,
		CallerPhoto:   in.CallerPhoto,
		ChatID:        in.ChatID,
		CallType:      ParseCallType(in.CallType),
		State:         StateRinging,
		RingStartedAt: now,
	}

	if err := m.lock.Acquire(ctx, WakeLimit); err != nil {
		// Ringing still proceeds; the device may just dim.
		m.log.Warn("call keep-awake unavailable", "call_id", in.CallID, "err", err)
	}
	m.alerter.Start(RingPattern)
	m.armTimer()

	m.log.Info("call ringing", "call_id", in.CallID, "caller", in.CallerName, "call_type", m.sess.CallType)
	m.emit(ctx, SignalRinging, now)
	return nil
}

// OnAccept records the user's accept. The session stays Ringing until
// OnConnected. A second accept of the same ring is an invalid transition.
func (m *Machine) OnAccept(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess.State != StateRinging || m.sess.Accepted {
		return ErrInvalidTransition
	}
	m.cancelTimer()
	m.alerter.Stop()
	m.sess.Accepted = true

	m.log.Info("call accepted", "call_id", m.sess.CallID)
	m.emit(ctx, SignalOpenCall, m.clock.Now())
	return nil
}

// OnConnected marks media as connected. It is accepted from Idle too, for
// transports that report the connection before the ring was processed.
func (m *Machine) OnConnected(ctx context.Context, c Connect) error {
	c.CallID = strings.TrimSpace(c.CallID)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.sess.State {
	case StateRinging:
		if c.CallID != "" && c.CallID != m.sess.CallID {
			return ErrCallMismatch
		}
	case StateIdle:
		if c.CallID == "" {
			return ErrInvalidCall
		}
		name := strings.TrimSpace(c.CallerName)
		if name == "" {
			name = unknownCaller
		}
		m.sess = Session{
			CallID:     c.CallID,
			CallerID:   c.CallerID,
			CallerName: name,
			CallType:   ParseCallType(c.CallType),
		}
	case StateConnected:
		if c.CallID == "" || c.CallID == m.sess.CallID {
			return nil
		}
		return ErrCallMismatch
	default:
		return ErrInvalidTransition
	}

	now := m.clock.Now()
	m.cancelTimer()
	m.alerter.Stop()
	m.sess.State = StateConnected
	m.sess.ConnectedAt = now

	m.log.Info("call connected", "call_id", m.sess.CallID)
	m.emit(ctx, SignalInProgress, now)
	return nil
}

// OnDecline rejects a ringing call.
func (m *Machine) OnDecline(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess.State != StateRinging {
		return ErrInvalidTransition
	}
	m.releaseAll()
	m.log.Info("call declined", "call_id", m.sess.CallID)
	m.finish(ctx, SignalDeclined)
	return nil
}

// OnEnd hangs up a ringing or connected call. callID is optional; when given it
// must match the live session.
func (m *Machine) OnEnd(ctx context.Context, callID string) error {
	callID = strings.TrimSpace(callID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess.State != StateRinging && m.sess.State != StateConnected {
		return ErrInvalidTransition
	}
	if callID != "" && callID != m.sess.CallID {
		return ErrCallMismatch
	}
	m.releaseAll()
	m.log.Info("call ended", "call_id", m.sess.CallID, "was", m.sess.State)
	m.finish(ctx, SignalEnded)
	return nil
}

// Close releases every resource and drops the session without signalling.
// It is the abnormal-exit path (process shutdown).
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseAll()
	m.sess = Session{State: StateIdle}
}

func (m *Machine) onTimeout(rt *ringTimer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Lost the race against accept/decline/end, or superseded by a newer call.
	if m.timer != rt || m.sess.State != StateRinging {
		return
	}
	m.timer = nil
	m.releaseAll()
	m.log.Info("call missed", "call_id", m.sess.CallID, "after", RingTimeout.String())
	m.finish(context.Background(), SignalMissed)
}

func (m *Machine) armTimer() {
	rt := &ringTimer{}
	m.timer = rt
	rt.t = m.clock.AfterFunc(RingTimeout, func() { m.onTimeout(rt) })
}

func (m *Machine) cancelTimer() {
	if m.timer == nil {
		return
	}
	if m.timer.t != nil {
		m.timer.t.Stop()
	}
	m.timer = nil
}

// releaseAll cancels the deadline, silences the alert and drops the keep-awake
// lock. Each step is a no-op when already released.
func (m *Machine) releaseAll() {
	m.cancelTimer()
	m.alerter.Stop()
	m.lock.Release()
}

// finish emits the terminal signal with State=Ended and resets to Idle.
func (m *Machine) finish(ctx context.Context, kind SignalKind) {
	m.sess.State = StateEnded
	m.emit(ctx, kind, m.clock.Now())
	m.sess = Session{State: StateIdle}
}

func (m *Machine) emit(ctx context.Context, kind SignalKind, at time.Time) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, Signal{Kind: kind, Session: m.sess, At: at})
}
