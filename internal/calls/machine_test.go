package calls

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"field-agent/internal/keepawake"
)

type recorder struct {
	mu      sync.Mutex
	signals []Signal
}

func (r *recorder) Notify(_ context.Context, s Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
}

func (r *recorder) kinds() []SignalKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SignalKind, 0, len(r.signals))
	for _, s := range r.signals {
		out = append(out, s.Kind)
	}
	return out
}

func (r *recorder) count(k SignalKind) int {
	n := 0
	for _, got := range r.kinds() {
		if got == k {
			n++
		}
	}
	return n
}

type harness struct {
	m     *Machine
	clock *fakeClock
	rec   *recorder
	lock  *keepawake.Local
	alert *LogAlerter
}

func newHarness(opts Options) harness {
	h := harness{
		clock: newFakeClock(),
		rec:   &recorder{},
		lock:  keepawake.NewLocal("call-test", nil),
		alert: &LogAlerter{},
	}
	opts.Clock = h.clock
	opts.Notifier = h.rec
	opts.Lock = h.lock
	opts.Alerter = h.alert
	h.m = New(opts)
	return h
}

func ring(t *testing.T, h harness, callID string) {
	t.Helper()
	err := h.m.OnIncoming(context.Background(), Incoming{CallID: callID, CallerID: "u9", CallerName: "Asha", CallType: "video"})
	if err != nil {
		t.Fatalf("incoming: %v", err)
	}
}

func TestOnIncoming_RingsAndSchedulesDeadline(t *testing.T) {
	h := newHarness(Options{})
	ring(t, h, "c1")

	s := h.m.Snapshot()
	if s.State != StateRinging || s.CallID != "c1" || s.CallType != CallTypeVideo {
		t.Fatalf("unexpected session: %+v", s)
	}
	if !s.RingStartedAt.Equal(h.clock.Now()) {
		t.Fatalf("expected ring start recorded")
	}
	tm := h.clock.last()
	if tm == nil || tm.d != 30*time.Second {
		t.Fatalf("expected a 30s deadline, got %+v", tm)
	}
	if !h.lock.Held() || !h.alert.Active() {
		t.Fatalf("expected keep-awake held and alert active")
	}
	if got := h.rec.kinds(); len(got) != 1 || got[0] != SignalRinging {
		t.Fatalf("expected ringing signal, got %v", got)
	}
}

func TestOnIncoming_MissingDataLeavesIdle(t *testing.T) {
	h := newHarness(Options{})
	for _, in := range []Incoming{{CallerName: "Asha"}, {CallID: "c1"}, {CallID: "  ", CallerName: "Asha"}} {
		if err := h.m.OnIncoming(context.Background(), in); !errors.Is(err, ErrInvalidCall) {
			t.Fatalf("expected ErrInvalidCall for %+v, got %v", in, err)
		}
	}
	if h.m.Snapshot().State != StateIdle {
		t.Fatalf("expected idle")
	}
	if len(h.rec.kinds()) != 0 || h.clock.last() != nil || h.lock.Held() {
		t.Fatalf("expected no side effects")
	}
}

func TestTimeout_EmitsMissedExactlyOnce(t *testing.T) {
	h := newHarness(Options{})
	ring(t, h, "c2")

	h.clock.Advance(29 * time.Second)
	if h.m.Snapshot().State != StateRinging {
		t.Fatalf("expected still ringing before deadline")
	}
	h.clock.Advance(time.Second)

	if h.rec.count(SignalMissed) != 1 {
		t.Fatalf("expected one missed signal, got %v", h.rec.kinds())
	}
	last := h.rec.signals[len(h.rec.signals)-1]
	if last.Session.State != StateEnded || last.Session.CallID != "c2" {
		t.Fatalf("expected ended snapshot for c2, got %+v", last.Session)
	}
	if h.m.Snapshot().State != StateIdle {
		t.Fatalf("expected idle after timeout")
	}
	if h.lock.Held() || h.alert.Active() {
		t.Fatalf("expected resources released")
	}

	h.clock.Advance(time.Minute)
	h.clock.last().f()
	if h.rec.count(SignalMissed) != 1 {
		t.Fatalf("expected no second missed signal")
	}
}

func TestAcceptConnectEnd_Scenario(t *testing.T) {
	h := newHarness(Options{})
	start := h.clock.Now()
	ring(t, h, "c1")

	h.clock.Advance(5 * time.Second)
	if err := h.m.OnAccept(context.Background()); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if h.clock.pending() != 0 {
		t.Fatalf("expected deadline cancelled")
	}
	s := h.m.Snapshot()
	if s.State != StateRinging || !s.Accepted {
		t.Fatalf("expected ringing+accepted, got %+v", s)
	}
	if err := h.m.OnAccept(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second accept: expected ErrInvalidTransition, got %v", err)
	}

	if err := h.m.OnConnected(context.Background(), Connect{CallID: "c1"}); err != nil {
		t.Fatalf("connected: %v", err)
	}
	s = h.m.Snapshot()
	if s.State != StateConnected || !s.ConnectedAt.Equal(start.Add(5*time.Second)) {
		t.Fatalf("unexpected connected session: %+v", s)
	}

	if err := h.m.OnEnd(context.Background(), "c1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if h.m.Snapshot().State != StateIdle {
		t.Fatalf("expected idle")
	}
	if h.lock.Held() {
		t.Fatalf("expected keep-awake released on end")
	}
	want := []SignalKind{SignalRinging, SignalOpenCall, SignalInProgress, SignalEnded}
	got := h.rec.kinds()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestDecline_ReleasesAndIgnoresStaleTimer(t *testing.T) {
	h := newHarness(Options{})
	ring(t, h, "c3")
	fire := h.clock.last().f

	if err := h.m.OnDecline(context.Background()); err != nil {
		t.Fatalf("decline: %v", err)
	}
	// The timer callback was already in flight when decline won the race.
	fire()

	if h.rec.count(SignalDeclined) != 1 || h.rec.count(SignalMissed) != 0 {
		t.Fatalf("unexpected signals: %v", h.rec.kinds())
	}
	if h.lock.Held() || h.m.Snapshot().State != StateIdle {
		t.Fatalf("expected released and idle")
	}
}

func TestAccept_StaleTimerFireIsNoop(t *testing.T) {
	h := newHarness(Options{})
	ring(t, h, "c4")
	fire := h.clock.last().f

	if err := h.m.OnAccept(context.Background()); err != nil {
		t.Fatalf("accept: %v", err)
	}
	fire()
	if h.m.Snapshot().State != StateRinging || h.rec.count(SignalMissed) != 0 {
		t.Fatalf("stale timeout must not end an accepted call")
	}
}

func TestActionsFromIdleAreRejected(t *testing.T) {
	h := newHarness(Options{})
	ctx := context.Background()
	if err := h.m.OnAccept(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("accept: expected ErrInvalidTransition, got %v", err)
	}
	if err := h.m.OnDecline(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("decline: expected ErrInvalidTransition, got %v", err)
	}
	if err := h.m.OnEnd(ctx, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("end: expected ErrInvalidTransition, got %v", err)
	}
	if len(h.rec.kinds()) != 0 {
		t.Fatalf("expected no signals")
	}
}

func TestOnConnected_FromIdleSeedsSession(t *testing.T) {
	h := newHarness(Options{})
	if err := h.m.OnConnected(context.Background(), Connect{}); !errors.Is(err, ErrInvalidCall) {
		t.Fatalf("expected ErrInvalidCall, got %v", err)
	}
	if err := h.m.OnConnected(context.Background(), Connect{CallID: "c5", CallType: "video"}); err != nil {
		t.Fatalf("connected: %v", err)
	}
	s := h.m.Snapshot()
	if s.State != StateConnected || s.CallerName != "Unknown" || s.CallType != CallTypeVideo {
		t.Fatalf("unexpected session: %+v", s)
	}
	if err := h.m.OnConnected(context.Background(), Connect{CallID: "c5"}); err != nil {
		t.Fatalf("duplicate connect should be a no-op, got %v", err)
	}
	if h.rec.count(SignalInProgress) != 1 {
		t.Fatalf("expected one in-progress signal")
	}
}

func TestCallIDMismatch(t *testing.T) {
	h := newHarness(Options{})
	ring(t, h, "c6")
	if err := h.m.OnConnected(context.Background(), Connect{CallID: "other"}); !errors.Is(err, ErrCallMismatch) {
		t.Fatalf("expected ErrCallMismatch, got %v", err)
	}
	if err := h.m.OnEnd(context.Background(), "other"); !errors.Is(err, ErrCallMismatch) {
		t.Fatalf("expected ErrCallMismatch, got %v", err)
	}
	if h.m.Snapshot().State != StateRinging {
		t.Fatalf("mismatched actions must not change state")
	}
}

func TestSecondIncoming_OverwritesByDefault(t *testing.T) {
	h := newHarness(Options{})
	ring(t, h, "a")
	first := h.clock.last()
	ring(t, h, "b")

	if !first.stopped {
		t.Fatalf("expected first deadline cancelled")
	}
	if h.m.Snapshot().CallID != "b" || h.clock.pending() != 1 {
		t.Fatalf("expected single live deadline for b")
	}
	first.f()
	if h.rec.count(SignalMissed) != 0 {
		t.Fatalf("superseded deadline must not fire")
	}
}

func TestSecondIncoming_RejectWhileActive(t *testing.T) {
	h := newHarness(Options{RejectWhileActive: true})
	ring(t, h, "a")
	err := h.m.OnIncoming(context.Background(), Incoming{CallID: "b", CallerName: "Bob"})
	if !errors.Is(err, ErrCallActive) {
		t.Fatalf("expected ErrCallActive, got %v", err)
	}
	if h.m.Snapshot().CallID != "a" {
		t.Fatalf("expected the first call to survive")
	}
}

func TestConcurrentActions_SingleTerminalTransition(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := newHarness(Options{})
		ring(t, h, "race")
		fire := h.clock.last().f

		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); fire() }()
		go func() { defer wg.Done(); _ = h.m.OnDecline(context.Background()) }()
		go func() { defer wg.Done(); _ = h.m.OnEnd(context.Background(), "race") }()
		wg.Wait()

		terminal := 0
		for _, k := range h.rec.kinds() {
			if k.Terminal() {
				terminal++
			}
		}
		if terminal != 1 {
			t.Fatalf("expected exactly one terminal signal, got %v", h.rec.kinds())
		}
		if h.lock.Held() {
			t.Fatalf("expected keep-awake released")
		}
	}
}

func TestClose_ReleasesWithoutSignal(t *testing.T) {
	h := newHarness(Options{})
	ring(t, h, "c7")
	h.m.Close()
	h.m.Close()

	if h.m.Snapshot().State != StateIdle || h.lock.Held() || h.alert.Active() {
		t.Fatalf("expected everything released")
	}
	if h.clock.pending() != 0 {
		t.Fatalf("expected deadline cancelled")
	}
	if len(h.rec.kinds()) != 1 {
		t.Fatalf("close must not signal, got %v", h.rec.kinds())
	}
}

type lockCall struct {
	op    string
	limit time.Duration
}

// recordingLock records Acquire limits and Release calls.
type recordingLock struct {
	mu    sync.Mutex
	calls []lockCall
	held  bool
}

func (l *recordingLock) Acquire(_ context.Context, limit time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, lockCall{op: "acquire", limit: limit})
	l.held = true
	return nil
}

func (l *recordingLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, lockCall{op: "release"})
	l.held = false
}

func (l *recordingLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *recordingLock) ops() []lockCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]lockCall(nil), l.calls...)
}

func TestKeepAwake_SixtySecondBoundAndRelease(t *testing.T) {
	ctx := context.Background()
	incoming := Incoming{CallID: "c1", CallerName: "Asha"}

	for _, tc := range []struct {
		name  string
		close func(m *Machine, clock *fakeClock) error
	}{
		{"decline", func(m *Machine, _ *fakeClock) error { return m.OnDecline(ctx) }},
		{"timeout", func(_ *Machine, clock *fakeClock) error { clock.Advance(RingTimeout); return nil }},
		{"end", func(m *Machine, _ *fakeClock) error {
			if err := m.OnConnected(ctx, Connect{CallID: "c1"}); err != nil {
				return err
			}
			return m.OnEnd(ctx, "c1")
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			lock := &recordingLock{}
			clock := newFakeClock()
			m := New(Options{Clock: clock, Lock: lock, Notifier: &recorder{}, Alerter: &LogAlerter{}})
			defer m.Close()

			if err := m.OnIncoming(ctx, incoming); err != nil {
				t.Fatalf("incoming: %v", err)
			}
			ops := lock.ops()
			if len(ops) != 1 || ops[0].op != "acquire" || ops[0].limit != 60*time.Second {
				t.Fatalf("expected one 60s acquire on ring, got %+v", ops)
			}

			if err := tc.close(m, clock); err != nil {
				t.Fatalf("%s: %v", tc.name, err)
			}
			if lock.Held() {
				t.Fatalf("%s: keep-awake still held", tc.name)
			}
			ops = lock.ops()
			if last := ops[len(ops)-1]; last.op != "release" {
				t.Fatalf("%s: expected release last, got %+v", tc.name, ops)
			}
		})
	}
}
