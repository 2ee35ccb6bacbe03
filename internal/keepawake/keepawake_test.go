package keepawake

import (
	"context"
	"testing"
	"time"
)

func TestLocal_ReleaseIsIdempotent(t *testing.T) {
	l := NewLocal("test", nil)
	l.Release()

	if err := l.Acquire(context.Background(), time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !l.Held() {
		t.Fatalf("expected held")
	}
	l.Release()
	l.Release()
	if l.Held() {
		t.Fatalf("expected released")
	}
}

func TestLocal_HardLimitReleases(t *testing.T) {
	l := NewLocal("test", nil)
	if err := l.Acquire(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for l.Held() {
		if time.Now().After(deadline) {
			t.Fatalf("expected lock to expire at its hard limit")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLocal_ReacquireRefreshesBound(t *testing.T) {
	l := NewLocal("test", nil)
	_ = l.Acquire(context.Background(), 30*time.Millisecond)
	_ = l.Acquire(context.Background(), time.Minute)
	time.Sleep(80 * time.Millisecond)
	if !l.Held() {
		t.Fatalf("stale expiry must not release a refreshed lock")
	}
	l.Release()
}

func TestRedis_ImplementsLock(t *testing.T) {
	var _ Lock = (*Redis)(nil)
	var _ Lock = (*Local)(nil)
}
