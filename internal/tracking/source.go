package tracking

import (
	"context"
	"math"
	"strings"
	"sync"
)

// LocationSource delivers position fixes. The returned channel stays open
// until ctx is done; consumers must stop on ctx, not on channel close.
type LocationSource interface {
	Subscribe(ctx context.Context, req LocationRequest) (<-chan Sample, error)
}

// FeedSource is a LocationSource fed by the platform layer (Publish).
// Only the latest subscription receives samples.
type FeedSource struct {
	buffer int

	mu sync.Mutex
	ch chan Sample
}

func NewFeedSource(buffer int) *FeedSource {
	if buffer <= 0 {
		buffer = 16
	}
	return &FeedSource{buffer: buffer}
}

func (f *FeedSource) Subscribe(ctx context.Context, _ LocationRequest) (<-chan Sample, error) {
	ch := make(chan Sample, f.buffer)
	f.mu.Lock()
	f.ch = ch
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		if f.ch == ch {
			f.ch = nil
		}
		f.mu.Unlock()
	}()
	return ch, nil
}

// Publish hands a sample to the current subscriber without blocking.
// It reports false when nobody is subscribed or the buffer is full.
func (f *FeedSource) Publish(s Sample) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch == nil {
		return false
	}
	select {
	case f.ch <- s:
		return true
	default:
		return false
	}
}

// Subscribed reports whether a subscriber is attached.
func (f *FeedSource) Subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ch != nil
}

// Capability is a platform permission the daemon depends on.
type Capability string

const (
	CapabilityLocation      Capability = "location"
	CapabilityNotifications Capability = "notifications"
)

type Capabilities interface {
	Granted(c Capability) bool
}

// StaticCapabilities is a fixed grant set, typically parsed from config.
type StaticCapabilities map[Capability]bool

// ParseCapabilities reads a comma separated list such as "location,notifications".
func ParseCapabilities(s string) StaticCapabilities {
	out := StaticCapabilities{}
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out[Capability(part)] = true
		}
	}
	return out
}

func (s StaticCapabilities) Granted(c Capability) bool { return s[c] }

const earthRadiusMeters = 6371008.8

// Distance is the great-circle distance between two samples in meters.
func Distance(a, b Sample) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// sampleFilter drops fixes that arrive sooner than MinInterval after, or closer
// than MinDisplacement to, the last accepted one. The first fix always passes.
type sampleFilter struct {
	req  LocationRequest
	last *Sample
}

func (f *sampleFilter) accept(s Sample) bool {
	if f.last != nil {
		if s.SampledAt.Sub(f.last.SampledAt) < f.req.MinInterval {
			return false
		}
		if Distance(*f.last, s) < f.req.MinDisplacement {
			return false
		}
	}
	f.last = &s
	return true
}
