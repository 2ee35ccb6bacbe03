package inbound

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Notification defaults.
const (
	DefaultTitle       = "Field Agent"
	DefaultClickAction = "/dashboard"
	DefaultType        = "default"
	DefaultPriority    = "normal"
)

// Channel groups notifications by importance and topic.
type Channel string

const (
	ChannelAlerts     Channel = "alerts"
	ChannelChat       Channel = "chat"
	ChannelTargets    Channel = "targets"
	ChannelAttendance Channel = "attendance"
	ChannelDefault    Channel = "default"
)

// Notification is a generic (non-call) push ready for presentation.
type Notification struct {
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	ClickAction string            `json:"clickAction"`
	Type        string            `json:"type"`
	Priority    string            `json:"priority"`
	Channel     Channel           `json:"channel"`
	Data        map[string]string `json:"data,omitempty"`
}

// ChannelFor picks the channel from priority first, then from keywords in the type.
func ChannelFor(notifType, priority string) Channel {
	switch strings.ToLower(priority) {
	case "urgent", "high":
		return ChannelAlerts
	}
	t := strings.ToLower(notifType)
	switch {
	case containsAny(t, "chat", "message"):
		return ChannelChat
	case containsAny(t, "target", "lead", "visit"):
		return ChannelTargets
	case containsAny(t, "attendance", "checkin", "checkout"):
		return ChannelAttendance
	}
	return ChannelDefault
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Presenter shows a notification to the user.
type Presenter interface {
	Present(ctx context.Context, n Notification) error
}

// LogPresenter is the headless presenter. It logs and keeps the most recent notifications.
type LogPresenter struct {
	Log *slog.Logger
	// Keep bounds the retained notifications; 0 keeps 20.
	Keep int

	mu     sync.Mutex
	recent []Notification
}

func (p *LogPresenter) Present(_ context.Context, n Notification) error {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification", "title", n.Title, "type", n.Type, "channel", n.Channel, "priority", n.Priority)

	keep := p.Keep
	if keep <= 0 {
		keep = 20
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recent = append(p.recent, n)
	if len(p.recent) > keep {
		p.recent = p.recent[len(p.recent)-keep:]
	}
	return nil
}

// Recent returns the retained notifications, oldest first.
func (p *LogPresenter) Recent() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Notification, len(p.recent))
	copy(out, p.recent)
	return out
}
