// Package inbound routes externally delivered events (push messages, system
// signals) to the call machine, the tracking daemon or the presenter.
// It holds no state of its own.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"field-agent/internal/calls"
	"field-agent/internal/tracking"
)

const (
	typeIncomingCall = "incoming_call"

	defaultCallerName = "Unknown"
	defaultCallType   = "audio"
)

// System signals that restart tracking.
const (
	SignalBootCompleted    = "boot_completed"
	SignalQuickbootPowerOn = "quickboot_poweron"
	SignalProcessRestart   = "process_restart"
)

var (
	ErrMissingCallID = errors.New("inbound: incoming call without callId")
	ErrUnknownSignal = errors.New("inbound: unknown system signal")
	ErrUnavailable   = errors.New("inbound: target not configured")
)

// Message is a push delivered by the messaging transport.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

type Outcome string

const (
	OutcomeCall         Outcome = "call"
	OutcomeNotification Outcome = "notification"
	OutcomeSuppressed   Outcome = "suppressed"
)

type CallHandler interface {
	OnIncoming(ctx context.Context, in calls.Incoming) error
}

type Resumer interface {
	Resume(ctx context.Context) (bool, error)
}

type Router struct {
	Calls        CallHandler
	Tracking     Resumer
	Presenter    Presenter
	Capabilities tracking.Capabilities
	Log          *slog.Logger
}

// Route classifies msg and forwards it.
func (r *Router) Route(ctx context.Context, msg Message) (Outcome, error) {
	log := r.logger()
	data := msg.Data
	if data == nil {
		data = map[string]string{}
	}

	_, hasCallID := data["callId"]
	if data["type"] == typeIncomingCall || hasCallID {
		in := calls.Incoming{
			CallID:      strings.TrimSpace(data["callId"]),
			CallerID:    data["callerId"],
			CallerName:  orDefault(data["callerName"], defaultCallerName),
			CallerPhoto: data["callerPhoto"],
			CallType:    orDefault(data["callType"], defaultCallType),
			ChatID:      data["chatId"],
		}
		if in.CallID == "" {
			log.Warn("incoming call message without callId dropped")
			return OutcomeCall, ErrMissingCallID
		}
		if r.Calls == nil {
			return OutcomeCall, fmt.Errorf("%w: calls", ErrUnavailable)
		}
		log.Info("routing incoming call", "call_id", in.CallID, "call_type", in.CallType)
		return OutcomeCall, r.Calls.OnIncoming(ctx, in)
	}

	n := Notification{
		Title:       orDefault(firstNonEmpty(msg.Title, data["title"]), DefaultTitle),
		Body:        firstNonEmpty(msg.Body, data["body"]),
		ClickAction: orDefault(firstNonEmpty(data["clickAction"], data["click_action"]), DefaultClickAction),
		Type:        orDefault(data["type"], DefaultType),
		Priority:    orDefault(data["priority"], DefaultPriority),
		Data:        msg.Data,
	}
	n.Channel = ChannelFor(n.Type, n.Priority)

	if r.Capabilities != nil && !r.Capabilities.Granted(tracking.CapabilityNotifications) {
		log.Info("notification suppressed: permission not granted", "type", n.Type)
		return OutcomeSuppressed, nil
	}
	if r.Presenter == nil {
		return OutcomeNotification, fmt.Errorf("%w: presenter", ErrUnavailable)
	}
	return OutcomeNotification, r.Presenter.Present(ctx, n)
}

// HandleSystemSignal resumes tracking on boot and restart signals.
func (r *Router) HandleSystemSignal(ctx context.Context, action string) (bool, error) {
	switch action {
	case SignalBootCompleted, SignalQuickbootPowerOn, SignalProcessRestart:
	default:
		r.logger().Debug("system signal ignored", "action", action)
		return false, ErrUnknownSignal
	}
	if r.Tracking == nil {
		return false, fmt.Errorf("%w: tracking", ErrUnavailable)
	}
	resumed, err := r.Tracking.Resume(ctx)
	if err != nil {
		r.logger().Error("tracking resume failed", "action", action, "err", err)
		return false, err
	}
	r.logger().Info("system signal handled", "action", action, "resumed", resumed)
	return resumed, nil
}

func (r *Router) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
