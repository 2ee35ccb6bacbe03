package calls

import (
	"strings"
	"time"
)

// Session is the single in-flight call attempt owned by a Machine.
//
// Invariant: CallID is non-empty whenever State != StateIdle.
// Accepted records that the user tapped accept; the session stays Ringing
// until the call transport reports the media as connected.
type Session struct {
	CallID      string   `json:"call_id,omitempty"`
	CallerID    string   `json:"caller_id,omitempty"`
	CallerName  string   `json:"caller_name,omitempty"`
	CallerPhoto string   `json:"caller_photo,omitempty"`
	ChatID      string   `json:"chat_id,omitempty"`
	CallType    CallType `json:"call_type,omitempty"`

	State    State `json:"state"`
	Accepted bool  `json:"accepted,omitempty"`

	RingStartedAt time.Time `json:"ring_started_at,omitempty"`
	ConnectedAt   time.Time `json:"connected_at,omitempty"`
}

type State string

const (
	StateIdle      State = "idle"
	StateRinging   State = "ringing"
	StateConnected State = "connected"
	StateEnded     State = "ended"
)

type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// ParseCallType maps a wire value to a CallType. Anything but "video" is audio.
func ParseCallType(s string) CallType {
	if strings.EqualFold(strings.TrimSpace(s), string(CallTypeVideo)) {
		return CallTypeVideo
	}
	return CallTypeAudio
}

// Label is the human wording used by presenters ("video call" / "voice call").
func (t CallType) Label() string {
	if t == CallTypeVideo {
		return "video call"
	}
	return "voice call"
}

// Incoming is the payload of an incoming-call event.
type Incoming struct {
	CallID      string `json:"callId"`
	CallerID    string `json:"callerId"`
	CallerName  string `json:"callerName"`
	CallerPhoto string `json:"callerPhoto"`
	CallType    string `json:"callType"`
	ChatID      string `json:"chatId"`
}

// Connect is the payload of a call-connected event. Only CallID is required;
// the caller fields seed the session when connect arrives before any ring.
type Connect struct {
	CallID     string `json:"callId"`
	CallerID   string `json:"callerId"`
	CallerName string `json:"callerName"`
	CallType   string `json:"callType"`
}

type SignalKind string

const (
	SignalRinging    SignalKind = "ringing"
	SignalOpenCall   SignalKind = "open_call"
	SignalInProgress SignalKind = "in_progress"
	SignalDeclined   SignalKind = "declined"
	SignalMissed     SignalKind = "missed"
	SignalEnded      SignalKind = "ended"
)

// Terminal reports whether the signal closes a session.
func (k SignalKind) Terminal() bool {
	switch k {
	case SignalDeclined, SignalMissed, SignalEnded:
		return true
	default:
		return false
	}
}

// Signal is what the machine tells the presentation layer.
// Session is a snapshot taken at emission time; for terminal signals its State is StateEnded.
type Signal struct {
	Kind    SignalKind `json:"kind"`
	Session Session    `json:"session"`
	At      time.Time  `json:"at"`
}
