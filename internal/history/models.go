package history

import "time"

// Event is an immutable record of a call session that closed.
//
// Events are never updated or deleted. A missed event is the missed-call
// record shown to the worker later.
type Event struct {
	ID   string `json:"id" db:"id"`
	Kind Kind   `json:"kind" db:"kind"`

	CallID     string `json:"call_id" db:"call_id"`
	CallerID   string `json:"caller_id,omitempty" db:"caller_id"`
	CallerName string `json:"caller_name,omitempty" db:"caller_name"`
	CallType   string `json:"call_type,omitempty" db:"call_type"`
	ChatID     string `json:"chat_id,omitempty" db:"chat_id"`

	RingStartedAt time.Time `json:"ring_started_at,omitempty" db:"ring_started_at"`
	// DurationSeconds is the connected time; zero for calls that never connected.
	DurationSeconds int64 `json:"duration_seconds" db:"duration_seconds"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Kind string

const (
	KindMissed   Kind = "missed"
	KindDeclined Kind = "declined"
	KindEnded    Kind = "ended"
)

func (k Kind) Valid() bool {
	switch k {
	case KindMissed, KindDeclined, KindEnded:
		return true
	}
	return false
}

// Filter narrows List. Zero values match everything; Limit defaults to 50.
type Filter struct {
	Kind  Kind
	Limit int
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultLimit
	case f.Limit > maxLimit:
		return maxLimit
	default:
		return f.Limit
	}
}
