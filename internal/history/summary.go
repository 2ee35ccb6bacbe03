package history

import (
	"context"
	"time"
)

// Summary aggregates closed calls over a time range.
type Summary struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	TotalCalls    int `json:"total_calls"`
	EndedCalls    int `json:"ended_calls"`
	MissedCalls   int `json:"missed_calls"`
	DeclinedCalls int `json:"declined_calls"`
	VideoCalls    int `json:"video_calls"`

	// Talk time only counts calls that connected.
	TotalTalkSeconds   int64 `json:"total_talk_seconds"`
	AverageTalkSeconds int64 `json:"average_talk_seconds"`

	// AnswerRate is ended calls that connected over all calls.
	AnswerRate float64 `json:"answer_rate"`
}

// Summary reports call outcomes created in [from, to).
func (s *Service) Summary(ctx context.Context, from, to time.Time) (Summary, error) {
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return Summary{}, ErrInvalidEvent
	}
	if s.repo == nil {
		return Summary{}, ErrNoRepository
	}

	rows, err := s.repo.ListRange(ctx, from, to)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{From: from.UTC(), To: to.UTC()}
	connected := 0
	for _, e := range rows {
		out.TotalCalls++
		switch e.Kind {
		case KindEnded:
			out.EndedCalls++
		case KindMissed:
			out.MissedCalls++
		case KindDeclined:
			out.DeclinedCalls++
		}
		if e.CallType == "video" {
			out.VideoCalls++
		}
		if e.DurationSeconds > 0 {
			connected++
			out.TotalTalkSeconds += e.DurationSeconds
		}
	}
	if connected > 0 {
		out.AverageTalkSeconds = out.TotalTalkSeconds / int64(connected)
	}
	if out.TotalCalls > 0 {
		out.AnswerRate = float64(connected) / float64(out.TotalCalls)
	}
	return out, nil
}
