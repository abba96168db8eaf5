package json

import (
	"fmt"
	"time"

	"github.com/fwojciec/chorus"
)

// channelDTO is the JSON representation of a ChannelResult.
type channelDTO struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	Verdict        string     `json:"verdict"`
	Text           string     `json:"text"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Failed         bool       `json:"failed,omitempty"`
	Error          string     `json:"error,omitempty"`
	Truncated      bool       `json:"truncated,omitempty"`
	Frames         int        `json:"frames"`
}

var statuses = []chorus.Status{
	chorus.StatusIdle,
	chorus.StatusStreaming,
	chorus.StatusDone,
	chorus.StatusFailed,
}

var verdicts = []chorus.Verdict{
	chorus.VerdictSucceeded,
	chorus.VerdictFailed,
	chorus.VerdictNotStarted,
	chorus.VerdictInterrupted,
}

func marshalChannel(c chorus.ChannelResult) channelDTO {
	return channelDTO{
		ID:             c.ID,
		Status:         c.Status.String(),
		Verdict:        c.Verdict.String(),
		Text:           c.Text,
		StartedAt:      timePtr(c.StartedAt),
		LastActivityAt: timePtr(c.LastActivityAt),
		CompletedAt:    timePtr(c.CompletedAt),
		Failed:         c.Failed,
		Error:          c.Error,
		Truncated:      c.Truncated,
		Frames:         c.Frames,
	}
}

func unmarshalChannel(dto channelDTO) (chorus.ChannelResult, error) {
	status, ok := lookup(statuses, dto.Status)
	if !ok {
		return chorus.ChannelResult{}, fmt.Errorf("unknown status: %q", dto.Status)
	}
	verdict, ok := lookup(verdicts, dto.Verdict)
	if !ok {
		return chorus.ChannelResult{}, fmt.Errorf("unknown verdict: %q", dto.Verdict)
	}
	return chorus.ChannelResult{
		ChannelSnapshot: chorus.ChannelSnapshot{
			ID:             dto.ID,
			Status:         status,
			Text:           dto.Text,
			StartedAt:      timeVal(dto.StartedAt),
			LastActivityAt: timeVal(dto.LastActivityAt),
			CompletedAt:    timeVal(dto.CompletedAt),
			Failed:         dto.Failed,
			Error:          dto.Error,
			Truncated:      dto.Truncated,
			Frames:         dto.Frames,
		},
		Verdict: verdict,
	}, nil
}

func lookup[T fmt.Stringer](values []T, s string) (T, bool) {
	for _, v := range values {
		if v.String() == s {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Zero times are omitted rather than written as year one.
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
