package chorus

import "time"

// Outcome is the session-level terminal reason.
type Outcome int

const (
	OutcomePending        Outcome = iota // Session still running.
	OutcomeCompleted                     // All channels terminal, complete frame, or clean end of stream.
	OutcomeTimedOut                      // No channel activity within the liveness window.
	OutcomeCancelled                     // Caller cancelled the session.
	OutcomeTransportError                // Reading the transport failed.
	OutcomeServerError                   // The server sent a session-scoped error frame.
)

// Terminal reports whether o is a final outcome.
func (o Outcome) Terminal() bool {
	return o != OutcomePending
}

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCompleted:
		return "completed"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, bool) {
	for o := OutcomePending; o <= OutcomeServerError; o++ {
		if o.String() == s {
			return o, true
		}
	}
	return OutcomePending, false
}

// Verdict is the final classification of one channel.
type Verdict int

const (
	VerdictSucceeded   Verdict = iota // Done with non-empty content.
	VerdictFailed                     // Failed, or done with empty content.
	VerdictNotStarted                 // Never produced a frame.
	VerdictInterrupted                // Still streaming when the caller cancelled.
)

func (v Verdict) String() string {
	switch v {
	case VerdictSucceeded:
		return "succeeded"
	case VerdictFailed:
		return "failed"
	case VerdictNotStarted:
		return "not_started"
	case VerdictInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// ChannelResult pairs a channel's final state with its verdict.
type ChannelResult struct {
	ChannelSnapshot
	Verdict Verdict
}

// SessionResult is the single, final report of a session.
//
// Failed lists every channel classified as failed, including channels that
// never started and were forced to fail. NotStarted lists channels that never
// produced a frame, whatever their final status, so it may overlap Failed.
// Interrupted is only populated for cancelled sessions.
type SessionResult struct {
	SessionID   string
	Outcome     Outcome
	Reason      string
	Channels    []ChannelResult
	Succeeded   []string
	Failed      []string
	NotStarted  []string
	Interrupted []string
	Metadata    *Metadata
	StartedAt   time.Time
	FinishedAt  time.Time
	Err         error
}

// Channel returns the result for the channel with the given id.
func (r SessionResult) Channel(id string) (ChannelResult, bool) {
	for _, c := range r.Channels {
		if c.ID == id {
			return c, true
		}
	}
	return ChannelResult{}, false
}

// Duration returns the wall time of the session.
func (r SessionResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Billable returns the ids of channels that started generating. A backend
// that never produced a frame consumed nothing.
func (r SessionResult) Billable() []string {
	var ids []string
	for _, c := range r.Channels {
		if !c.StartedAt.IsZero() {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
