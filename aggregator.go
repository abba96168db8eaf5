package chorus

import (
	"sync"
	"time"
)

// Forced failure reasons recorded on channels that were still pending when
// the session ended.
const (
	ReasonTimedOut       = "timed out"
	ReasonTransportError = "transport error"
	ReasonSessionError   = "session error"
	ReasonStreamEnded    = "stream ended"
)

// Aggregator computes the final SessionResult exactly once. The first caller
// of Finalize commits the outcome; every later call returns the committed
// result unchanged. It is safe for concurrent use.
type Aggregator struct {
	mu        sync.Mutex
	registry  *Registry
	sessionID string
	startedAt time.Time
	metadata  *Metadata
	result    *SessionResult
}

// NewAggregator creates an Aggregator over registry.
func NewAggregator(sessionID string, registry *Registry, startedAt time.Time) *Aggregator {
	return &Aggregator{
		registry:  registry,
		sessionID: sessionID,
		startedAt: startedAt,
	}
}

// SetMetadata attaches the complete frame's summary. It has no effect once
// the result is committed.
func (a *Aggregator) SetMetadata(m *Metadata) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result == nil {
		a.metadata = m
	}
}

// Outcome returns the committed outcome, or OutcomePending.
func (a *Aggregator) Outcome() Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result == nil {
		return OutcomePending
	}
	return a.result.Outcome
}

// Finalize commits the session outcome and classifies every channel. It
// reports whether this call was the one that committed.
//
// Timeouts, transport errors, server errors and end of stream force every
// pending channel to Failed; channels already Done keep their success.
// Cancellation forces nothing: a cancelled session is not a backend failure,
// so streaming channels are reported as interrupted.
func (a *Aggregator) Finalize(reason Outcome, cause error, now time.Time) (SessionResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result != nil {
		return *a.result, false
	}
	if !reason.Terminal() {
		reason = OutcomeCompleted
	}

	neverStarted := make(map[string]bool)
	for _, c := range a.registry.Snapshot() {
		if c.Status == StatusIdle {
			neverStarted[c.ID] = true
		}
	}

	switch reason {
	case OutcomeTimedOut:
		a.registry.FailPending(ReasonTimedOut, now)
	case OutcomeTransportError:
		a.registry.FailPending(ReasonTransportError, now)
	case OutcomeServerError:
		a.registry.FailPending(ReasonSessionError, now)
	case OutcomeCompleted:
		a.registry.FailPending(ReasonStreamEnded, now)
	}

	res := SessionResult{
		SessionID:  a.sessionID,
		Outcome:    reason,
		Reason:     describe(reason, cause),
		Metadata:   a.metadata,
		StartedAt:  a.startedAt,
		FinishedAt: now,
	}
	if reason == OutcomeTransportError || reason == OutcomeServerError {
		res.Err = cause
	}
	for _, c := range a.registry.Snapshot() {
		v := classify(c, neverStarted[c.ID])
		res.Channels = append(res.Channels, ChannelResult{ChannelSnapshot: c, Verdict: v})
		switch v {
		case VerdictSucceeded:
			res.Succeeded = append(res.Succeeded, c.ID)
		case VerdictFailed:
			res.Failed = append(res.Failed, c.ID)
		case VerdictInterrupted:
			res.Interrupted = append(res.Interrupted, c.ID)
		}
		if neverStarted[c.ID] {
			res.NotStarted = append(res.NotStarted, c.ID)
		}
	}
	a.result = &res
	return res, true
}

func classify(c ChannelSnapshot, neverStarted bool) Verdict {
	switch c.Status {
	case StatusDone:
		return VerdictSucceeded
	case StatusFailed:
		return VerdictFailed
	case StatusStreaming:
		return VerdictInterrupted
	default:
		if neverStarted {
			return VerdictNotStarted
		}
		return VerdictFailed
	}
}

func describe(reason Outcome, cause error) string {
	var s string
	switch reason {
	case OutcomeCompleted:
		s = "completed"
	case OutcomeTimedOut:
		s = "no channel activity within the liveness window"
	case OutcomeCancelled:
		s = "cancelled by caller"
	case OutcomeTransportError:
		s = "transport read failed"
	case OutcomeServerError:
		s = "server reported a session error"
	default:
		s = reason.String()
	}
	if cause != nil {
		s += ": " + cause.Error()
	}
	return s
}
