package chorus

import "time"

// Status is the lifecycle state of a channel.
type Status int

const (
	StatusIdle      Status = iota // No frame has arrived yet.
	StatusStreaming               // Started or received content.
	StatusDone                    // Finished with content. Terminal.
	StatusFailed                  // Finished with an error, empty, or forced. Terminal.
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStreaming:
		return "streaming"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Channel is the mutable per-backend state owned by a Registry.
type Channel struct {
	ID             string
	Status         Status
	Buffer         []byte
	StartedAt      time.Time
	LastActivityAt time.Time
	CompletedAt    time.Time
	Failed         bool
	Error          string
	Truncated      bool
	Frames         int
}

// Snapshot returns an immutable copy of the channel.
func (c *Channel) Snapshot() ChannelSnapshot {
	return ChannelSnapshot{
		ID:             c.ID,
		Status:         c.Status,
		Text:           string(c.Buffer),
		StartedAt:      c.StartedAt,
		LastActivityAt: c.LastActivityAt,
		CompletedAt:    c.CompletedAt,
		Failed:         c.Failed,
		Error:          c.Error,
		Truncated:      c.Truncated,
		Frames:         c.Frames,
	}
}

// ChannelSnapshot is a point-in-time copy of a Channel. Text is a string, so
// it cannot alias the registry's buffer.
type ChannelSnapshot struct {
	ID             string
	Status         Status
	Text           string
	StartedAt      time.Time
	LastActivityAt time.Time
	CompletedAt    time.Time
	Failed         bool
	Error          string
	Truncated      bool
	Frames         int
}

// Elapsed returns how long the channel has been (or was) generating, measured
// from its start to completion, or to now if it is still running. Zero when
// the channel never started.
func (c ChannelSnapshot) Elapsed(now time.Time) time.Duration {
	if c.StartedAt.IsZero() {
		return 0
	}
	if !c.CompletedAt.IsZero() {
		return c.CompletedAt.Sub(c.StartedAt)
	}
	return now.Sub(c.StartedAt)
}

// Snapshot is an immutable point-in-time copy of aggregate session state.
// Channels are in registry insertion order. Seq increases by one with every
// flush. Final is set on the flush that follows finalization, and only then
// is Outcome terminal.
type Snapshot struct {
	SessionID string
	Seq       int
	Channels  []ChannelSnapshot
	Outcome   Outcome
	Final     bool
	TakenAt   time.Time
}

// Channel returns the snapshot of the channel with the given id.
func (s Snapshot) Channel(id string) (ChannelSnapshot, bool) {
	for _, c := range s.Channels {
		if c.ID == id {
			return c, true
		}
	}
	return ChannelSnapshot{}, false
}
