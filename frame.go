package chorus

import "time"

// FrameKind discriminates wire frames.
type FrameKind string

const (
	FrameStart     FrameKind = "start"     // Channel began generating.
	FrameChunk     FrameKind = "chunk"     // Text delta for a channel.
	FrameKeepalive FrameKind = "keepalive" // Liveness only; no content.
	FrameDone      FrameKind = "done"      // Channel finished (possibly with an error).
	FrameComplete  FrameKind = "complete"  // Session summary; terminal for the session.
	FrameError     FrameKind = "error"     // Session-scoped fatal error.
)

// Valid reports whether k is one of the known frame kinds.
func (k FrameKind) Valid() bool {
	switch k {
	case FrameStart, FrameChunk, FrameKeepalive, FrameDone, FrameComplete, FrameError:
		return true
	}
	return false
}

// ChannelScoped reports whether frames of this kind must name a channel.
func (k FrameKind) ChannelScoped() bool {
	switch k {
	case FrameStart, FrameChunk, FrameKeepalive, FrameDone:
		return true
	}
	return false
}

// Activity reports whether frames of this kind keep the liveness window open.
func (k FrameKind) Activity() bool {
	switch k {
	case FrameStart, FrameChunk, FrameKeepalive:
		return true
	}
	return false
}

// Frame is one decoded wire event.
//
// Channel is empty for session-scoped kinds (complete, error). Text carries
// the delta for chunk frames. Error and Failed mark a failing done frame, or
// describe the failure for a session error frame. Metadata is only set on
// complete frames.
type Frame struct {
	Kind     FrameKind
	Channel  string
	Text     string
	Error    string
	Failed   bool
	Metadata *Metadata
}

// Failure reports whether the frame carries an explicit error signal.
func (f Frame) Failure() bool {
	return f.Failed || f.Error != ""
}

// Metadata is the out-of-band session summary carried by a complete frame.
// It is informational: per-channel verdicts are always derived from channel
// state, never from these counts.
type Metadata struct {
	Succeeded int
	Failed    int
	Duration  time.Duration
	Extra     map[string]string
}

// FrameParser splits a growing byte stream into frames.
//
// Feed appends p to the undecoded remainder and returns every well-formed
// frame completed by it, in stream order. Malformed messages are skipped.
// Finish discards any unterminated remainder; it is called once the stream
// has ended.
type FrameParser interface {
	Feed(p []byte) []Frame
	Finish()
}
