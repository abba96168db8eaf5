package chorus

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Delta describes the effect of applying one frame to a Registry.
type Delta struct {
	Channel  string
	Kind     FrameKind
	From     Status
	To       Status
	Appended int  // bytes appended to the buffer
	Ignored  bool // frame targeted a terminal channel, or was not channel-scoped
}

// Transitioned reports whether the frame changed the channel's status.
func (d Delta) Transitioned() bool {
	return d.From != d.To
}

// Registry owns per-channel state for one session. It is pure data plus
// transitions and is not safe for concurrent use: the session's read loop is
// its only writer.
type Registry struct {
	order          []string
	channels       map[string]*Channel
	emptyAsFailure bool
	maxBytes       int
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// EmptyAsFailure controls whether a done frame on a blank buffer classifies
// the channel as failed. Enabled by default.
func EmptyAsFailure(v bool) RegistryOption {
	return func(r *Registry) { r.emptyAsFailure = v }
}

// MaxBufferBytes caps each channel's buffer. Zero means unbounded.
func MaxBufferBytes(n int) RegistryOption {
	return func(r *Registry) { r.maxBytes = n }
}

// NewRegistry creates a Registry pre-populated with the requested channels,
// all Idle, in the given order. Duplicate ids are collapsed.
func NewRegistry(requested []string, opts ...RegistryOption) *Registry {
	r := &Registry{
		channels:       make(map[string]*Channel, len(requested)),
		emptyAsFailure: true,
	}
	for _, o := range opts {
		o(r)
	}
	for _, id := range requested {
		r.lookup(id)
	}
	return r
}

func (r *Registry) lookup(id string) *Channel {
	if c, ok := r.channels[id]; ok {
		return c
	}
	c := &Channel{ID: id}
	r.channels[id] = c
	r.order = append(r.order, id)
	return c
}

// Apply runs the per-channel state machine for one frame. Frames addressed to
// a terminal channel are no-ops. Session-scoped kinds are ignored here; the
// session handles them.
func (r *Registry) Apply(f Frame, now time.Time) Delta {
	if !f.Kind.ChannelScoped() || f.Channel == "" {
		return Delta{Channel: f.Channel, Kind: f.Kind, Ignored: true}
	}
	c := r.lookup(f.Channel)
	d := Delta{Channel: c.ID, Kind: f.Kind, From: c.Status, To: c.Status}
	if c.Status.Terminal() {
		d.Ignored = true
		return d
	}
	c.Frames++
	c.LastActivityAt = now

	switch f.Kind {
	case FrameStart:
		r.start(c, now)
	case FrameChunk:
		r.start(c, now)
		d.Appended = r.append(c, f.Text)
	case FrameKeepalive:
		// Liveness only.
	case FrameDone:
		c.CompletedAt = now
		switch {
		case f.Failure():
			r.fail(c, f.Error, "backend reported failure")
		case r.emptyAsFailure && isBlank(c.Buffer):
			r.fail(c, "", "empty response")
		default:
			c.Status = StatusDone
		}
	}
	d.To = c.Status
	return d
}

func (r *Registry) start(c *Channel, now time.Time) {
	if c.Status == StatusIdle {
		c.Status = StatusStreaming
		c.StartedAt = now
	}
}

func (r *Registry) fail(c *Channel, msg, fallback string) {
	if msg == "" {
		msg = fallback
	}
	c.Status = StatusFailed
	c.Failed = true
	c.Error = msg
}

func (r *Registry) append(c *Channel, text string) int {
	if r.maxBytes > 0 {
		room := r.maxBytes - len(c.Buffer)
		if room < len(text) {
			c.Truncated = true
			text = truncateUTF8(text, max(room, 0))
		}
	}
	c.Buffer = append(c.Buffer, text...)
	return len(text)
}

// FailPending forces every non-terminal channel to Failed with the given
// reason and returns their ids. Terminal channels keep their status.
func (r *Registry) FailPending(reason string, now time.Time) []string {
	var ids []string
	for _, id := range r.order {
		c := r.channels[id]
		if c.Status.Terminal() {
			continue
		}
		r.fail(c, reason, reason)
		c.CompletedAt = now
		ids = append(ids, id)
	}
	return ids
}

// AllTerminal reports whether there is at least one channel and every channel
// is terminal.
func (r *Registry) AllTerminal() bool {
	if len(r.order) == 0 {
		return false
	}
	for _, id := range r.order {
		if !r.channels[id].Status.Terminal() {
			return false
		}
	}
	return true
}

// Pending returns the ids of non-terminal channels in insertion order.
func (r *Registry) Pending() []string {
	var ids []string
	for _, id := range r.order {
		if !r.channels[id].Status.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// IDs returns all channel ids in insertion order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Get returns a snapshot of one channel.
func (r *Registry) Get(id string) (ChannelSnapshot, bool) {
	c, ok := r.channels[id]
	if !ok {
		return ChannelSnapshot{}, false
	}
	return c.Snapshot(), true
}

// Snapshot copies every channel in insertion order.
func (r *Registry) Snapshot() []ChannelSnapshot {
	out := make([]ChannelSnapshot, len(r.order))
	for i, id := range r.order {
		out[i] = r.channels[id].Snapshot()
	}
	return out
}

func isBlank(b []byte) bool {
	return strings.TrimSpace(string(b)) == ""
}

// truncateUTF8 returns the longest prefix of s that is at most n bytes and
// does not split a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
