package chorus

import (
	"time"

	"golang.org/x/time/rate"
)

// DefaultFlushInterval is the default minimum time between snapshot flushes.
const DefaultFlushInterval = 50 * time.Millisecond

// Dispatcher coalesces registry mutations into a bounded-rate snapshot feed.
//
// Mutations between flushes are never lost: a flush always copies the whole
// current state. The cadence is a token bucket with a burst of one, driven by
// caller-supplied timestamps so it is deterministic under a fake clock.
//
// Dispatcher is not safe for concurrent use.
type Dispatcher struct {
	limiter   *rate.Limiter
	source    func() []ChannelSnapshot
	sessionID string
	onFirst   func(channelID string)

	dirty      bool
	firstFired bool
	seq        int
}

// NewDispatcher creates a Dispatcher that snapshots source at most once per
// interval. A non-positive interval selects DefaultFlushInterval. onFirst may
// be nil.
func NewDispatcher(interval time.Duration, sessionID string, source func() []ChannelSnapshot, onFirst func(channelID string)) *Dispatcher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Dispatcher{
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		source:    source,
		sessionID: sessionID,
		onFirst:   onFirst,
	}
}

// OnMutation records that state changed. The first delta that moves any
// channel out of Idle raises the one-shot first-activity signal.
func (d *Dispatcher) OnMutation(delta Delta) {
	if delta.Ignored {
		return
	}
	d.dirty = true
	if d.firstFired || delta.From != StatusIdle || delta.To == StatusIdle {
		return
	}
	d.firstFired = true
	if d.onFirst != nil {
		d.onFirst(delta.Channel)
	}
}

// FirstActivitySeen reports whether the first-activity signal has fired.
func (d *Dispatcher) FirstActivitySeen() bool {
	return d.firstFired
}

// FlushIfDue returns a snapshot when there are pending mutations and the
// minimum interval since the previous flush has elapsed.
func (d *Dispatcher) FlushIfDue(now time.Time) (Snapshot, bool) {
	if !d.dirty || !d.limiter.AllowN(now, 1) {
		return Snapshot{}, false
	}
	return d.snapshot(now, OutcomePending, false), true
}

// NextDue returns when the pending mutations may next be flushed, or false
// when nothing is pending.
func (d *Dispatcher) NextDue(now time.Time) (time.Time, bool) {
	if !d.dirty {
		return time.Time{}, false
	}
	tokens := d.limiter.TokensAt(now)
	if tokens >= 1 {
		return now, true
	}
	wait := time.Duration((1 - tokens) / float64(d.limiter.Limit()) * float64(time.Second))
	return now.Add(wait), true
}

// ForceFlush returns the final snapshot regardless of the throttle.
func (d *Dispatcher) ForceFlush(now time.Time, outcome Outcome) Snapshot {
	return d.snapshot(now, outcome, true)
}

func (d *Dispatcher) snapshot(now time.Time, outcome Outcome, final bool) Snapshot {
	d.dirty = false
	d.seq++
	return Snapshot{
		SessionID: d.sessionID,
		Seq:       d.seq,
		Channels:  d.source(),
		Outcome:   outcome,
		Final:     final,
		TakenAt:   now,
	}
}
