package chorus

import "time"

// DefaultWindow is the default session-wide inactivity window.
const DefaultWindow = 60 * time.Second

// LivenessMonitor tracks a single session-wide deadline. Any activity from
// any non-terminal channel pushes the deadline to now+window, so the session
// only times out when every unfinished channel has been silent for a full
// window. Once every tracked channel is terminal the monitor is disarmed. A
// channel it has not seen before re-arms it; Stop disarms it for good.
//
// LivenessMonitor is not safe for concurrent use.
type LivenessMonitor struct {
	window   time.Duration
	pending  map[string]struct{}
	terminal map[string]struct{}
	deadline time.Time
	disarmed bool
	stopped  bool
}

// NewLivenessMonitor arms a monitor at now+window, tracking the requested
// channels. A non-positive window selects DefaultWindow.
func NewLivenessMonitor(window time.Duration, requested []string, now time.Time) *LivenessMonitor {
	if window <= 0 {
		window = DefaultWindow
	}
	m := &LivenessMonitor{
		window:   window,
		pending:  make(map[string]struct{}, len(requested)),
		terminal: make(map[string]struct{}),
		deadline: now.Add(window),
	}
	for _, id := range requested {
		m.pending[id] = struct{}{}
	}
	return m
}

// Window returns the inactivity window.
func (m *LivenessMonitor) Window() time.Duration {
	return m.window
}

// OnActivity records qualifying activity from a channel and re-arms the
// deadline. Activity from a channel already reported terminal is ignored.
// Activity from an untracked channel starts tracking it, re-arming a monitor
// that had disarmed because every earlier channel finished.
func (m *LivenessMonitor) OnActivity(id string, now time.Time) {
	if m.stopped {
		return
	}
	if _, ok := m.terminal[id]; ok {
		return
	}
	m.pending[id] = struct{}{}
	m.disarmed = false
	if d := now.Add(m.window); d.After(m.deadline) {
		m.deadline = d
	}
}

// OnChannelTerminal stops tracking a channel. When no tracked channel is
// left, the monitor disarms.
func (m *LivenessMonitor) OnChannelTerminal(id string) {
	if m.stopped {
		return
	}
	delete(m.pending, id)
	m.terminal[id] = struct{}{}
	if len(m.pending) == 0 {
		m.disarmed = true
	}
}

// ShouldTimeoutNow reports whether the deadline has passed at now.
func (m *LivenessMonitor) ShouldTimeoutNow(now time.Time) bool {
	return !m.disarmed && !now.Before(m.deadline)
}

// NextDeadline returns the pending deadline, or false once disarmed.
func (m *LivenessMonitor) NextDeadline() (time.Time, bool) {
	if m.disarmed {
		return time.Time{}, false
	}
	return m.deadline, true
}

// Stop disarms the monitor permanently.
func (m *LivenessMonitor) Stop() {
	m.stopped = true
	m.disarmed = true
}
