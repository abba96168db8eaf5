package chorus

// Theme defines semantic color mappings using ANSI color indices (0-15).
// The user's terminal theme determines the actual RGB values, so the app
// automatically matches any color scheme.
type Theme struct {
	Prompt    int // Prompt echo accent
	Idle      int // Channels that have not started
	Streaming int // Channels receiving text
	Error     int // Failed channels and session errors
	Success   int // Channels that finished with content
	Muted     int // Status bar, timings
	CodeBg    int // Code block background
	Accent    int // Headings, links, channel names
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		Prompt:    4,
		Idle:      8,
		Streaming: 3,
		Error:     1,
		Success:   2,
		Muted:     8,
		CodeBg:    0,
		Accent:    5,
	}
}

// StatusColor returns the color index for a channel status.
func (t Theme) StatusColor(s Status) int {
	switch s {
	case StatusStreaming:
		return t.Streaming
	case StatusDone:
		return t.Success
	case StatusFailed:
		return t.Error
	default:
		return t.Idle
	}
}
