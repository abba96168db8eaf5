// Package goldmark renders channel text as ANSI-styled terminal output,
// using goldmark for parsing and lipgloss for styling.
//
// Channel text is usually incomplete while a backend is still streaming, so
// rendering tolerates a truncated document: an unterminated code fence is
// closed before parsing rather than swallowing the rest of the pane.
package goldmark

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/chorus"
	"github.com/fwojciec/chorus/ansi"
)

const defaultWidth = 80

// Render parses markdown source and returns ANSI-styled terminal output.
// Paragraphs, quotes and list items are word-wrapped to width. Code blocks
// are rendered at full width without reflow.
func Render(source string, width int, theme chorus.Theme) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}
	r := newRenderer(theme)
	return r.render([]byte(closeFences(source)), width)
}

// RenderChannel renders a channel's text followed by a truncation notice and
// the channel's error, when present. Escape sequences in the backend's text
// are stripped first.
func RenderChannel(c chorus.ChannelSnapshot, width int, theme chorus.Theme) string {
	if width <= 0 {
		width = defaultWidth
	}
	var parts []string
	if body := Render(ansi.Sanitize(c.Text), width, theme); body != "" {
		parts = append(parts, body)
	}
	muted := lipgloss.NewStyle().Foreground(ansiColor(theme.Muted)).Faint(true)
	if c.Truncated {
		parts = append(parts, muted.Render("[output truncated]"))
	}
	if c.Error != "" {
		errStyle := lipgloss.NewStyle().Foreground(ansiColor(theme.Error)).Width(width)
		parts = append(parts, errStyle.Render("error: "+ansi.Sanitize(c.Error)))
	}
	return strings.Join(parts, "\n\n")
}

// closeFences appends a closing fence when source ends inside a fenced code
// block.
func closeFences(source string) string {
	var open string
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimLeft(line, " ")
		if len(line)-len(trimmed) > 3 {
			continue
		}
		fence := fenceOf(trimmed)
		switch {
		case fence == "":
		case open == "":
			open = fence
		case strings.HasPrefix(fence, open) && strings.TrimSpace(trimmed[len(fence):]) == "":
			open = ""
		}
	}
	if open == "" {
		return source
	}
	if !strings.HasSuffix(source, "\n") {
		source += "\n"
	}
	return source + open
}

// fenceOf returns the run of three or more backticks or tildes that opens
// line, or "".
func fenceOf(line string) string {
	if line == "" || (line[0] != '`' && line[0] != '~') {
		return ""
	}
	n := 0
	for n < len(line) && line[n] == line[0] {
		n++
	}
	if n < 3 {
		return ""
	}
	return line[:n]
}
