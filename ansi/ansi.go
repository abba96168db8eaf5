// Package ansi prepares model output for display in a terminal. Backend text
// is untrusted: it may carry escape sequences that would restyle or move the
// cursor, and it may be far longer than a pane can usefully show.
package ansi

import (
	"math"
	"strings"
	"unicode/utf8"

	xansi "github.com/charmbracelet/x/ansi"
)

// Sanitize strips ANSI escape sequences and control characters from s. Tabs
// and newlines survive, CRLF becomes LF, and a lone CR overwrites the line
// from its start the way a terminal would.
func Sanitize(s string) string {
	s = xansi.Strip(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\t' || r == '\n' || r == '\r' || (r > 0x1F && r != 0x7F) {
			b.WriteRune(r)
		}
	}
	s = b.String()
	if !strings.ContainsRune(s, '\r') {
		return s
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if strings.ContainsRune(line, '\r') {
			lines[i] = overwrite(line)
		}
	}
	return strings.Join(lines, "\n")
}

// SanitizeLine is Sanitize for single-line labels such as channel ids. Line
// breaks and tabs become spaces.
func SanitizeLine(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return ' '
		}
		return r
	}, Sanitize(s))
}

// overwrite applies carriage returns within one line.
func overwrite(line string) string {
	segments := strings.Split(line, "\r")
	buf := []rune(segments[0])
	for _, seg := range segments[1:] {
		for j, r := range []rune(seg) {
			if j < len(buf) {
				buf[j] = r
			} else {
				buf = append(buf, r)
			}
		}
	}
	return string(buf)
}

// Tail keeps the end of s within maxLines lines and maxBytes bytes and
// reports whether anything was cut. Whole lines are kept, except when the
// last line alone exceeds maxBytes; then its tail is cut at a rune boundary.
// A non-positive limit is no limit.
func Tail(s string, maxLines, maxBytes int) (string, bool) {
	if maxLines <= 0 {
		maxLines = math.MaxInt
	}
	if maxBytes <= 0 {
		maxBytes = math.MaxInt
	}
	if s == "" {
		return "", false
	}

	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) <= maxLines && len(s) <= maxBytes {
		return s, false
	}

	start, size := len(lines), 0
	for start > 0 && len(lines)-start < maxLines && size+len(lines[start-1]) <= maxBytes {
		start--
		size += len(lines[start])
	}
	if start < len(lines) {
		return strings.Join(lines[start:], ""), true
	}

	last := lines[len(lines)-1]
	cut := last[len(last)-maxBytes:]
	for len(cut) > 0 && !utf8.RuneStart(cut[0]) {
		cut = cut[1:]
	}
	return cut, true
}
