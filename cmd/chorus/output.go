package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fwojciec/chorus"
	"github.com/fwojciec/chorus/ansi"
)

// progressPrinter writes one line per channel status change. It is called
// from the session's read loop only.
type progressPrinter struct {
	w    io.Writer
	last map[string]chorus.Status
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, last: make(map[string]chorus.Status)}
}

func (p *progressPrinter) first(id string) {
	fmt.Fprintf(p.w, "[%s] first response\n", ansi.SanitizeLine(id))
}

func (p *progressPrinter) snapshot(s chorus.Snapshot) {
	for _, c := range s.Channels {
		prev, seen := p.last[c.ID]
		p.last[c.ID] = c.Status
		if (seen && prev == c.Status) || c.Status == chorus.StatusIdle {
			continue
		}
		line := fmt.Sprintf("[%s] %s", ansi.SanitizeLine(c.ID), c.Status)
		if c.Error != "" {
			line += ": " + ansi.SanitizeLine(c.Error)
		}
		fmt.Fprintln(p.w, line)
	}
}

// printResult writes every channel's text to stdout and the summary to stderr.
func printResult(stdout, stderr io.Writer, res chorus.SessionResult) {
	for i, c := range res.Channels {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		fmt.Fprintf(stdout, "== %s (%s) ==\n", ansi.SanitizeLine(c.ID), c.Verdict)
		if text := strings.TrimSpace(ansi.Sanitize(c.Text)); text != "" {
			fmt.Fprintln(stdout, text)
		}
		if c.Truncated {
			fmt.Fprintln(stdout, "[output truncated]")
		}
		if c.Error != "" {
			fmt.Fprintf(stdout, "error: %s\n", ansi.SanitizeLine(c.Error))
		}
	}
	fmt.Fprintf(stderr, "%s: %d succeeded, %d failed in %s\n",
		res.Outcome, len(res.Succeeded), len(res.Failed), res.Duration().Round(time.Millisecond))
}
