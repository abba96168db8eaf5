package bubbletea

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/chorus"
)

// Styles maps a Theme to lipgloss styles for TUI rendering.
type Styles struct {
	Prompt lipgloss.Style
	Name   lipgloss.Style
	Error  lipgloss.Style
	Muted  lipgloss.Style
	Accent lipgloss.Style
	Border lipgloss.Style

	badges map[chorus.Status]lipgloss.Style
}

// NewStyles creates Styles from a Theme.
func NewStyles(t chorus.Theme) Styles {
	s := Styles{
		Prompt: lipgloss.NewStyle().Foreground(ansiColor(t.Prompt)).Bold(true),
		Name:   lipgloss.NewStyle().Foreground(ansiColor(t.Accent)).Bold(true),
		Error:  lipgloss.NewStyle().Foreground(ansiColor(t.Error)),
		Muted:  lipgloss.NewStyle().Foreground(ansiColor(t.Muted)).Faint(true),
		Accent: lipgloss.NewStyle().Foreground(ansiColor(t.Accent)),
		Border: lipgloss.NewStyle().Foreground(ansiColor(t.Muted)),
		badges: make(map[chorus.Status]lipgloss.Style),
	}
	for _, st := range []chorus.Status{chorus.StatusIdle, chorus.StatusStreaming, chorus.StatusDone, chorus.StatusFailed} {
		s.badges[st] = lipgloss.NewStyle().Foreground(ansiColor(t.StatusColor(st))).Bold(st.Terminal())
	}
	return s
}

// Badge returns the style for a channel status badge.
func (s Styles) Badge(st chorus.Status) lipgloss.Style {
	if b, ok := s.badges[st]; ok {
		return b
	}
	return s.Muted
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}
