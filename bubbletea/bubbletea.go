// Package bubbletea provides a Bubble Tea TUI that renders a chorus session
// as it streams.
package bubbletea

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/chorus"
)

// SessionFunc runs one session. onSnapshot receives coalesced snapshots and
// onFirst the first-activity signal. The function blocks until the session
// reaches its outcome or fails to start.
type SessionFunc func(ctx context.Context, onSnapshot func(chorus.Snapshot), onFirst func(channelID string)) (chorus.SessionResult, error)

// Run creates and runs the Bubble Tea TUI program and returns the model it
// ended with. It blocks until the program exits. When ctx is cancelled, the
// program quits. A session still running when the program exits is
// cancelled.
func Run(ctx context.Context, m Model, opts ...tea.ProgramOption) (Model, error) {
	defer m.cancel()

	p := tea.NewProgram(m, append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)
	exited := make(chan struct{})
	defer close(exited)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-exited:
		}
	}()
	final, err := p.Run()
	if err != nil {
		return m, err
	}
	fm, ok := final.(Model)
	if !ok {
		return m, fmt.Errorf("bubbletea: unexpected final model %T", final)
	}
	return fm, nil
}

// SnapshotMsg delivers a session snapshot to the model.
type SnapshotMsg struct {
	Snapshot chorus.Snapshot
}

// FirstActivityMsg signals that a channel produced the session's first
// activity.
type FirstActivityMsg struct {
	Channel string
}

// ResultMsg signals that the session has finished.
type ResultMsg struct {
	Result chorus.SessionResult
	Err    error
}
