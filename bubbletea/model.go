package bubbletea

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/chorus"
	"github.com/fwojciec/chorus/ansi"
	"github.com/fwojciec/chorus/goldmark"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"
)

var _ tea.Model = Model{}

const (
	headerHeight = 1
	statusHeight = 1

	// A pane renders at most this much of a channel's most recent text.
	paneMaxLines = 400
	paneMaxBytes = 64 * 1024
)

// Option configures a Model.
type Option func(*Model)

// WithPrompt sets the prompt echoed above the panes.
func WithPrompt(prompt string) Option {
	return func(m *Model) { m.prompt = prompt }
}

// WithContext sets the parent context of the session. Cancelling it cancels
// the running session. Default context.Background.
func WithContext(ctx context.Context) Option {
	return func(m *Model) { m.ctx = ctx }
}

// WithClock sets the time source for elapsed times. Default time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// Model is the Bubble Tea model for the chorus TUI. It renders one pane per
// channel from the latest snapshot and the final result once the session
// ends.
type Model struct {
	// Viewport is the scrollable pane area. Exported for test access.
	Viewport viewport.Model
	// Spinner animates streaming channels. Exported for test access.
	Spinner spinner.Model

	run       SessionFunc
	requested []string
	prompt    string
	theme     chorus.Theme
	styles    Styles
	now       func() time.Time
	startedAt time.Time

	snapshot chorus.Snapshot
	result   *chorus.SessionResult
	bodies   map[string]paneCache

	first      string
	firstAfter time.Duration

	running    bool
	cancelling bool
	ctx        context.Context
	cancel     context.CancelFunc
	snapCh     chan chorus.Snapshot
	firstCh    chan string
	doneCh     chan sessionDone
	err        error
	ready      bool
}

// paneCache holds a rendered pane body. Markdown is re-rendered only when the
// channel or the width changes.
type paneCache struct {
	frames int
	size   int
	status chorus.Status
	width  int
	out    string
}

func (p paneCache) sameAs(o paneCache) bool {
	return p.frames == o.frames && p.size == o.size && p.status == o.status && p.width == o.width
}

type sessionDone struct {
	result chorus.SessionResult
	err    error
}

// New creates a TUI Model that runs the session with run when the program
// starts. requested seeds the panes shown before the first snapshot.
func New(run SessionFunc, requested []string, theme chorus.Theme, opts ...Option) Model {
	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot))

	m := Model{
		Spinner:   sp,
		run:       run,
		requested: append([]string(nil), requested...),
		theme:     theme,
		styles:    NewStyles(theme),
		now:       time.Now,
		bodies:    make(map[string]paneCache),
		running:   true,
		ctx:       context.Background(),
		snapCh:    make(chan chorus.Snapshot, 1),
		firstCh:   make(chan string, 1),
		doneCh:    make(chan sessionDone, 1),
	}
	for _, o := range opts {
		o(&m)
	}
	m.ctx, m.cancel = context.WithCancel(m.ctx)
	m.startedAt = m.now()
	return m
}

// Running returns whether the session is still running.
func (m Model) Running() bool { return m.running }

// Err returns the error the session failed to start with, if any.
func (m Model) Err() error { return m.err }

// Result returns the final session result once the session has finished.
func (m Model) Result() (chorus.SessionResult, bool) {
	if m.result == nil {
		return chorus.SessionResult{}, false
	}
	return *m.result, true
}

// FirstActivity returns the channel that produced the first activity, or ""
// when no channel has started yet.
func (m Model) FirstActivity() string { return m.first }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		startSession(m.ctx, m.run, m.snapCh, m.firstCh, m.doneCh),
		listen(m.snapCh, m.firstCh, m.doneCh),
		m.Spinner.Tick,
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SnapshotMsg:
		if m.result == nil && msg.Snapshot.Seq >= m.snapshot.Seq {
			m.snapshot = msg.Snapshot
			m = m.refresh()
		}
		return m, listen(m.snapCh, m.firstCh, m.doneCh)

	case FirstActivityMsg:
		m = m.recordFirst(msg.Channel)
		return m, listen(m.snapCh, m.firstCh, m.doneCh)

	case ResultMsg:
		return m.finish(msg), nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		m = m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.promptLine())
	b.WriteString("\n")
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	vpHeight := max(msg.Height-headerHeight-statusHeight, 1)

	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
	}
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		if m.running {
			if !m.cancelling {
				m.cancel()
				m.cancelling = true
			}
			return m, nil
		}
		return m, tea.Quit

	case msg.Type == tea.KeyRunes && string(msg.Runes) == "q" && !m.running:
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	return m, cmd
}

func (m Model) recordFirst(id string) Model {
	if m.first != "" || id == "" {
		return m
	}
	m.first = id
	m.firstAfter = m.now().Sub(m.startedAt)
	return m
}

func (m Model) finish(msg ResultMsg) Model {
	m.running = false
	m.cancelling = false
	m.cancel()

	// The first-activity signal may still be queued behind the result.
	select {
	case id := <-m.firstCh:
		m = m.recordFirst(id)
	default:
	}

	if msg.Err != nil {
		m.err = msg.Err
		return m.refresh()
	}
	res := msg.Result
	m.result = &res
	channels := make([]chorus.ChannelSnapshot, len(res.Channels))
	for i, c := range res.Channels {
		channels[i] = c.ChannelSnapshot
	}
	m.snapshot = chorus.Snapshot{
		SessionID: res.SessionID,
		Seq:       m.snapshot.Seq,
		Channels:  channels,
		Outcome:   res.Outcome,
		Final:     true,
		TakenAt:   res.FinishedAt,
	}
	return m.refresh()
}

// refresh re-renders the panes, following the output only when the view was
// already at the bottom.
func (m Model) refresh() Model {
	if !m.ready {
		return m
	}
	follow := m.Viewport.AtBottom()
	m.Viewport.SetContent(m.renderContent())
	if follow {
		m.Viewport.GotoBottom()
	}
	return m
}

// panes returns the channels to draw: the latest snapshot, or idle
// placeholders for the requested channels before the first one arrives.
func (m Model) panes() []chorus.ChannelSnapshot {
	if len(m.snapshot.Channels) > 0 {
		return m.snapshot.Channels
	}
	out := make([]chorus.ChannelSnapshot, len(m.requested))
	for i, id := range m.requested {
		out[i] = chorus.ChannelSnapshot{ID: id, Status: chorus.StatusIdle}
	}
	return out
}

func (m Model) renderContent() string {
	panes := m.panes()
	if len(panes) == 0 {
		return ""
	}
	width := m.Viewport.Width
	parts := make([]string, 0, len(panes))
	for _, c := range panes {
		parts = append(parts, m.paneHeader(c, width)+"\n"+m.paneBody(c, width))
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) paneHeader(c chorus.ChannelSnapshot, width int) string {
	badge := m.styles.Badge(c.Status).Render(m.glyph(c.Status) + " " + c.Status.String())
	right := badge + "  " + m.styles.Muted.Render(formatElapsed(c.Elapsed(m.now())))
	rightWidth := lipgloss.Width(right)

	name := truncate(ansi.SanitizeLine(c.ID), width-rightWidth-1)
	gap := max(width-uniseg.StringWidth(name)-rightWidth, 1)
	return m.styles.Name.Render(name) + strings.Repeat(" ", gap) + right
}

func (m Model) paneBody(c chorus.ChannelSnapshot, width int) string {
	if c.Status == chorus.StatusIdle && c.Text == "" && c.Error == "" {
		return m.styles.Muted.Render("waiting...")
	}
	key := paneCache{frames: c.Frames, size: len(c.Text) + len(c.Error), status: c.Status, width: width}
	if cached, ok := m.bodies[c.ID]; ok && cached.sameAs(key) {
		return cached.out
	}
	tail, cut := ansi.Tail(c.Text, paneMaxLines, paneMaxBytes)
	c.Text = tail
	key.out = goldmark.RenderChannel(c, width, m.theme)
	if cut {
		key.out = m.styles.Muted.Render("[earlier output hidden]") + "\n\n" + key.out
	}
	m.bodies[c.ID] = key
	return key.out
}

func (m Model) glyph(s chorus.Status) string {
	switch s {
	case chorus.StatusStreaming:
		return strings.TrimSpace(m.Spinner.View())
	case chorus.StatusDone:
		return "✓"
	case chorus.StatusFailed:
		return "✗"
	default:
		return "○"
	}
}

func (m Model) promptLine() string {
	prompt := strings.Join(strings.Fields(m.prompt), " ")
	if prompt == "" {
		return m.styles.Muted.Render(fmt.Sprintf("%d channels", len(m.panes())))
	}
	return m.styles.Prompt.Render("> ") + truncate(prompt, m.Viewport.Width-2)
}

func (m Model) statusLine() string {
	if m.err != nil {
		return m.styles.Error.Render(fmt.Sprintf("Error: %v", m.err)) + m.styles.Muted.Render("  q to quit")
	}
	if m.result != nil {
		return m.resultLine(*m.result)
	}
	if m.cancelling {
		return m.styles.Muted.Render("Cancelling...")
	}

	var parts []string
	panes := m.panes()
	terminal := 0
	for _, c := range panes {
		if c.Status.Terminal() {
			terminal++
		}
	}
	parts = append(parts, fmt.Sprintf("%d/%d finished", terminal, len(panes)))
	if m.first != "" {
		parts = append(parts, fmt.Sprintf("first: %s in %s", m.first, formatElapsed(m.firstAfter)))
	}
	parts = append(parts, "Ctrl+C to cancel")
	return m.styles.Muted.Render(strings.Join(parts, " · "))
}

func (m Model) resultLine(r chorus.SessionResult) string {
	label := strings.ReplaceAll(r.Outcome.String(), "_", " ")
	outcome := m.styles.Accent.Render(label)
	if r.Outcome != chorus.OutcomeCompleted {
		outcome = m.styles.Error.Render(label)
	}
	summary := fmt.Sprintf(" · %d succeeded, %d failed · %s", len(r.Succeeded), len(r.Failed), formatElapsed(r.Duration()))
	line := outcome + m.styles.Muted.Render(summary)
	if r.Err != nil && !errors.Is(r.Err, context.Canceled) {
		line += m.styles.Error.Render(" · " + r.Err.Error())
	}
	return line + m.styles.Muted.Render(" · q to quit")
}

func formatElapsed(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

// truncate shortens s to at most width cells, marking the cut with an
// ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if uniseg.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// startSession runs the session in a goroutine and signals completion.
// Snapshots are offered latest-wins so a slow render never stalls the read
// loop.
func startSession(ctx context.Context, run SessionFunc, snapCh chan chorus.Snapshot, firstCh chan<- string, doneCh chan<- sessionDone) tea.Cmd {
	return func() tea.Msg {
		res, err := run(ctx,
			func(s chorus.Snapshot) { offer(snapCh, s) },
			func(id string) {
				select {
				case firstCh <- id:
				default:
				}
			},
		)
		doneCh <- sessionDone{result: res, err: err}
		return nil
	}
}

// offer replaces any pending snapshot with s. It assumes a single sender.
func offer(ch chan chorus.Snapshot, s chorus.Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// listen waits for the next message from the running session. The
// first-activity signal is preferred over snapshots.
func listen(snapCh <-chan chorus.Snapshot, firstCh <-chan string, doneCh <-chan sessionDone) tea.Cmd {
	return func() tea.Msg {
		select {
		case id := <-firstCh:
			return FirstActivityMsg{Channel: id}
		default:
		}
		select {
		case id := <-firstCh:
			return FirstActivityMsg{Channel: id}
		case s := <-snapCh:
			return SnapshotMsg{Snapshot: s}
		case d := <-doneCh:
			return ResultMsg{Result: d.result, Err: d.err}
		}
	}
}
