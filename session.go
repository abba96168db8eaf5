package chorus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	readBufferSize = 32 * 1024

	// Consecutive (0, nil) reads tolerated before the transport is treated
	// as broken. Matches bufio.
	maxEmptyReads = 100
)

// Option configures a Session.
type Option func(*sessionConfig)

type sessionConfig struct {
	id             string
	window         time.Duration
	flushInterval  time.Duration
	emptyAsFailure bool
	maxBufferBytes int
	logger         *zap.Logger
	observer       Observer
	reconciler     Reconciler
	onSnapshot     func(Snapshot)
	onFirst        func(channelID string)
	now            func() time.Time
}

// WithSessionID sets the session id. Default is a random UUID.
func WithSessionID(id string) Option {
	return func(c *sessionConfig) { c.id = id }
}

// WithWindow sets the session-wide inactivity window. Default DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(c *sessionConfig) { c.window = d }
}

// WithFlushInterval sets the minimum time between snapshot flushes. Default
// DefaultFlushInterval.
func WithFlushInterval(d time.Duration) Option {
	return func(c *sessionConfig) { c.flushInterval = d }
}

// WithEmptyAsFailure controls whether a done channel with blank content is
// classified as failed. Default true.
func WithEmptyAsFailure(v bool) Option {
	return func(c *sessionConfig) { c.emptyAsFailure = v }
}

// WithMaxBufferBytes caps each channel's buffer. Default 0 (unbounded).
func WithMaxBufferBytes(n int) Option {
	return func(c *sessionConfig) { c.maxBufferBytes = n }
}

// WithLogger sets the logger. Default zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *sessionConfig) { c.logger = l }
}

// WithObserver sets the telemetry observer.
func WithObserver(o Observer) Option {
	return func(c *sessionConfig) { c.observer = o }
}

// WithReconciler sets the callback that settles credits for the final result.
func WithReconciler(r Reconciler) Option {
	return func(c *sessionConfig) { c.reconciler = r }
}

// WithSnapshotHandler sets the consumer of coalesced snapshots. It is called
// from the read loop at the bounded cadence and once more, synchronously,
// with the final snapshot. It must not block for long.
func WithSnapshotHandler(h func(Snapshot)) Option {
	return func(c *sessionConfig) { c.onSnapshot = h }
}

// WithFirstActivityHandler sets the one-shot callback raised the first time
// any channel leaves Idle.
func WithFirstActivityHandler(h func(channelID string)) Option {
	return func(c *sessionConfig) { c.onFirst = h }
}

// WithClock sets the time source used for channel timestamps, the liveness
// deadline and the flush cadence. Default time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *sessionConfig) { c.now = now }
}

// Session is one multiplexed read from start to a single terminal outcome.
// A Session is single-use.
type Session struct {
	requested []string
	parser    FrameParser
	cfg       sessionConfig
	ran       atomic.Bool
}

// NewSession creates a Session expecting the requested channels, decoding
// the transport with parser.
func NewSession(requested []string, parser FrameParser, opts ...Option) *Session {
	cfg := sessionConfig{
		emptyAsFailure: true,
		logger:         zap.NewNop(),
		observer:       nopObserver{},
		now:            time.Now,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.id == "" {
		cfg.id = uuid.NewString()
	}
	if cfg.window <= 0 {
		cfg.window = DefaultWindow
	}
	if cfg.flushInterval <= 0 {
		cfg.flushInterval = DefaultFlushInterval
	}
	return &Session{
		requested: append([]string(nil), requested...),
		parser:    parser,
		cfg:       cfg,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.cfg.id
}

// Run opens the transport and processes the stream until a terminal
// condition. The only error returned is a failure to start: a nil or
// unopenable transport, or a reused Session. Once reading has begun, every
// failure mode resolves into the SessionResult.
func (s *Session) Run(ctx context.Context, t Transport) (SessionResult, error) {
	if t == nil {
		return SessionResult{}, ErrNoTransport
	}
	if !s.ran.CompareAndSwap(false, true) {
		return SessionResult{}, ErrSessionReused
	}
	rc, err := t.Open(ctx)
	if err != nil {
		return SessionResult{}, fmt.Errorf("open transport: %w", err)
	}
	return s.newLoop().run(ctx, rc), nil
}

// loop is the per-run state. Only the goroutine executing run touches it.
type loop struct {
	cfg        sessionConfig
	log        *zap.Logger
	parser     FrameParser
	registry   *Registry
	liveness   *LivenessMonitor
	dispatcher *Dispatcher
	aggregator *Aggregator
}

func (s *Session) newLoop() *loop {
	now := s.cfg.now()
	reg := NewRegistry(s.requested,
		EmptyAsFailure(s.cfg.emptyAsFailure),
		MaxBufferBytes(s.cfg.maxBufferBytes),
	)
	return &loop{
		cfg:        s.cfg,
		log:        s.cfg.logger.With(zap.String("session_id", s.cfg.id)),
		parser:     s.parser,
		registry:   reg,
		liveness:   NewLivenessMonitor(s.cfg.window, reg.IDs(), now),
		dispatcher: NewDispatcher(s.cfg.flushInterval, s.cfg.id, reg.Snapshot, s.cfg.onFirst),
		aggregator: NewAggregator(s.cfg.id, reg, now),
	}
}

type readResult struct {
	data []byte
	err  error
}

func (l *loop) run(ctx context.Context, rc io.ReadCloser) SessionResult {
	reads := make(chan readResult)
	stop := make(chan struct{})
	go pump(rc, reads, stop)
	defer func() {
		close(stop)
		if err := rc.Close(); err != nil {
			l.log.Debug("close transport", zap.Error(err))
		}
	}()

	l.log.Debug("session started", zap.Strings("requested", l.registry.IDs()))

	deadline := time.NewTimer(l.cfg.window)
	defer deadline.Stop()
	flush := time.NewTimer(l.cfg.flushInterval)
	defer flush.Stop()
	var flushC <-chan time.Time

	for {
		l.armDeadline(deadline)
		flushC = l.armFlush(flush)

		select {
		case <-ctx.Done():
			return l.finish(ctx, OutcomeCancelled, ctx.Err())

		case <-deadline.C:
			if err := ctx.Err(); err != nil {
				return l.finish(ctx, OutcomeCancelled, err)
			}
			if l.liveness.ShouldTimeoutNow(l.cfg.now()) {
				return l.finish(ctx, OutcomeTimedOut,
					fmt.Errorf("no activity for %s", l.liveness.Window()))
			}

		case <-flushC:
			l.flushIfDue()

		case r := <-reads:
			if err := ctx.Err(); err != nil {
				return l.finish(ctx, OutcomeCancelled, err)
			}
			if end := l.consume(ctx, r); end != nil {
				return l.finish(ctx, end.outcome, end.cause)
			}
			l.flushIfDue()
		}
	}
}

// ending is a terminal condition detected while consuming a read.
type ending struct {
	outcome Outcome
	cause   error
}

// consume processes one read and returns the terminal condition it hit, if
// any.
func (l *loop) consume(ctx context.Context, r readResult) *ending {
	if len(r.data) > 0 {
		for _, f := range l.parser.Feed(r.data) {
			if err := ctx.Err(); err != nil {
				return &ending{OutcomeCancelled, err}
			}
			switch f.Kind {
			case FrameError:
				l.cfg.observer.FrameApplied(f.Kind, false)
				msg := f.Error
				if msg == "" {
					msg = "unspecified"
				}
				return &ending{OutcomeServerError, fmt.Errorf("%w: %s", ErrSessionError, msg)}
			case FrameComplete:
				l.cfg.observer.FrameApplied(f.Kind, false)
				l.aggregator.SetMetadata(f.Metadata)
				return &ending{OutcomeCompleted, nil}
			default:
				l.apply(f)
			}
		}
		if l.registry.AllTerminal() {
			return &ending{OutcomeCompleted, nil}
		}
	}
	if r.err == nil {
		return nil
	}
	l.parser.Finish()
	if errors.Is(r.err, io.EOF) {
		var cause error
		if pending := l.registry.Pending(); len(pending) > 0 {
			cause = fmt.Errorf("stream ended with %d channel(s) unfinished", len(pending))
		}
		return &ending{OutcomeCompleted, cause}
	}
	return &ending{OutcomeTransportError, r.err}
}

func (l *loop) apply(f Frame) {
	now := l.cfg.now()
	d := l.registry.Apply(f, now)
	l.cfg.observer.FrameApplied(f.Kind, d.Ignored)
	if d.Ignored {
		l.log.Debug("frame ignored",
			zap.String("channel", f.Channel),
			zap.String("kind", string(f.Kind)),
			zap.Stringer("status", d.From))
		return
	}
	if f.Kind.Activity() {
		l.liveness.OnActivity(d.Channel, now)
	}
	if d.Transitioned() {
		l.log.Debug("channel status",
			zap.String("channel", d.Channel),
			zap.Stringer("from", d.From),
			zap.Stringer("to", d.To))
	}
	if d.To.Terminal() {
		l.liveness.OnChannelTerminal(d.Channel)
		c, _ := l.registry.Get(d.Channel)
		l.log.Debug("channel finished",
			zap.String("channel", d.Channel),
			zap.Stringer("status", d.To),
			zap.Int("bytes", len(c.Text)),
			zap.String("error", c.Error))
	}
	l.dispatcher.OnMutation(d)
}

func (l *loop) flushIfDue() {
	if snap, ok := l.dispatcher.FlushIfDue(l.cfg.now()); ok {
		l.emit(snap)
	}
}

func (l *loop) emit(snap Snapshot) {
	l.cfg.observer.Flushed(snap.Final)
	if l.cfg.onSnapshot != nil {
		l.cfg.onSnapshot(snap)
	}
}

func (l *loop) armDeadline(t *time.Timer) {
	at, ok := l.liveness.NextDeadline()
	if !ok {
		t.Stop()
		return
	}
	t.Reset(max(at.Sub(l.cfg.now()), 0))
}

func (l *loop) armFlush(t *time.Timer) <-chan time.Time {
	now := l.cfg.now()
	at, ok := l.dispatcher.NextDue(now)
	if !ok {
		t.Stop()
		return nil
	}
	t.Reset(max(at.Sub(now), time.Millisecond))
	return t.C
}

func (l *loop) finish(ctx context.Context, outcome Outcome, cause error) SessionResult {
	now := l.cfg.now()
	l.liveness.Stop()
	res, _ := l.aggregator.Finalize(outcome, cause, now)
	l.emit(l.dispatcher.ForceFlush(now, res.Outcome))
	l.cfg.observer.SessionFinished(res)

	if l.cfg.reconciler != nil {
		// Settle even when the session was cancelled.
		if err := l.cfg.reconciler.Reconcile(context.WithoutCancel(ctx), res); err != nil {
			l.log.Warn("reconcile failed", zap.Error(err))
		}
	}

	l.log.Info("session finished",
		zap.Stringer("outcome", res.Outcome),
		zap.String("reason", res.Reason),
		zap.Int("succeeded", len(res.Succeeded)),
		zap.Int("failed", len(res.Failed)),
		zap.Int("not_started", len(res.NotStarted)),
		zap.Bool("any_activity", l.dispatcher.FirstActivitySeen()),
		zap.Duration("duration", res.Duration()))
	return res
}

// pump is the single reader. It forwards each read until the stream ends or
// the session stops listening.
func pump(r io.Reader, out chan<- readResult, stop <-chan struct{}) {
	buf := make([]byte, readBufferSize)
	empty := 0
	for {
		n, err := r.Read(buf)
		if n == 0 && err == nil {
			if empty++; empty < maxEmptyReads {
				continue
			}
			err = io.ErrNoProgress
		}
		empty = 0
		res := readResult{err: err}
		if n > 0 {
			res.data = bytes.Clone(buf[:n])
		}
		select {
		case out <- res:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}
