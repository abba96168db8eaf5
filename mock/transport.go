package mock

import (
	"context"
	"io"

	"github.com/fwojciec/chorus"
)

// Interface compliance checks.
var (
	_ chorus.Transport   = (*Transport)(nil)
	_ chorus.Reconciler  = (*Reconciler)(nil)
	_ chorus.Observer    = (*Observer)(nil)
	_ chorus.FrameParser = (*FrameParser)(nil)
)

// Transport is a test double for chorus.Transport.
// Set OpenFn before calling Open.
type Transport struct {
	OpenFn func(ctx context.Context) (io.ReadCloser, error)
}

// Open delegates to OpenFn.
func (t *Transport) Open(ctx context.Context) (io.ReadCloser, error) {
	return t.OpenFn(ctx)
}

// Reconciler is a test double for chorus.Reconciler.
// Set ReconcileFn before calling Reconcile.
type Reconciler struct {
	ReconcileFn func(ctx context.Context, result chorus.SessionResult) error
}

// Reconcile delegates to ReconcileFn.
func (r *Reconciler) Reconcile(ctx context.Context, result chorus.SessionResult) error {
	return r.ReconcileFn(ctx, result)
}

// Observer is a test double for chorus.Observer. Every field is nil-safe.
type Observer struct {
	FrameAppliedFn    func(kind chorus.FrameKind, ignored bool)
	FlushedFn         func(final bool)
	SessionFinishedFn func(result chorus.SessionResult)
}

// FrameApplied delegates to FrameAppliedFn.
func (o *Observer) FrameApplied(kind chorus.FrameKind, ignored bool) {
	if o.FrameAppliedFn != nil {
		o.FrameAppliedFn(kind, ignored)
	}
}

// Flushed delegates to FlushedFn.
func (o *Observer) Flushed(final bool) {
	if o.FlushedFn != nil {
		o.FlushedFn(final)
	}
}

// SessionFinished delegates to SessionFinishedFn.
func (o *Observer) SessionFinished(result chorus.SessionResult) {
	if o.SessionFinishedFn != nil {
		o.SessionFinishedFn(result)
	}
}

// FrameParser is a test double for chorus.FrameParser.
// FeedFn panics when nil. FinishFn is nil-safe.
type FrameParser struct {
	FeedFn   func(p []byte) []chorus.Frame
	FinishFn func()
}

// Feed delegates to FeedFn.
func (p *FrameParser) Feed(b []byte) []chorus.Frame {
	return p.FeedFn(b)
}

// Finish delegates to FinishFn.
func (p *FrameParser) Finish() {
	if p.FinishFn != nil {
		p.FinishFn()
	}
}
