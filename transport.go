package chorus

import (
	"context"
	"io"
	"time"
)

// Transport opens the multiplexed byte stream for one session. The session
// owns the returned reader and closes it on every exit path.
type Transport interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context) (io.ReadCloser, error)

// Open calls f.
func (f TransportFunc) Open(ctx context.Context) (io.ReadCloser, error) {
	return f(ctx)
}

// Reconciler settles quota or credits once a session has a final result.
type Reconciler interface {
	Reconcile(ctx context.Context, result SessionResult) error
}

// ReconcileFunc adapts a function to Reconciler.
type ReconcileFunc func(ctx context.Context, result SessionResult) error

// Reconcile calls f.
func (f ReconcileFunc) Reconcile(ctx context.Context, result SessionResult) error {
	return f(ctx, result)
}

// Observer receives engine telemetry. Implementations must be cheap and must
// not block: they are called from the session's read loop.
type Observer interface {
	FrameApplied(kind FrameKind, ignored bool)
	Flushed(final bool)
	SessionFinished(result SessionResult)
}

type nopObserver struct{}

func (nopObserver) FrameApplied(FrameKind, bool)  {}
func (nopObserver) Flushed(bool)                  {}
func (nopObserver) SessionFinished(SessionResult) {}

// BackendObserver receives per-backend telemetry from the fan-out server.
// Implementations must be safe for concurrent use.
type BackendObserver interface {
	BackendStarted(name string)
	BackendFinished(name string, elapsed time.Duration, usage Usage, err error)
}

type nopBackendObserver struct{}

func (nopBackendObserver) BackendStarted(string)                               {}
func (nopBackendObserver) BackendFinished(string, time.Duration, Usage, error) {}

// NopBackendObserver returns a BackendObserver that does nothing.
func NopBackendObserver() BackendObserver {
	return nopBackendObserver{}
}
