// Package mock provides test doubles for chorus interfaces using function fields.
package mock

import (
	"context"
	"time"

	"github.com/fwojciec/chorus"
)

// Interface compliance checks.
var (
	_ chorus.Backend         = (*Backend)(nil)
	_ chorus.TextStream      = (*TextStream)(nil)
	_ chorus.BackendObserver = (*BackendObserver)(nil)
)

// Backend is a test double for chorus.Backend.
// Set GenerateFn before calling Generate.
type Backend struct {
	GenerateFn func(ctx context.Context, req chorus.GenerateRequest) (chorus.TextStream, error)
}

// Generate delegates to GenerateFn.
func (b *Backend) Generate(ctx context.Context, req chorus.GenerateRequest) (chorus.TextStream, error) {
	return b.GenerateFn(ctx, req)
}

// TextStream is a test double for chorus.TextStream.
// NextFn panics when nil to catch missing setup. CloseFn is nil-safe because
// callers always defer Close.
type TextStream struct {
	NextFn  func() (string, error)
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *TextStream) Next() (string, error) {
	return s.NextFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *TextStream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// BackendObserver is a test double for chorus.BackendObserver. Every field is
// nil-safe.
type BackendObserver struct {
	BackendStartedFn  func(name string)
	BackendFinishedFn func(name string, elapsed time.Duration, usage chorus.Usage, err error)
}

// BackendStarted delegates to BackendStartedFn.
func (o *BackendObserver) BackendStarted(name string) {
	if o.BackendStartedFn != nil {
		o.BackendStartedFn(name)
	}
}

// BackendFinished delegates to BackendFinishedFn.
func (o *BackendObserver) BackendFinished(name string, elapsed time.Duration, usage chorus.Usage, err error) {
	if o.BackendFinishedFn != nil {
		o.BackendFinishedFn(name, elapsed, usage, err)
	}
}
