package chorus

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request or configuration failed validation.
	ErrValidation = errors.New("validation error")

	// ErrNoTransport indicates a session was run without a transport.
	ErrNoTransport = errors.New("no transport")

	// ErrUnknownModel indicates a requested model matched no registered backend.
	ErrUnknownModel = errors.New("unknown model")

	// ErrStreamClosed indicates an operation on a closed text stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrSessionReused indicates Run was called more than once on a Session.
	ErrSessionReused = errors.New("session already run")

	// ErrSessionError indicates the server ended the session with an error frame.
	ErrSessionError = errors.New("session error")
)
