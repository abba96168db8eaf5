package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fwojciec/chorus"
)

// streamState tracks where a stream is in its lifecycle.
type streamState int

const (
	stateNew streamState = iota
	stateStreaming
	stateComplete
	stateError
	stateClosed
)

// Interface compliance checks.
var (
	_ chorus.TextStream    = (*stream)(nil)
	_ chorus.UsageReporter = (*stream)(nil)
)

// stream implements [chorus.TextStream] by parsing SSE events from an HTTP
// response body.
type stream struct {
	body       io.ReadCloser
	scanner    *bufio.Scanner
	ctx        context.Context
	state      streamState
	usage      chorus.Usage
	stopReason string
	err        error // terminal error, if any
}

func newStream(ctx context.Context, body io.ReadCloser) *stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &stream{
		body:    body,
		scanner: sc,
		ctx:     ctx,
	}
}

// Next returns the next text delta. Returns io.EOF when the stream completes
// normally.
func (s *stream) Next() (string, error) {
	switch s.state {
	case stateComplete:
		return "", io.EOF
	case stateError:
		return "", s.err
	case stateClosed:
		return "", fmt.Errorf("anthropic: %w", chorus.ErrStreamClosed)
	}

	for {
		eventType, data, err := s.readSSEEvent()
		if err != nil {
			s.terminate(err)
			return "", s.err
		}

		s.state = stateStreaming

		text, err := s.processEvent(eventType, data)
		if err != nil {
			s.terminate(err)
			return "", s.err
		}

		// processEvent may set a terminal state (e.g. message_stop).
		if s.state == stateComplete {
			return "", io.EOF
		}

		if text != "" {
			return text, nil
		}
		// Non-text event (ping, message_start, etc.) - keep reading.
	}
}

// Usage returns the token usage reported so far.
func (s *stream) Usage() chorus.Usage {
	return s.usage
}

// StopReason returns the raw stop reason from message_delta, if any.
func (s *stream) StopReason() string {
	return s.stopReason
}

// Close closes the underlying HTTP response body.
func (s *stream) Close() error {
	if s.state != stateComplete && s.state != stateError {
		s.state = stateClosed
	}
	return s.body.Close()
}

// terminate records a terminal error.
func (s *stream) terminate(err error) {
	s.state = stateError
	switch {
	case err == io.EOF:
		// Normal completion via message_stop sets stateComplete before we
		// reach here. A raw EOF means the stream ended unexpectedly.
		s.err = fmt.Errorf("anthropic: unexpected end of stream")
	case s.ctx.Err() != nil:
		s.err = fmt.Errorf("anthropic: %w", s.ctx.Err())
	default:
		s.err = err
	}
}

// readSSEEvent reads lines until a complete SSE event is assembled.
// Returns the event type and the data payload.
func (s *stream) readSSEEvent() (string, string, error) {
	var eventType string
	var dataBuf strings.Builder

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			// Empty line signals end of event.
			if dataBuf.Len() > 0 {
				return eventType, dataBuf.String(), nil
			}
			// Empty event, keep reading.
			continue
		}

		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
		} else if strings.HasPrefix(line, "data: ") {
			if dataBuf.Len() > 0 {
				dataBuf.WriteByte('\n')
			}
			dataBuf.WriteString(strings.TrimPrefix(line, "data: "))
		}
		// Ignore comments (lines starting with ':') and unknown fields.
	}

	if err := s.scanner.Err(); err != nil {
		return "", "", fmt.Errorf("anthropic: %w", err)
	}

	// Scanner exhausted without error = EOF.
	if dataBuf.Len() > 0 {
		return eventType, dataBuf.String(), nil
	}
	return "", "", io.EOF
}

// processEvent maps an SSE event to a text delta. Returns "" for events that
// carry no text.
func (s *stream) processEvent(eventType, data string) (string, error) {
	switch eventType {
	case "message_start":
		return "", s.handleMessageStart(data)
	case "content_block_delta":
		return s.handleContentBlockDelta(data)
	case "message_delta":
		return "", s.handleMessageDelta(data)
	case "message_stop":
		s.state = stateComplete
		return "", nil
	case "error":
		return "", s.handleError(data)
	default:
		// ping, content_block_start/stop and unknown event types.
		return "", nil
	}
}

func (s *stream) handleMessageStart(data string) error {
	var evt sseMessageStart
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return fmt.Errorf("anthropic: failed to parse message_start: %w", err)
	}
	u := evt.Message.Usage
	s.usage.InputTokens = u.InputTokens
	s.usage.OutputTokens = u.OutputTokens
	if u.CacheReadInputTokens != nil {
		s.usage.CacheReadTokens = *u.CacheReadInputTokens
	}
	return nil
}

func (s *stream) handleContentBlockDelta(data string) (string, error) {
	var evt sseContentBlockDelta
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return "", fmt.Errorf("anthropic: failed to parse content_block_delta: %w", err)
	}
	if evt.Delta.Type != "text_delta" {
		return "", nil
	}
	return evt.Delta.Text, nil
}

func (s *stream) handleMessageDelta(data string) error {
	var evt sseMessageDelta
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return fmt.Errorf("anthropic: failed to parse message_delta: %w", err)
	}
	s.usage.OutputTokens = evt.Usage.OutputTokens
	if evt.Delta.StopReason != nil {
		s.stopReason = *evt.Delta.StopReason
	}
	return nil
}

func (s *stream) handleError(data string) error {
	var evt sseError
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return fmt.Errorf("anthropic: failed to parse error event: %w", err)
	}
	return fmt.Errorf("anthropic: %s: %s", evt.Error.Type, evt.Error.Message)
}
