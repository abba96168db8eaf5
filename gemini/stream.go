package gemini

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/fwojciec/chorus"
	"google.golang.org/genai"
)

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

// stream implements [chorus.TextStream] by wrapping the genai SDK's streaming
// iterator.
type stream struct {
	ctx        context.Context
	pull       func() (*genai.GenerateContentResponse, error, bool)
	stop       func()
	state      streamState
	pending    []string
	usage      chorus.Usage
	stopReason string
	err        error
}

// NewStreamFromIter wraps a genai streaming iterator.
// Exported for testing.
func NewStreamFromIter(ctx context.Context, seq iter.Seq2[*genai.GenerateContentResponse, error]) chorus.TextStream {
	next, stop := iter.Pull2(seq)
	return &stream{
		ctx:  ctx,
		pull: next,
		stop: stop,
	}
}

// Next returns the next text delta. Returns io.EOF when the iterator is
// exhausted.
func (s *stream) Next() (string, error) {
	for {
		if len(s.pending) > 0 {
			text := s.pending[0]
			s.pending = s.pending[1:]
			return text, nil
		}

		switch s.state {
		case stateComplete:
			return "", io.EOF
		case stateError:
			return "", s.err
		case stateClosed:
			return "", fmt.Errorf("gemini: %w", chorus.ErrStreamClosed)
		}

		if err := s.ctx.Err(); err != nil {
			s.fail(err)
			return "", s.err
		}

		resp, err, ok := s.pull()
		if !ok {
			s.state = stateComplete
			if s.stopReason == "" {
				s.stopReason = string(genai.FinishReasonStop)
			}
			continue
		}
		if err != nil {
			s.fail(err)
			return "", s.err
		}
		s.state = stateStreaming
		if err := s.process(resp); err != nil {
			s.fail(err)
			return "", s.err
		}
	}
}

// Usage returns the token usage reported so far.
func (s *stream) Usage() chorus.Usage {
	return s.usage
}

// StopReason returns the raw finish reason of the candidate.
func (s *stream) StopReason() string {
	return s.stopReason
}

// Close stops the underlying iterator.
func (s *stream) Close() error {
	if s.state != stateComplete && s.state != stateError {
		s.state = stateClosed
	}
	s.pending = nil
	s.stop()
	return nil
}

func (s *stream) fail(err error) {
	s.state = stateError
	s.pending = nil
	s.err = fmt.Errorf("gemini: %w", err)
}

// process queues the text parts of one response chunk.
func (s *stream) process(resp *genai.GenerateContentResponse) error {
	if resp == nil {
		return nil
	}
	if u := resp.UsageMetadata; u != nil {
		cached := int(u.CachedContentTokenCount)
		s.usage = chorus.Usage{
			InputTokens:     max(0, int(u.PromptTokenCount)-cached),
			OutputTokens:    int(u.CandidatesTokenCount),
			CacheReadTokens: cached,
		}
	}
	if len(resp.Candidates) == 0 {
		if pf := resp.PromptFeedback; pf != nil && pf.BlockReason != "" {
			s.stopReason = string(pf.BlockReason)
			return fmt.Errorf("prompt blocked: %s", strings.ToLower(string(pf.BlockReason)))
		}
		return nil
	}
	cand := resp.Candidates[0]
	if cand.FinishReason != "" {
		s.stopReason = string(cand.FinishReason)
	}
	if cand.Content == nil {
		return nil
	}
	for _, p := range cand.Content.Parts {
		if p == nil || p.Thought || p.Text == "" {
			continue
		}
		s.pending = append(s.pending, p.Text)
	}
	return nil
}
