package chorus

import (
	"context"
	"fmt"
	"strings"
)

// Backend is a strategy interface for one text-generation endpoint.
type Backend interface {
	Generate(ctx context.Context, req GenerateRequest) (TextStream, error)
}

// TextStream is a pull-based iterator over text deltas. Next returns io.EOF
// when generation finishes normally. Cancellation flows through the context
// passed to Backend.Generate.
type TextStream interface {
	Next() (string, error)
	Close() error
}

// GenerateRequest is what one backend receives for one channel.
type GenerateRequest struct {
	Model        string // provider model ID; empty = backend default
	Prompt       string
	SystemPrompt string
	MaxTokens    int // 0 = backend default
}

// Request is a fan-out request: one prompt, many models. Models may contain
// glob patterns that the server resolves against its registered backends.
type Request struct {
	Prompt       string
	SystemPrompt string
	Models       []string
	MaxTokens    int
}

// Validate checks universal constraints on Request.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("prompt must not be empty: %w", ErrValidation)
	}
	if len(r.Models) == 0 {
		return fmt.Errorf("at least one model is required: %w", ErrValidation)
	}
	for i, m := range r.Models {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("model %d is empty: %w", i, ErrValidation)
		}
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got %d: %w", r.MaxTokens, ErrValidation)
	}
	return nil
}
