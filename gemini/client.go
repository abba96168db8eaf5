package gemini

import (
	"context"
	"fmt"

	"github.com/fwojciec/chorus"
	"google.golang.org/genai"
)

// Interface compliance check.
var _ chorus.Backend = (*Client)(nil)

// Client implements [chorus.Backend] for the Google Gemini API.
type Client struct {
	client  *genai.Client
	model   string
	baseURL string
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the model ID used when a request names none. Default is
// gemini-2.5-pro.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// New creates a new Gemini [Client] with the given API key and options.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	c := &Client{model: defaultModel}
	for _, o := range opts {
		o(c)
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: c.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	c.client = gc
	return c, nil
}

// Generate starts a streaming generation and returns a [chorus.TextStream]
// of text deltas. Request errors surface from the first call to Next.
func (c *Client) Generate(ctx context.Context, req chorus.GenerateRequest) (chorus.TextStream, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	seq := c.client.Models.GenerateContentStream(ctx, model, contents, BuildConfig(req))
	return NewStreamFromIter(ctx, seq), nil
}

// BuildConfig converts a request into the SDK generation config.
// Exported for testing.
func BuildConfig(req chorus.GenerateRequest) *genai.GenerateContentConfig {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	return config
}
