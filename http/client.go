package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fwojciec/chorus"
)

// Client talks to a chorus fan-out server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. It must not impose an overall
// timeout, since event streams stay open for the whole session.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Transport returns a [chorus.Transport] that opens a fan-out stream for req.
func (c *Client) Transport(req chorus.Request) chorus.Transport {
	return chorus.TransportFunc(func(ctx context.Context) (io.ReadCloser, error) {
		return c.open(ctx, req)
	})
}

func (c *Client) open(ctx context.Context, req chorus.Request) (io.ReadCloser, error) {
	body, err := json.Marshal(toRequestDTO(req))
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}
	return resp.Body, nil
}

// Models lists the route names the server serves.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+modelsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp)
	}
	var out modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("http: decode models: %w", err)
	}
	return out.Models, nil
}

// parseHTTPError maps a non-200 response to an error. Known error codes wrap
// the matching chorus sentinel.
func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestBytes))
	if err != nil {
		return fmt.Errorf("http: HTTP %d (failed to read body: %w)", resp.StatusCode, err)
	}
	var apiErr errorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error.Code == "" {
		return fmt.Errorf("http: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	switch apiErr.Error.Code {
	case codeInvalidRequest:
		return fmt.Errorf("http: %s: %w", apiErr.Error.Message, chorus.ErrValidation)
	case codeUnknownModel:
		return fmt.Errorf("http: %s: %w", apiErr.Error.Message, chorus.ErrUnknownModel)
	default:
		return fmt.Errorf("http: HTTP %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
}
