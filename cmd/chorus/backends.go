package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fwojciec/chorus"
	"github.com/fwojciec/chorus/anthropic"
	"github.com/fwojciec/chorus/gemini"
	chorushttp "github.com/fwojciec/chorus/http"
	"github.com/fwojciec/chorus/toml"
	"go.uber.org/zap"
)

// buildRoutes constructs one server route per configured backend. Backends
// without an API key are skipped with a warning; it is an error when none
// remain.
func buildRoutes(ctx context.Context, backends []chorus.BackendConfig, log *zap.Logger) ([]chorushttp.Route, error) {
	routes := make([]chorushttp.Route, 0, len(backends))
	for _, b := range backends {
		if b.APIKey == "" {
			log.Warn("skipping backend without API key",
				zap.String("backend", b.Name),
				zap.String("env", keyEnv(b.Provider)))
			continue
		}
		backend, err := newBackend(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("backend %q: %w", b.Name, err)
		}
		routes = append(routes, chorushttp.Route{
			Name:      b.Name,
			Backend:   backend,
			Model:     b.Model,
			MaxTokens: b.MaxTokens,
		})
	}
	if len(routes) == 0 {
		return nil, errors.New("no usable backends: set " + toml.EnvAnthropicAPIKey + " or " + toml.EnvGeminiAPIKey + ", or api_key in the config file")
	}
	return routes, nil
}

func newBackend(ctx context.Context, b chorus.BackendConfig) (chorus.Backend, error) {
	switch b.Provider {
	case chorus.ProviderAnthropic:
		var opts []anthropic.Option
		if b.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(b.BaseURL))
		}
		return anthropic.New(b.APIKey, opts...), nil
	case chorus.ProviderGemini:
		opts := []gemini.Option{gemini.WithModel(b.Model)}
		if b.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(b.BaseURL))
		}
		return gemini.New(ctx, b.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown provider %q: %w", b.Provider, chorus.ErrValidation)
	}
}

func keyEnv(provider string) string {
	if provider == chorus.ProviderGemini {
		return toml.EnvGeminiAPIKey
	}
	return toml.EnvAnthropicAPIKey
}
