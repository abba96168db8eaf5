// Package http carries chorus sessions over HTTP.
//
// Server fans one prompt out to many backends and streams their output as a
// single multiplexed event stream. Client opens that stream and serves as a
// [chorus.Transport].
package http

import (
	"encoding/json"
	"net/http"

	"github.com/fwojciec/chorus"
)

const (
	generatePath = "/v1/generate"
	modelsPath   = "/v1/models"
	healthPath   = "/healthz"
	metricsPath  = "/metrics"

	maxRequestBytes = 1 << 20
)

// generateRequest is the JSON body of POST /v1/generate.
type generateRequest struct {
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Models       []string `json:"models"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
}

func toRequestDTO(r chorus.Request) generateRequest {
	return generateRequest{
		Prompt:       r.Prompt,
		SystemPrompt: r.SystemPrompt,
		Models:       r.Models,
		MaxTokens:    r.MaxTokens,
	}
}

func (r generateRequest) toDomain() chorus.Request {
	return chorus.Request{
		Prompt:       r.Prompt,
		SystemPrompt: r.SystemPrompt,
		Models:       r.Models,
		MaxTokens:    r.MaxTokens,
	}
}

type modelsResponse struct {
	Models []string `json:"models"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Backends int    `json:"backends"`
}

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes shared by server and client.
const (
	codeInvalidRequest = "invalid_request"
	codeUnknownModel   = "unknown_model"
	codeInternal       = "internal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: msg}})
}
