// Package gemini implements [chorus.Backend] for the Google Gemini API.
//
// It wraps the google.golang.org/genai SDK. Streaming uses the SDK's
// iter.Seq2 iterator, wrapped into the pull-based [chorus.TextStream]
// interface. Thought parts and function calls are skipped.
package gemini

const (
	defaultModel     = "gemini-2.5-pro"
	defaultMaxTokens = 65536
)
