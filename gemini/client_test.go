package gemini_test

import (
	"testing"

	"github.com/fwojciec/chorus"
	"github.com/fwojciec/chorus/gemini"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults max tokens", func(t *testing.T) {
		t.Parallel()
		cfg := gemini.BuildConfig(chorus.GenerateRequest{Prompt: "Hi"})
		assert.Equal(t, int32(65536), cfg.MaxOutputTokens)
		assert.Nil(t, cfg.SystemInstruction)
	})

	t.Run("sets system instruction", func(t *testing.T) {
		t.Parallel()
		cfg := gemini.BuildConfig(chorus.GenerateRequest{
			Prompt:       "Hi",
			SystemPrompt: "Be brief.",
			MaxTokens:    256,
		})
		assert.Equal(t, int32(256), cfg.MaxOutputTokens)
		require.NotNil(t, cfg.SystemInstruction)
		require.Len(t, cfg.SystemInstruction.Parts, 1)
		assert.Equal(t, "Be brief.", cfg.SystemInstruction.Parts[0].Text)
	})
}
