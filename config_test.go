package chorus_test

import (
	"testing"

	"github.com/fwojciec/chorus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	t.Parallel()

	cfg := chorus.DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, chorus.DefaultWindow, cfg.Client.Window)
	assert.Equal(t, chorus.DefaultFlushInterval, cfg.Client.FlushInterval)
	assert.True(t, cfg.Client.EmptyAsFailure)
	assert.Equal(t, []string{"claude-sonnet", "gemini-pro"}, cfg.BackendNames())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*chorus.Config)
	}{
		{"zero keepalive", func(c *chorus.Config) { c.Server.Keepalive = 0 }},
		{"zero max duration", func(c *chorus.Config) { c.Server.MaxDuration = 0 }},
		{"zero window", func(c *chorus.Config) { c.Client.Window = 0 }},
		{"negative flush interval", func(c *chorus.Config) { c.Client.FlushInterval = -1 }},
		{"negative buffer cap", func(c *chorus.Config) { c.Client.MaxBufferBytes = -1 }},
		{"unknown log format", func(c *chorus.Config) { c.Logging.Format = "xml" }},
		{"unnamed backend", func(c *chorus.Config) { c.Backends[0].Name = "" }},
		{"duplicate backend", func(c *chorus.Config) { c.Backends[1].Name = c.Backends[0].Name }},
		{"unknown provider", func(c *chorus.Config) { c.Backends[0].Provider = "openai" }},
		{"negative max tokens", func(c *chorus.Config) { c.Backends[0].MaxTokens = -5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := chorus.DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), chorus.ErrValidation)
		})
	}
}
