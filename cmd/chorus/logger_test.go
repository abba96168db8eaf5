package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fwojciec/chorus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	t.Run("interactive without file is silent", func(t *testing.T) {
		t.Parallel()
		log, err := newLogger(chorus.LoggingConfig{Level: "debug", Format: "production"}, true)
		require.NoError(t, err)
		assert.False(t, log.Core().Enabled(zap.ErrorLevel))
	})

	t.Run("writes JSON to file at level", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "chorus.log")
		log, err := newLogger(chorus.LoggingConfig{Level: "warn", Format: "production", File: path}, true)
		require.NoError(t, err)

		log.Info("hidden")
		log.Warn("shown", zap.String("session_id", "s1"))
		require.NoError(t, log.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "hidden")
		assert.Contains(t, string(data), `"msg":"shown"`)
		assert.Contains(t, string(data), `"session_id":"s1"`)
		assert.Contains(t, string(data), `"timestamp"`)
	})

	t.Run("development format", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "chorus.log")
		log, err := newLogger(chorus.LoggingConfig{Level: "debug", Format: "development", File: path}, false)
		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(zap.DebugLevel))
	})

	t.Run("invalid level", func(t *testing.T) {
		t.Parallel()
		_, err := newLogger(chorus.LoggingConfig{Level: "loud", Format: "production"}, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logging")
	})
}
