package chorus_test

import (
	"testing"

	"github.com/fwojciec/chorus"
	"github.com/stretchr/testify/assert"
)

func TestDefaultTheme(t *testing.T) {
	t.Parallel()

	theme := chorus.DefaultTheme()

	assert.Equal(t, 4, theme.Prompt)
	assert.Equal(t, 1, theme.Error)
	assert.Equal(t, 3, theme.Streaming)
	assert.Equal(t, 8, theme.Idle)
	assert.Equal(t, 2, theme.Success)
	assert.Equal(t, 8, theme.Muted)
	assert.Equal(t, 0, theme.CodeBg)
	assert.Equal(t, 5, theme.Accent)
}

func TestTheme_StatusColor(t *testing.T) {
	t.Parallel()

	theme := chorus.DefaultTheme()

	assert.Equal(t, theme.Idle, theme.StatusColor(chorus.StatusIdle))
	assert.Equal(t, theme.Streaming, theme.StatusColor(chorus.StatusStreaming))
	assert.Equal(t, theme.Success, theme.StatusColor(chorus.StatusDone))
	assert.Equal(t, theme.Error, theme.StatusColor(chorus.StatusFailed))
}
