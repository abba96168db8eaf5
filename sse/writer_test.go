package sse_test

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fwojciec/chorus"
	"github.com/fwojciec/chorus/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes event and data lines", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		w := sse.NewWriter(&buf)
		require.NoError(t, w.Chunk("a", "Hi"))
		assert.Equal(t, "event: chunk\ndata: {\"kind\":\"chunk\",\"channel\":\"a\",\"text\":\"Hi\"}\n\n", buf.String())
	})

	t.Run("done with error marks failure", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		w := sse.NewWriter(&buf)
		require.NoError(t, w.Done("a", "rate limited"))
		frames := sse.NewParser().Feed(buf.Bytes())
		require.Len(t, frames, 1)
		assert.True(t, frames[0].Failed)
		assert.Equal(t, "rate limited", frames[0].Error)
	})

	t.Run("rejects channel frame without channel", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		w := sse.NewWriter(&buf)
		assert.Error(t, w.Start(""))
		assert.Zero(t, buf.Len())
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		w := sse.NewWriter(&buf)
		assert.Error(t, w.Write(chorus.Frame{Kind: "bogus"}))
	})

	t.Run("comment is skipped by parser", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		w := sse.NewWriter(&buf)
		require.NoError(t, w.Comment("ping\n\ndata: {\"kind\":\"start\",\"channel\":\"x\"}"))
		require.NoError(t, w.Keepalive("a"))
		frames := sse.NewParser().Feed(buf.Bytes())
		require.Len(t, frames, 1)
		assert.Equal(t, chorus.FrameKeepalive, frames[0].Kind)
	})

	t.Run("flushes http responses", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		w := sse.NewWriter(rec)
		require.NoError(t, w.Error("boom"))
		assert.True(t, rec.Flushed)
		assert.Contains(t, rec.Body.String(), "event: error\n")
	})

	t.Run("concurrent writes never interleave", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		w := sse.NewWriter(&buf)
		var wg sync.WaitGroup
		for _, ch := range []string{"a", "b", "c", "d"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 50 {
					assert.NoError(t, w.Chunk(ch, strings.Repeat(ch, 100)))
				}
			}()
		}
		wg.Wait()
		frames := sse.NewParser().Feed(buf.Bytes())
		assert.Len(t, frames, 200)
		for _, f := range frames {
			assert.Equal(t, strings.Repeat(f.Channel, 100), f.Text)
		}
	})

	t.Run("complete round-trips metadata", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		w := sse.NewWriter(&buf)
		require.NoError(t, w.Complete(chorus.Metadata{Succeeded: 3}))
		frames := sse.NewParser().Feed(buf.Bytes())
		require.Len(t, frames, 1)
		require.NotNil(t, frames[0].Metadata)
		assert.Equal(t, 3, frames[0].Metadata.Succeeded)
	})
}
