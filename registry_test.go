package chorus_test

import (
	"testing"
	"time"

	"github.com/fwojciec/chorus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func chunk(ch, text string) chorus.Frame {
	return chorus.Frame{Kind: chorus.FrameChunk, Channel: ch, Text: text}
}

func done(ch string) chorus.Frame {
	return chorus.Frame{Kind: chorus.FrameDone, Channel: ch}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	t.Run("requested channels start idle in order", func(t *testing.T) {
		t.Parallel()
		r := chorus.NewRegistry([]string{"b", "a", "b"})
		assert.Equal(t, []string{"b", "a"}, r.IDs())
		for _, c := range r.Snapshot() {
			assert.Equal(t, chorus.StatusIdle, c.Status)
		}
		assert.False(t, r.AllTerminal())
	})

	t.Run("chunk starts and appends", func(t *testing.T) {
		t.Parallel()
		r := chorus.NewRegistry([]string{"a"})
		d := r.Apply(chunk("a", "Hel"), t0)
		assert.Equal(t, chorus.StatusIdle, d.From)
		assert.Equal(t, chorus.StatusStreaming, d.To)
		assert.True(t, d.Transitioned())
		assert.Equal(t, 3, d.Appended)

		r.Apply(chunk("a", "lo"), t0.Add(time.Second))
		c, ok := r.Get("a")
		require.True(t, ok)
		assert.Equal(t, "Hello", c.Text)
		assert.Equal(t, t0, c.StartedAt)
		assert.Equal(t, t0.Add(time.Second), c.LastActivityAt)
		assert.Equal(t, 2, c.Frames)
	})

	t.Run("start then keepalive stays streaming", func(t *testing.T) {
		t.Parallel()
		r := chorus.NewRegistry([]string{"a"})
		r.Apply(chorus.Frame{Kind: chorus.FrameStart, Channel: "a"}, t0)
		d := r.Apply(chorus.Frame{Kind: chorus.FrameKeepalive, Channel: "a"}, t0.Add(time.Second))
		assert.Equal(t, chorus.StatusStreaming, d.To)
		assert.False(t, d.Transitioned())
	})

	t.Run("done with content succeeds", func(t *testing.T) {
		t.Parallel()
		r := chorus.NewRegistry([]string{"a"})
		r.Apply(chunk("a", "x"), t0)
		d := r.Apply(done("a"), t0.Add(time.Second))
		assert.Equal(t, chorus.StatusDone, d.To)
		c, _ := r.Get("a")
		assert.Equal(t, t0.Add(time.Second), c.CompletedAt)
		assert.True(t, r.AllTerminal())
	})

	t.Run("done with blank content fails", func(t *testing.T) {
		t.Parallel()
		r := chorus.NewRegistry([]string{"a"})
		r.Apply(chunk("a", "  \n"), t0)
		r.Apply(done("a"), t0)
		c, _ := r.Get("a")
		assert.Equal(t, chorus.StatusFailed, c.Status)
		assert.Equal(t, "empty response", c.Error)
	})

	t.Run("done with blank content succeeds when policy disabled", func(t *testing.T) {
		t.Parallel()
		r := chorus.NewRegistry([]string{"a"}, chorus.EmptyAsFailure(false))
		r.Apply(done("a"), t0)
		c, _ := r.Get("a")
		assert.Equal(t, chorus.StatusDone, c.Status)
	})

	t.Run("done with error fails with message", func(t *testing.T) {
		t.Parallel()
		r := chorus.NewRegistry([]string{"a"})
		r.Apply(chunk("a", "partial"), t0)
		r.Apply(chorus.Frame{Kind: chorus.FrameDone, Channel: "a", Error: "overloaded", Failed: true}, t0)
		c, _ := r.Get("a")
		assert.Equal(t, chorus.StatusFailed, c.Status)
		assert.True(t, c.Failed)
		assert.Equal(t, "overloaded", c.Error)
		assert.Equal(t, "partial", c.Text)
	})

	t.Run("failed flag without message uses fallback", func(t *testing.T) {
		t.Parallel()
		r := chorus.NewRegistry([]string{"a"})
		r.Apply(chunk("a", "x"), t0)
		r.Apply(chorus.Frame{Kind: chorus.FrameDone, Channel: "a", Failed: true}, t0)
		c, _ := r.Get("a")
		assert.Equal(t, "backend reported failure", c.Error)
	})

	t.Run("unknown channel is added lazily", func(t *testing.T) {
		t.Parallel()
		r := chorus.NewRegistry([]string{"a"})
		r.Apply(chunk("z", "x"), t0)
		assert.Equal(t, []string{"a", "z"}, r.IDs())
	})

	t.Run("session scoped frames are ignored", func(t *testing.T) {
		t.Parallel()
		r := chorus.NewRegistry(nil)
		d := r.Apply(chorus.Frame{Kind: chorus.FrameComplete}, t0)
		assert.True(t, d.Ignored)
		assert.Empty(t, r.IDs())
	})

	t.Run("buffer cap truncates on rune boundary", func(t *testing.T) {
		t.Parallel()
		r := chorus.NewRegistry([]string{"a"}, chorus.MaxBufferBytes(5))
		r.Apply(chunk("a", "abc"), t0)
		d := r.Apply(chunk("a", "дa"), t0)
		assert.Equal(t, 2, d.Appended)
		r.Apply(chunk("a", "д"), t0)
		c, _ := r.Get("a")
		assert.Equal(t, "abcд", c.Text)
		assert.True(t, c.Truncated)
	})

	t.Run("fail pending leaves terminal channels alone", func(t *testing.T) {
		t.Parallel()
		r := chorus.NewRegistry([]string{"a", "b", "c"})
		r.Apply(chunk("a", "x"), t0)
		r.Apply(done("a"), t0)
		r.Apply(chunk("b", "y"), t0)
		ids := r.FailPending(chorus.ReasonTimedOut, t0.Add(time.Minute))
		assert.Equal(t, []string{"b", "c"}, ids)
		a, _ := r.Get("a")
		b, _ := r.Get("b")
		assert.Equal(t, chorus.StatusDone, a.Status)
		assert.Equal(t, chorus.StatusFailed, b.Status)
		assert.Equal(t, chorus.ReasonTimedOut, b.Error)
		assert.Empty(t, r.Pending())
	})

	t.Run("snapshot does not alias buffer", func(t *testing.T) {
		t.Parallel()
		r := chorus.NewRegistry([]string{"a"})
		r.Apply(chunk("a", "one"), t0)
		snap := r.Snapshot()
		r.Apply(chunk("a", "two"), t0)
		assert.Equal(t, "one", snap[0].Text)
	})
}

func TestRegistryTerminalIdempotenceProperty(t *testing.T) {
	t.Parallel()
	kinds := []chorus.FrameKind{
		chorus.FrameStart, chorus.FrameChunk, chorus.FrameKeepalive, chorus.FrameDone,
	}
	rapid.Check(t, func(t *rapid.T) {
		r := chorus.NewRegistry([]string{"a"})
		r.Apply(chunk("a", rapid.String().Draw(t, "prefix")), t0)
		r.Apply(chorus.Frame{
			Kind:    chorus.FrameDone,
			Channel: "a",
			Failed:  rapid.Bool().Draw(t, "failed"),
		}, t0.Add(time.Second))
		before, _ := r.Get("a")

		n := rapid.IntRange(1, 50).Draw(t, "n")
		for i := range n {
			f := chorus.Frame{
				Kind:    rapid.SampledFrom(kinds).Draw(t, "kind"),
				Channel: "a",
				Text:    rapid.String().Draw(t, "text"),
				Failed:  rapid.Bool().Draw(t, "late_failed"),
			}
			d := r.Apply(f, t0.Add(time.Duration(i+2)*time.Second))
			if !d.Ignored {
				t.Fatalf("frame %d on terminal channel not ignored", i)
			}
		}

		after, _ := r.Get("a")
		if after.Text != before.Text || after.Status != before.Status || !after.CompletedAt.Equal(before.CompletedAt) {
			t.Fatalf("terminal channel changed: before %+v, after %+v", before, after)
		}
	})
}
