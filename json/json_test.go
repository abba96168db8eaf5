package json_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fwojciec/chorus"
	chorusjson "github.com/fwojciec/chorus/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)

func sampleResult() chorus.SessionResult {
	return chorus.SessionResult{
		SessionID: "sess-123",
		Outcome:   chorus.OutcomeCompleted,
		Reason:    "all channels terminal",
		Channels: []chorus.ChannelResult{
			{
				ChannelSnapshot: chorus.ChannelSnapshot{
					ID:             "claude",
					Status:         chorus.StatusDone,
					Text:           "Hello there",
					StartedAt:      t0.Add(100 * time.Millisecond),
					LastActivityAt: t0.Add(900 * time.Millisecond),
					CompletedAt:    t0.Add(time.Second),
					Frames:         4,
				},
				Verdict: chorus.VerdictSucceeded,
			},
			{
				ChannelSnapshot: chorus.ChannelSnapshot{
					ID:     "gemini",
					Status: chorus.StatusFailed,
					Failed: true,
					Error:  "never started",
				},
				Verdict: chorus.VerdictNotStarted,
			},
		},
		Succeeded:  []string{"claude"},
		Failed:     []string{"gemini"},
		NotStarted: []string{"gemini"},
		Metadata: &chorus.Metadata{
			Succeeded: 1,
			Failed:    1,
			Duration:  1500 * time.Millisecond,
			Extra:     map[string]string{"region": "eu"},
		},
		StartedAt:  t0,
		FinishedAt: t0.Add(2 * time.Second),
	}
}

func TestMarshalResult_RoundTrip(t *testing.T) {
	t.Parallel()

	want := sampleResult()
	data, err := chorusjson.MarshalResult(want)
	require.NoError(t, err)

	got, err := chorusjson.UnmarshalResult(data)
	require.NoError(t, err)

	assert.Equal(t, want.SessionID, got.SessionID)
	assert.Equal(t, want.Outcome, got.Outcome)
	assert.Equal(t, want.Reason, got.Reason)
	assert.Equal(t, want.Succeeded, got.Succeeded)
	assert.Equal(t, want.Failed, got.Failed)
	assert.Equal(t, want.NotStarted, got.NotStarted)
	assert.Empty(t, got.Interrupted)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
	assert.True(t, want.FinishedAt.Equal(got.FinishedAt))
	assert.NoError(t, got.Err)

	require.Len(t, got.Channels, 2)
	claude := got.Channels[0]
	assert.Equal(t, "claude", claude.ID)
	assert.Equal(t, chorus.StatusDone, claude.Status)
	assert.Equal(t, chorus.VerdictSucceeded, claude.Verdict)
	assert.Equal(t, "Hello there", claude.Text)
	assert.True(t, want.Channels[0].StartedAt.Equal(claude.StartedAt))
	assert.True(t, want.Channels[0].CompletedAt.Equal(claude.CompletedAt))
	assert.Equal(t, 4, claude.Frames)

	gemini := got.Channels[1]
	assert.Equal(t, chorus.StatusFailed, gemini.Status)
	assert.Equal(t, chorus.VerdictNotStarted, gemini.Verdict)
	assert.True(t, gemini.StartedAt.IsZero(), "zero start time must survive")
	assert.True(t, gemini.Failed)
	assert.Equal(t, "never started", gemini.Error)

	require.NotNil(t, got.Metadata)
	assert.Equal(t, *want.Metadata, *got.Metadata)
}

func TestMarshalResult_V1Envelope(t *testing.T) {
	t.Parallel()

	data, err := chorusjson.MarshalResult(sampleResult())
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))

	var version int
	require.NoError(t, json.Unmarshal(raw["version"], &version))
	assert.Equal(t, 1, version)

	var outcome string
	require.NoError(t, json.Unmarshal(raw["outcome"], &outcome))
	assert.Equal(t, "completed", outcome)

	var duration int64
	require.NoError(t, json.Unmarshal(raw["duration_ms"], &duration))
	assert.Equal(t, int64(2000), duration)

	var billable []string
	require.NoError(t, json.Unmarshal(raw["billable"], &billable))
	assert.Equal(t, []string{"claude"}, billable)

	for _, key := range []string{"session_id", "started_at", "finished_at", "channels", "succeeded", "failed", "not_started", "metadata"} {
		assert.Contains(t, raw, key)
	}
	assert.NotContains(t, raw, "interrupted")
	assert.NotContains(t, raw, "error")
}

func TestMarshalResult_ChannelFieldNames(t *testing.T) {
	t.Parallel()

	data, err := chorusjson.MarshalResult(sampleResult())
	require.NoError(t, err)

	var raw struct {
		Channels []map[string]json.RawMessage `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw.Channels, 2)

	done := raw.Channels[0]
	for _, key := range []string{"id", "status", "verdict", "text", "started_at", "last_activity_at", "completed_at", "frames"} {
		assert.Contains(t, done, key)
	}
	assert.NotContains(t, done, "error")

	idle := raw.Channels[1]
	assert.NotContains(t, idle, "started_at")
	assert.Contains(t, idle, "error")
}

func TestMarshalResult_EmptyListsAreArrays(t *testing.T) {
	t.Parallel()

	data, err := chorusjson.MarshalResult(chorus.SessionResult{
		SessionID:  "empty",
		Outcome:    chorus.OutcomeTimedOut,
		StartedAt:  t0,
		FinishedAt: t0,
	})
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `[]`, string(raw["succeeded"]))
	assert.JSONEq(t, `[]`, string(raw["failed"]))
	assert.JSONEq(t, `[]`, string(raw["billable"]))
	assert.JSONEq(t, `[]`, string(raw["channels"]))
	assert.NotContains(t, raw, "metadata")
}

func TestMarshalResult_Error(t *testing.T) {
	t.Parallel()

	r := sampleResult()
	r.Outcome = chorus.OutcomeTransportError
	r.Err = errors.New("connection reset")

	data, err := chorusjson.MarshalResult(r)
	require.NoError(t, err)

	got, err := chorusjson.UnmarshalResult(data)
	require.NoError(t, err)
	assert.Equal(t, chorus.OutcomeTransportError, got.Outcome)
	require.Error(t, got.Err)
	assert.Equal(t, "connection reset", got.Err.Error())
}

func TestMarshalResult_Interrupted(t *testing.T) {
	t.Parallel()

	r := sampleResult()
	r.Outcome = chorus.OutcomeCancelled
	r.Interrupted = []string{"claude"}

	data, err := chorusjson.MarshalResult(r)
	require.NoError(t, err)

	got, err := chorusjson.UnmarshalResult(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"claude"}, got.Interrupted)
}

func TestSave_And_Load(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "result.json")

	require.NoError(t, chorusjson.Save(path, sampleResult()))

	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	got, err := chorusjson.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sess-123", got.SessionID)
	require.Len(t, got.Channels, 2)
}

func TestLoad_NonexistentFile(t *testing.T) {
	t.Parallel()
	_, err := chorusjson.Load("/nonexistent/path/result.json")
	assert.Error(t, err)
}

func TestSave_CreatesParentDirectories(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "deep", "result.json")

	require.NoError(t, chorusjson.Save(path, sampleResult()))

	got, err := chorusjson.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sess-123", got.SessionID)
}

func TestUnmarshalResult_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "unsupported version",
			data:    `{"version": 99, "outcome": "completed"}`,
			wantErr: "unsupported envelope version",
		},
		{
			name:    "unknown outcome",
			data:    `{"version": 1, "outcome": "exploded"}`,
			wantErr: "unknown outcome",
		},
		{
			name:    "unknown status",
			data:    `{"version": 1, "outcome": "completed", "channels": [{"id": "a", "status": "weird", "verdict": "failed"}]}`,
			wantErr: "unknown status",
		},
		{
			name:    "unknown verdict",
			data:    `{"version": 1, "outcome": "completed", "channels": [{"id": "a", "status": "done", "verdict": "maybe"}]}`,
			wantErr: "unknown verdict",
		},
		{
			name:    "not json",
			data:    `{`,
			wantErr: "unmarshal envelope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := chorusjson.UnmarshalResult([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
