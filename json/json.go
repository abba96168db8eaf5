// Package json encodes session results as a versioned JSON envelope.
//
// The envelope is the machine-readable output of a session. Domain types in
// the root package carry no struct tags; this package maps them to DTOs.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/chorus"
)

const envelopeVersion = 1

// envelope is the v1 wire format for a session result.
type envelope struct {
	Version     int          `json:"version"`
	SessionID   string       `json:"session_id"`
	Outcome     string       `json:"outcome"`
	Reason      string       `json:"reason,omitempty"`
	Error       string       `json:"error,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	DurationMS  int64        `json:"duration_ms"`
	Channels    []channelDTO `json:"channels"`
	Succeeded   []string     `json:"succeeded"`
	Failed      []string     `json:"failed"`
	NotStarted  []string     `json:"not_started"`
	Interrupted []string     `json:"interrupted,omitempty"`
	Billable    []string     `json:"billable"`
	Metadata    *metadataDTO `json:"metadata,omitempty"`
}

// MarshalResult serializes a SessionResult in v1 envelope format.
func MarshalResult(r chorus.SessionResult) ([]byte, error) {
	env := envelope{
		Version:     envelopeVersion,
		SessionID:   r.SessionID,
		Outcome:     r.Outcome.String(),
		Reason:      r.Reason,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		DurationMS:  r.Duration().Milliseconds(),
		Channels:    make([]channelDTO, len(r.Channels)),
		Succeeded:   nonNil(r.Succeeded),
		Failed:      nonNil(r.Failed),
		NotStarted:  nonNil(r.NotStarted),
		Interrupted: r.Interrupted,
		Billable:    nonNil(r.Billable()),
		Metadata:    marshalMetadata(r.Metadata),
	}
	if r.Err != nil {
		env.Error = r.Err.Error()
	}
	for i, c := range r.Channels {
		env.Channels[i] = marshalChannel(c)
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalResult deserializes a SessionResult from v1 envelope format. A
// recorded error comes back as an opaque error carrying the same message.
func UnmarshalResult(data []byte) (chorus.SessionResult, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return chorus.SessionResult{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return chorus.SessionResult{}, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	outcome, ok := chorus.ParseOutcome(env.Outcome)
	if !ok {
		return chorus.SessionResult{}, fmt.Errorf("unknown outcome: %q", env.Outcome)
	}
	channels := make([]chorus.ChannelResult, len(env.Channels))
	for i, dto := range env.Channels {
		c, err := unmarshalChannel(dto)
		if err != nil {
			return chorus.SessionResult{}, fmt.Errorf("channel %d: %w", i, err)
		}
		channels[i] = c
	}
	r := chorus.SessionResult{
		SessionID:   env.SessionID,
		Outcome:     outcome,
		Reason:      env.Reason,
		Channels:    channels,
		Succeeded:   env.Succeeded,
		Failed:      env.Failed,
		NotStarted:  env.NotStarted,
		Interrupted: env.Interrupted,
		Metadata:    unmarshalMetadata(env.Metadata),
		StartedAt:   env.StartedAt,
		FinishedAt:  env.FinishedAt,
	}
	if env.Error != "" {
		r.Err = errors.New(env.Error)
	}
	return r, nil
}

// Save writes a SessionResult to a JSON file, creating parent directories as
// needed.
func Save(path string, r chorus.SessionResult) error {
	data, err := MarshalResult(r)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads a SessionResult from a JSON file.
func Load(path string) (chorus.SessionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return chorus.SessionResult{}, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalResult(data)
}

// nonNil keeps empty id lists as [] rather than null in the output.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
