// Package sse implements the chorus wire format: server-sent-event style
// messages separated by a blank line, each carrying one JSON frame on its
// data lines.
//
//	event: chunk
//	data: {"kind":"chunk","channel":"claude-sonnet","text":"Hel"}
//
// The event line is optional; when present it names the kind for payloads
// that omit one. Lines starting with ':' are comments.
package sse

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fwojciec/chorus"
)

// payload is the JSON body of one frame.
type payload struct {
	Kind     string       `json:"kind,omitempty"`
	Channel  string       `json:"channel,omitempty"`
	Text     string       `json:"text,omitempty"`
	Error    string       `json:"error,omitempty"`
	Failed   bool         `json:"failed,omitempty"`
	Metadata *metadataDTO `json:"metadata,omitempty"`
}

type metadataDTO struct {
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	DurationMS int64             `json:"duration_ms"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// decode turns one message's event name and data into a frame.
func decode(event, data string) (chorus.Frame, error) {
	var p payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return chorus.Frame{}, fmt.Errorf("decode payload: %w", err)
	}
	kind := chorus.FrameKind(p.Kind)
	if kind == "" {
		kind = chorus.FrameKind(event)
	}
	if !kind.Valid() {
		return chorus.Frame{}, fmt.Errorf("unknown frame kind %q", kind)
	}
	if kind.ChannelScoped() && p.Channel == "" {
		return chorus.Frame{}, fmt.Errorf("%s frame without channel", kind)
	}
	f := chorus.Frame{
		Kind:    kind,
		Channel: p.Channel,
		Text:    p.Text,
		Error:   p.Error,
		Failed:  p.Failed,
	}
	if p.Metadata != nil {
		f.Metadata = &chorus.Metadata{
			Succeeded: p.Metadata.Succeeded,
			Failed:    p.Metadata.Failed,
			Duration:  time.Duration(p.Metadata.DurationMS) * time.Millisecond,
			Extra:     p.Metadata.Extra,
		}
	}
	return f, nil
}

// encode renders one frame as a complete wire message, delimiter included.
func encode(f chorus.Frame) ([]byte, error) {
	if !f.Kind.Valid() {
		return nil, fmt.Errorf("unknown frame kind %q", f.Kind)
	}
	if f.Kind.ChannelScoped() && f.Channel == "" {
		return nil, fmt.Errorf("%s frame without channel", f.Kind)
	}
	p := payload{
		Kind:    string(f.Kind),
		Channel: f.Channel,
		Text:    f.Text,
		Error:   f.Error,
		Failed:  f.Failed,
	}
	if m := f.Metadata; m != nil {
		p.Metadata = &metadataDTO{
			Succeeded:  m.Succeeded,
			Failed:     m.Failed,
			DurationMS: m.Duration.Milliseconds(),
			Extra:      m.Extra,
		}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	// JSON never contains a raw newline, so one data line always suffices.
	msg := make([]byte, 0, len(data)+len(f.Kind)+16)
	msg = append(msg, "event: "...)
	msg = append(msg, string(f.Kind)...)
	msg = append(msg, "\ndata: "...)
	msg = append(msg, data...)
	msg = append(msg, "\n\n"...)
	return msg, nil
}
