package sse

import (
	"io"
	"strings"
	"sync"

	"github.com/fwojciec/chorus"
)

type flusher interface {
	Flush()
}

// Writer encodes frames onto an io.Writer. It is safe for concurrent use:
// each frame is written as one unit and never interleaves with another.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
	f  flusher
}

// NewWriter creates a Writer. When w implements Flush (as
// http.ResponseWriter does), every frame is flushed after it is written.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(flusher); ok {
		sw.f = f
	}
	return sw
}

// Write encodes and writes one frame.
func (w *Writer) Write(f chorus.Frame) error {
	msg, err := encode(f)
	if err != nil {
		return err
	}
	return w.write(msg)
}

func (w *Writer) Start(channel string) error {
	return w.Write(chorus.Frame{Kind: chorus.FrameStart, Channel: channel})
}

func (w *Writer) Chunk(channel, text string) error {
	return w.Write(chorus.Frame{Kind: chorus.FrameChunk, Channel: channel, Text: text})
}

func (w *Writer) Keepalive(channel string) error {
	return w.Write(chorus.Frame{Kind: chorus.FrameKeepalive, Channel: channel})
}

// Done marks channel finished. A non-empty errMsg marks it failed.
func (w *Writer) Done(channel, errMsg string) error {
	return w.Write(chorus.Frame{
		Kind:    chorus.FrameDone,
		Channel: channel,
		Error:   errMsg,
		Failed:  errMsg != "",
	})
}

func (w *Writer) Complete(m chorus.Metadata) error {
	return w.Write(chorus.Frame{Kind: chorus.FrameComplete, Metadata: &m})
}

func (w *Writer) Error(msg string) error {
	return w.Write(chorus.Frame{Kind: chorus.FrameError, Error: msg})
}

// Comment writes a comment line, which readers skip. It keeps idle
// connections open through proxies without counting as channel activity.
func (w *Writer) Comment(text string) error {
	text = strings.NewReplacer("\r", " ", "\n", " ").Replace(text)
	return w.write([]byte(": " + text + "\n\n"))
}

func (w *Writer) write(msg []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(msg); err != nil {
		return err
	}
	if w.f != nil {
		w.f.Flush()
	}
	return nil
}
