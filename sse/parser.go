package sse

import (
	"bytes"
	"errors"
	"strings"

	"github.com/fwojciec/chorus"
)

// Interface compliance check.
var _ chorus.FrameParser = (*Parser)(nil)

// Parser implements [chorus.FrameParser]. It holds only the undecoded
// remainder between calls, so feeding a stream in arbitrary pieces yields the
// same frames as feeding it whole.
type Parser struct {
	buf []byte
	// scanned is how much of buf is known to hold no delimiter.
	scanned     int
	onMalformed func(raw string, err error)
}

// Option configures a [Parser].
type Option func(*Parser)

// WithMalformedHandler sets a callback invoked for every skipped message,
// including a discarded unterminated remainder.
func WithMalformedHandler(h func(raw string, err error)) Option {
	return func(p *Parser) { p.onMalformed = h }
}

// NewParser creates a new [Parser].
func NewParser(opts ...Option) *Parser {
	p := &Parser{}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Feed appends b and returns every frame completed by it.
func (p *Parser) Feed(b []byte) []chorus.Frame {
	p.buf = append(p.buf, b...)

	var frames []chorus.Frame
	off := 0
	for {
		end, next := delimiter(p.buf[off:], p.scanned)
		p.scanned = 0
		if end < 0 {
			break
		}
		msg := p.buf[off : off+end]
		off += next
		if f, ok := p.message(msg); ok {
			frames = append(frames, f)
		}
	}
	if off > 0 {
		p.buf = append(p.buf[:0], p.buf[off:]...)
	}
	// A delimiter can still complete across the last two bytes.
	p.scanned = max(len(p.buf)-2, 0)
	return frames
}

// Finish discards any unterminated remainder. An unterminated message is not
// well-formed and is never emitted.
func (p *Parser) Finish() {
	if len(bytes.TrimSpace(p.buf)) > 0 {
		p.malformed(string(p.buf), errors.New("unterminated message"))
	}
	p.buf = nil
	p.scanned = 0
}

// delimiter finds the first blank line in b at or after from. It returns the
// end of the message and the start of whatever follows the blank line, or -1.
func delimiter(b []byte, from int) (end, next int) {
	for i := from; i < len(b); i++ {
		if b[i] != '\n' {
			continue
		}
		switch {
		case i+1 < len(b) && b[i+1] == '\n':
			return i, i + 2
		case i+2 < len(b) && b[i+1] == '\r' && b[i+2] == '\n':
			return i, i + 3
		}
	}
	return -1, -1
}

// message decodes one delimited message. Comment-only messages are skipped
// silently; anything else that does not yield a frame is reported.
func (p *Parser) message(msg []byte) (chorus.Frame, bool) {
	var (
		event   string
		data    strings.Builder
		hasData bool
		content bool
	)
	for _, raw := range strings.Split(string(msg), "\n") {
		line := strings.TrimSuffix(raw, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		content = true
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		}
		// Unknown fields are ignored.
	}
	if !hasData {
		if content {
			p.malformed(string(msg), errors.New("message without data"))
		}
		return chorus.Frame{}, false
	}
	f, err := decode(event, data.String())
	if err != nil {
		p.malformed(string(msg), err)
		return chorus.Frame{}, false
	}
	return f, true
}

func (p *Parser) malformed(raw string, err error) {
	if p.onMalformed != nil {
		p.onMalformed(raw, err)
	}
}
