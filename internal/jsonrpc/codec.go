// Package jsonrpc implements the LSP Base Protocol framing and a JSON-RPC
// 2.0 duplex connection on top of it (spec.md §4.1/§4.2, C1/C2). It is
// hand-rolled rather than built on golang.org/x/exp/jsonrpc2 or
// github.com/sourcegraph/jsonrpc2 — see DESIGN.md for why: this package is
// itself the deliverable the rest of the hub depends on.
package jsonrpc

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const headerTerminator = "\r\n\r\n"

// Decoder is a resumable streaming decoder for Content-Length framed
// messages. Fragments may split a header, split the digits of
// Content-Length, or split the payload itself; Feed tolerates all three
// (spec.md testable property 5: frame codec round-trip for every split).
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty, ready-to-use Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends fragment to the internal buffer and extracts every message
// that is now fully available, in arrival order. A malformed header block
// (no parseable Content-Length) is discarded and decoding continues, per
// spec.md §4.1.
func (d *Decoder) Feed(fragment []byte) [][]byte {
	if len(fragment) > 0 {
		d.buf = append(d.buf, fragment...)
	}

	var out [][]byte
	for {
		msg, ok := d.next()
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}

// next extracts one message from the front of the buffer, skipping any
// malformed header blocks it encounters along the way. ok is false once the
// buffer no longer contains a complete message.
func (d *Decoder) next() ([]byte, bool) {
	for {
		idx := bytes.Index(d.buf, []byte(headerTerminator))
		if idx < 0 {
			return nil, false
		}

		length, err := parseContentLength(d.buf[:idx])
		if err != nil {
			// Malformed header: drop it and keep looking.
			d.buf = d.buf[idx+len(headerTerminator):]
			continue
		}

		bodyStart := idx + len(headerTerminator)
		if len(d.buf)-bodyStart < length {
			return nil, false // payload hasn't fully arrived yet
		}

		body := make([]byte, length)
		copy(body, d.buf[bodyStart:bodyStart+length])
		d.buf = d.buf[bodyStart+length:]
		return body, true
	}
}

func parseContentLength(header []byte) (int, error) {
	for _, line := range strings.Split(string(header), "\r\n") {
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("jsonrpc: invalid Content-Length: %w", err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("jsonrpc: missing Content-Length header")
}

// Encode frames payload as a single Content-Length message ready to write
// to the wire.
func Encode(payload []byte) []byte {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(payload))
	out := make([]byte, 0, len(header)+len(payload))
	out = append(out, header...)
	out = append(out, payload...)
	return out
}
