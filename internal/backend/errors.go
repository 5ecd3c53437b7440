package backend

import (
	"errors"
	"strings"
)

// ErrShutdownTimeout is the cancellation cause used when a server does not
// answer `shutdown` within the grace window (spec.md §4.9).
var ErrShutdownTimeout = errors.New("shutdown timed out")

// SpawnError wraps a failure to start, handshake with, or communicate with a
// child language server process. It carries a tail of the server's stderr
// to aid diagnostics without leaking raw server output into structured
// adapter-error payloads.
type SpawnError struct {
	Op     string
	Err    error
	Stderr string
}

func (e *SpawnError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString("unknown error")
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		b.WriteString("; server stderr (tail): ")
		b.WriteString(s)
	}
	return b.String()
}

func (e *SpawnError) Unwrap() error { return e.Err }
