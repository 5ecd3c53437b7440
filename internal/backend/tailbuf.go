package backend

import (
	"sync"

	"github.com/armon/circbuf"
)

// stderrTail is an io.Writer that retains only the last N bytes written,
// safe for concurrent use by the process's stderr pump.
type stderrTail struct {
	mu  sync.Mutex
	buf *circbuf.Buffer
}

func newStderrTail(limit int) *stderrTail {
	if limit <= 0 {
		return &stderrTail{}
	}
	b, err := circbuf.NewBuffer(int64(limit))
	if err != nil {
		return &stderrTail{}
	}
	return &stderrTail{buf: b}
}

func (t *stderrTail) Write(p []byte) (int, error) {
	n := len(p)
	if t.buf == nil || n == 0 {
		return n, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Write(p)
}

func (t *stderrTail) String() string {
	if t.buf == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
