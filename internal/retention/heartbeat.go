package retention

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Heartbeat appends retention run evidence to a log file. The file is
// the sole durable health signal operators have, since invocations run
// detached from the message path: one line per invocation start, plus a
// line with the detail of any uncaught invocation error.
type Heartbeat struct {
	mu   sync.Mutex
	path string
}

// NewHeartbeat creates a heartbeat writing to the given file path. The
// file is created on first append.
func NewHeartbeat(path string) *Heartbeat {
	return &Heartbeat{path: path}
}

// Started records an invocation start.
func (h *Heartbeat) Started(t time.Time) error {
	return h.append(t.UTC().Format(time.RFC3339))
}

// Failed records an uncaught invocation error with its detail.
func (h *Heartbeat) Failed(t time.Time, err error) error {
	return h.append(fmt.Sprintf("%s ERROR %v", t.UTC().Format(time.RFC3339), err))
}

func (h *Heartbeat) append(line string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open heartbeat file: %w", err)
	}
	if _, err := fmt.Fprintln(f, line); err != nil {
		f.Close()
		return fmt.Errorf("append heartbeat line: %w", err)
	}
	return f.Close()
}
