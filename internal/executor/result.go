// result.go defines the command execution result structure.
package executor

import (
	"strings"
	"sync"
	"time"
)

// Result holds the outcome of a command execution.
type Result struct {
	// ExitCode is the process exit code. -1 indicates timeout or signal death.
	ExitCode int `json:"exit_code"`

	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// Truncated is set when either stream exceeded the output limit and
	// only its tail was kept.
	Truncated bool `json:"truncated,omitempty"`

	Duration time.Duration `json:"duration_ms"`

	// TimedOut is true if the command was killed due to timeout.
	TimedOut bool `json:"timed_out"`

	StartedAt time.Time `json:"started_at"`
}

// DurationMs returns the duration in milliseconds.
func (r *Result) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// Succeeded reports a zero exit without timeout.
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Tail returns the last n bytes of stderr, falling back to stdout when
// stderr is empty. Used to summarise failures in one line.
func (r *Result) Tail(n int) string {
	out := strings.TrimSpace(r.Stderr)
	if out == "" {
		out = strings.TrimSpace(r.Stdout)
	}
	if len(out) > n {
		out = "..." + out[len(out)-n:]
	}
	return out
}

// tailBuffer is an io.Writer that keeps only the last limit bytes.
type tailBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func newTailBuffer(limit int) *tailBuffer {
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.truncated = true
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
