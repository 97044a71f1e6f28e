package cli

import (
	"strings"
	"sync"
)

// LogWriter is an io.Writer that keeps the last maxLines lines for TUI
// display and signals arrivals on a channel so a render loop can wake
// up without polling.
type LogWriter struct {
	ch chan struct{}

	mu    sync.Mutex
	max   int
	lines []string
}

// NewLogWriter creates a log writer keeping at most maxLines lines.
func NewLogWriter(maxLines int) *LogWriter {
	if maxLines <= 0 {
		maxLines = 100
	}
	return &LogWriter{
		ch:  make(chan struct{}, 1),
		max: maxLines,
	}
}

// Write splits p on newlines and appends each line to the tail.
func (w *LogWriter) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\n")

	w.mu.Lock()
	for _, line := range strings.Split(text, "\n") {
		w.lines = append(w.lines, line)
	}
	if n := len(w.lines) - w.max; n > 0 {
		w.lines = append(w.lines[:0], w.lines[n:]...)
	}
	w.mu.Unlock()

	select {
	case w.ch <- struct{}{}:
	default:
	}
	return len(p), nil
}

// Lines returns a copy of the buffered lines, oldest first.
func (w *LogWriter) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.lines))
	copy(out, w.lines)
	return out
}

// Notify returns the channel signalled after each Write.
func (w *LogWriter) Notify() <-chan struct{} {
	return w.ch
}
