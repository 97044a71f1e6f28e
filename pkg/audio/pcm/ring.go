package pcm

import (
	"slices"
	"sync"
	"time"
)

// Ring is a thread-safe, fixed-capacity ring of float32 samples. When the
// ring is full, new writes overwrite the oldest samples, so it always holds
// the most recent window of audio.
//
// Unlike a pipe there is no destructive read: producers call Write and
// consumers call Snapshot to copy out the current window. This matches how
// the intake feed uses it, appending recognizer audio continuously and
// snapshotting on every text event.
type Ring struct {
	mu   sync.Mutex
	buf  []float32
	next int
	full bool
}

// NewRing creates a Ring holding at most capacity samples.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		panic("pcm: ring capacity must be positive")
	}
	return &Ring{buf: make([]float32, capacity)}
}

// RingFor creates a Ring sized to hold d of audio in the given format.
func RingFor(f Format, d time.Duration) *Ring {
	return NewRing(int(f.SamplesInDuration(d)))
}

// Write appends samples to the ring, overwriting the oldest samples once
// the ring is full.
func (r *Ring) Write(p []float32) {
	if len(p) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	// A write at least as large as the ring replaces it wholesale.
	if len(p) >= len(r.buf) {
		copy(r.buf, p[len(p)-len(r.buf):])
		r.next = 0
		r.full = true
		return
	}

	n := copy(r.buf[r.next:], p)
	if n < len(p) {
		copy(r.buf, p[n:])
		r.full = true
	}
	r.next = (r.next + len(p)) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Snapshot returns a copy of the buffered samples, oldest first.
func (r *Ring) Snapshot() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return slices.Clone(r.buf[:r.next])
	}
	out := make([]float32, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

// Len returns the number of samples currently buffered.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Cap returns the ring capacity in samples.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Reset discards all buffered samples.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = 0
	r.full = false
}
