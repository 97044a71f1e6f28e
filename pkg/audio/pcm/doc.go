// Package pcm provides types and utilities for working with PCM (Pulse Code
// Modulation) audio data.
//
// The package defines mono 16-bit formats at the sample rates the detection
// pipeline deals with, conversion between the wire representation (16-bit
// signed little-endian bytes) and the float32 samples the DSP code consumes,
// and a fixed-capacity sample ring that retains the most recent window of
// audio.
//
// Key types:
//   - Format: audio format (sample rate, channels, bit depth) with
//     duration/sample/byte arithmetic
//   - Ring: overwrite-on-full sample buffer with copy-out snapshots
//
// Example usage:
//
//	format := pcm.L16Mono16K
//
//	// Ring holding the most recent 5 seconds of audio.
//	ring := pcm.RingFor(format, 5*time.Second)
//
//	// Append decoded wire audio, then snapshot for analysis.
//	ring.Write(pcm.Float32(frame))
//	window := ring.Snapshot()
package pcm
