// Package audio provides audio processing utilities.
//
// This package serves as an umbrella for audio-related sub-packages:
//
//   - pcm: PCM format arithmetic, wire conversion, and the sample ring
//   - vad: energy-based voice activity detection
//   - wave: WAV file reading and writing
//   - resampler: sample rate conversion and downmixing
//
// Example usage:
//
//	import (
//	    "github.com/koelabs/koe/pkg/audio/pcm"
//	    "github.com/koelabs/koe/pkg/audio/wave"
//	)
//
//	// Load an enrollment clip as 16kHz mono.
//	samples, err := wave.LoadPipeline("hello.wav")
//
//	// Keep the most recent 5 seconds of live audio.
//	ring := pcm.RingFor(pcm.L16Mono16K, 5*time.Second)
package audio
