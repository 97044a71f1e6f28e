// Package resampler converts float32 sample buffers between audio formats.
//
// It supports:
//   - Sample rate conversion (e.g., 44100Hz to 16000Hz)
//   - Stereo to mono downmixing
//
// Rate conversion uses a pure Go resampler (no CGO/FFI dependencies) at
// high quality. The package is buffer-oriented: callers decode a whole
// clip, convert it, and hand the result to the feature extractors, which
// all expect 16kHz mono.
package resampler

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts samples from src format to dst format. Stereo input is
// downmixed to mono by averaging channels before rate conversion; mono to
// stereo conversion is not supported. The input slice is not modified.
func Resample(samples []float32, src, dst Format) ([]float32, error) {
	if dst.Stereo {
		return nil, fmt.Errorf("resampler: stereo output not supported")
	}
	if src.SampleRate <= 0 || dst.SampleRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid sample rate %d -> %d", src.SampleRate, dst.SampleRate)
	}

	mono := samples
	if src.Stereo {
		mono = downmix(samples)
	}

	if src.SampleRate == dst.SampleRate {
		out := make([]float32, len(mono))
		copy(out, mono)
		return out, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(src.SampleRate),
		OutputRate: float64(dst.SampleRate),
		Channels:   dst.channels(),
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resampler: create: %w", err)
	}

	input := make([]float64, len(mono))
	for i, s := range mono {
		input[i] = float64(s)
	}
	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}

	out := make([]float32, len(output))
	for i, s := range output {
		out[i] = float32(s)
	}
	return out, nil
}

// downmix averages interleaved stereo samples into a new mono buffer.
func downmix(samples []float32) []float32 {
	n := len(samples) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = (samples[i*2] + samples[i*2+1]) / 2
	}
	return out
}
