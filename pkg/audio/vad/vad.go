// Package vad implements energy-based voice activity detection.
//
// The detector splits a buffer into fixed frames, computes per-frame RMS
// energy, and scores the buffer by the fraction of frames whose energy
// clears a noise floor. The score is in [0, 1] and is compared against a
// caller-supplied threshold, so the same detector serves both the pipeline
// gate and offline analysis.
package vad

import "math"

// Config holds voice activity detection parameters.
type Config struct {
	// SampleRate is the input sample rate in Hz.
	SampleRate int

	// FrameSize is the analysis frame length in samples.
	FrameSize int

	// NoiseFloor is the RMS energy below which a frame counts as silence.
	NoiseFloor float64
}

// DefaultConfig returns the configuration used by the detection pipeline:
// 16kHz input, 30ms frames, and a noise floor calibrated for close-mic
// speech at normal levels.
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		FrameSize:  480,
		NoiseFloor: 0.01,
	}
}

// Detector scores buffers for voice activity.
type Detector struct {
	cfg Config
}

// New creates a Detector with the given configuration. Zero fields are
// replaced by their defaults.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = def.FrameSize
	}
	if cfg.NoiseFloor <= 0 {
		cfg.NoiseFloor = def.NoiseFloor
	}
	return &Detector{cfg: cfg}
}

// Score returns the fraction of frames in samples whose RMS energy exceeds
// the noise floor. Buffers shorter than one frame score 0.
func (d *Detector) Score(samples []float32) float64 {
	n := len(samples) / d.cfg.FrameSize
	if n == 0 {
		return 0
	}
	active := 0
	for i := 0; i < n; i++ {
		frame := samples[i*d.cfg.FrameSize : (i+1)*d.cfg.FrameSize]
		if RMS(frame) > d.cfg.NoiseFloor {
			active++
		}
	}
	return float64(active) / float64(n)
}

// IsSpeech reports whether the buffer's activity score meets threshold.
func (d *Detector) IsSpeech(samples []float32, threshold float64) bool {
	return d.Score(samples) >= threshold
}

// RMS returns the root-mean-square energy of samples, 0 for empty input.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
