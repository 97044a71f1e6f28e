package resampler

// Format describes the layout of a float32 sample buffer.
type Format struct {
	// SampleRate is the sample rate in Hz (e.g., 16000, 44100).
	SampleRate int

	// Stereo indicates interleaved stereo (2 channels) if true,
	// mono (1 channel) if false.
	Stereo bool
}

func (f Format) channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}
