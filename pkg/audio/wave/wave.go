// Package wave reads and writes 16-bit PCM WAV files as float32 sample
// buffers. Enrollment utterances arrive and are archived as WAV; everything
// downstream of this package works on 16kHz mono float32.
package wave

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/koelabs/koe/pkg/audio/pcm"
	"github.com/koelabs/koe/pkg/audio/resampler"
)

// PipelineFormat is the format every decoded clip is converted to before
// feature extraction.
var PipelineFormat = resampler.Format{SampleRate: 16000, Stereo: false}

// Decode reads a 16-bit PCM WAV stream and returns its samples in [-1, 1)
// along with the source format. Stereo files are returned interleaved.
func Decode(r io.ReadSeeker) ([]float32, resampler.Format, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, resampler.Format{}, fmt.Errorf("wave: not a valid WAV file")
	}
	if dec.BitDepth != 16 {
		return nil, resampler.Format{}, fmt.Errorf("wave: unsupported bit depth %d, want 16", dec.BitDepth)
	}
	if dec.NumChans != 1 && dec.NumChans != 2 {
		return nil, resampler.Format{}, fmt.Errorf("wave: unsupported channel count %d", dec.NumChans)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, resampler.Format{}, fmt.Errorf("wave: decode: %w", err)
	}

	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / 32768
	}
	format := resampler.Format{
		SampleRate: int(dec.SampleRate),
		Stereo:     dec.NumChans == 2,
	}
	return samples, format, nil
}

// Load reads the WAV file at path. See Decode.
func Load(path string) ([]float32, resampler.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, resampler.Format{}, fmt.Errorf("wave: open: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// LoadPipeline reads the WAV file at path and converts it to the pipeline
// format (16kHz mono).
func LoadPipeline(path string) ([]float32, error) {
	samples, format, err := Load(path)
	if err != nil {
		return nil, err
	}
	out, err := resampler.Resample(samples, format, PipelineFormat)
	if err != nil {
		return nil, fmt.Errorf("wave: %s: %w", path, err)
	}
	return out, nil
}

// DecodePipeline decodes WAV data from r and converts it to the
// pipeline format (16kHz mono).
func DecodePipeline(r io.ReadSeeker) ([]float32, error) {
	samples, format, err := Decode(r)
	if err != nil {
		return nil, err
	}
	out, err := resampler.Resample(samples, format, PipelineFormat)
	if err != nil {
		return nil, fmt.Errorf("wave: %w", err)
	}
	return out, nil
}

// Encode writes samples as a 16-bit mono WAV to w.
//
// The WAV container needs backpatched sizes, so the encoder runs against an
// in-memory seeker and the finished file is copied to w in one write.
func Encode(w io.Writer, samples []float32, sampleRate int) error {
	var mem memSeeker
	if err := encodeTo(&mem, samples, sampleRate); err != nil {
		return err
	}
	if _, err := w.Write(mem.buf); err != nil {
		return fmt.Errorf("wave: write: %w", err)
	}
	return nil
}

// Save writes samples as a 16-bit mono WAV file at path.
func Save(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wave: create: %w", err)
	}
	defer f.Close()
	if err := encodeTo(f, samples, sampleRate); err != nil {
		return err
	}
	return f.Close()
}

func encodeTo(w io.WriteSeeker, samples []float32, sampleRate int) error {
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = int(pcm.Int16(s))
	}
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wave: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wave: close encoder: %w", err)
	}
	return nil
}

// memSeeker is an in-memory io.WriteSeeker for WAV size backpatching.
type memSeeker struct {
	buf []byte
	pos int
}

func (m *memSeeker) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.buf) {
		if need <= cap(m.buf) {
			m.buf = m.buf[:need]
		} else {
			grown := make([]byte, need)
			copy(grown, m.buf)
			m.buf = grown
		}
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memSeeker) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(m.pos) + offset
	case io.SeekEnd:
		pos = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("wave: invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("wave: negative seek position")
	}
	m.pos = int(pos)
	return pos, nil
}
