package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/koelabs/koe/pkg/audio/wave"
)

// Sample archive layout on the file store:
//
//	profiles/{profile}/{tag}/{seq}.wav
//
// where tag groups recordings by purpose ("enroll", "verify") and seq
// is zero-padded so lexicographic listing order equals recording order.

func sampleDir(profile, tag string) string {
	if tag == "" {
		return path.Join("profiles", profile)
	}
	return path.Join("profiles", profile, tag)
}

func samplePath(profile, tag string, seq int) string {
	return path.Join(sampleDir(profile, tag), fmt.Sprintf("%03d.wav", seq))
}

// SaveSamples archives audio buffers as 16 kHz mono WAV files under the
// profile's tag directory, numbering after any samples already there.
// Without a configured archive it is a no-op.
func (s *Store) SaveSamples(ctx context.Context, profile, tag string, buffers [][]float32) error {
	if s.files == nil || len(buffers) == 0 {
		return nil
	}
	next, err := s.nextSampleSeq(ctx, profile, tag)
	if err != nil {
		return err
	}
	for i, buf := range buffers {
		p := samplePath(profile, tag, next+i)
		w, err := s.files.Write(ctx, p)
		if err != nil {
			return fmt.Errorf("store: archive sample %s: %w", p, err)
		}
		if err := wave.Encode(w, buf, wave.PipelineFormat.SampleRate); err != nil {
			w.Close()
			return fmt.Errorf("store: archive sample %s: %w", p, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("store: archive sample %s: %w", p, err)
		}
	}
	return nil
}

// LoadSamples reads back every archived WAV under the profile's tag
// directory, decoded to the pipeline format, in recording order.
// Returns nil without error when the archive is not configured or the
// directory is empty.
func (s *Store) LoadSamples(ctx context.Context, profile, tag string) ([][]float32, error) {
	if s.files == nil {
		return nil, nil
	}
	paths, err := s.files.List(ctx, sampleDir(profile, tag))
	if err != nil {
		return nil, fmt.Errorf("store: list samples: %w", err)
	}
	var buffers [][]float32
	for _, p := range paths {
		if !strings.HasSuffix(p, ".wav") {
			continue
		}
		rc, err := s.files.Read(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("store: read sample %s: %w", p, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("store: read sample %s: %w", p, err)
		}
		samples, err := wave.DecodePipeline(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("store: decode sample %s: %w", p, err)
		}
		buffers = append(buffers, samples)
	}
	return buffers, nil
}

// CountSamples reports how many WAVs are archived under the profile's
// tag directory.
func (s *Store) CountSamples(ctx context.Context, profile, tag string) (int, error) {
	if s.files == nil {
		return 0, nil
	}
	paths, err := s.files.List(ctx, sampleDir(profile, tag))
	if err != nil {
		return 0, fmt.Errorf("store: list samples: %w", err)
	}
	n := 0
	for _, p := range paths {
		if strings.HasSuffix(p, ".wav") {
			n++
		}
	}
	return n, nil
}

func (s *Store) deleteSamples(ctx context.Context, profile string) error {
	if s.files == nil {
		return nil
	}
	paths, err := s.files.List(ctx, sampleDir(profile, ""))
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := s.files.Delete(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// nextSampleSeq scans existing sample names and returns one past the
// highest sequence number, so numbering survives deleted gaps.
func (s *Store) nextSampleSeq(ctx context.Context, profile, tag string) (int, error) {
	paths, err := s.files.List(ctx, sampleDir(profile, tag))
	if err != nil {
		return 0, fmt.Errorf("store: list samples: %w", err)
	}
	max := -1
	for _, p := range paths {
		name, ok := strings.CutSuffix(path.Base(p), ".wav")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}
