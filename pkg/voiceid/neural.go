package voiceid

import (
	"context"
	"fmt"
	"sync"
)

// neuralWindow is the fixed utterance length fed to the model, in samples.
// Shorter audio is loop-padded, longer audio truncated, so every
// embedding describes the same amount of speech.
const neuralWindow = 10 * 16000

// NeuralVerifier verifies speakers with an ONNX embedding model behind
// [Model]. The model loads lazily in the background: the first Verify (or
// an explicit Load) starts loading, and until it finishes Verify degrades
// to (false, 0) so the caller can fall back to the feature backend.
//
// NeuralVerifier is safe for concurrent use.
type NeuralVerifier struct {
	loader func() (Model, error)

	loadOnce sync.Once
	loaded   chan struct{}

	mu        sync.Mutex
	model     Model
	loadErr   error
	enrolled  []float32
	threshold float64
}

// NeuralVerifierOption configures a NeuralVerifier.
type NeuralVerifierOption func(*NeuralVerifier)

// WithNeuralThreshold sets the similarity required for a match.
// Default: [DefaultNeuralThreshold].
func WithNeuralThreshold(t float64) NeuralVerifierOption {
	return func(v *NeuralVerifier) {
		if t > 0 {
			v.threshold = t
		}
	}
}

// WithNeuralEnrollment sets the enrolled embedding at construction,
// typically loaded from a stored profile.
func WithNeuralEnrollment(embedding []float32) NeuralVerifierOption {
	return func(v *NeuralVerifier) {
		v.enrolled = embedding
	}
}

// NewNeuralVerifier creates a NeuralVerifier. loader builds the model and
// runs on a background goroutine once loading starts; it is typically a
// closure around [NewSherpaModel].
func NewNeuralVerifier(loader func() (Model, error), opts ...NeuralVerifierOption) *NeuralVerifier {
	v := &NeuralVerifier{
		loader:    loader,
		loaded:    make(chan struct{}),
		threshold: DefaultNeuralThreshold,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Load starts loading the model in the background. It returns immediately
// and is safe to call any number of times.
func (v *NeuralVerifier) Load() {
	v.loadOnce.Do(func() {
		go func() {
			model, err := v.loader()
			v.mu.Lock()
			v.model, v.loadErr = model, err
			v.mu.Unlock()
			close(v.loaded)
		}()
	})
}

// WaitReady blocks until the model has finished loading or ctx is done.
// It returns the load error, if any. Callers bound the wait with a context
// deadline and fall back to the feature verifier on timeout.
func (v *NeuralVerifier) WaitReady(ctx context.Context) error {
	v.Load()
	select {
	case <-v.loaded:
		v.mu.Lock()
		defer v.mu.Unlock()
		return v.loadErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the model is loaded and an enrollment is present.
func (v *NeuralVerifier) Ready() bool {
	select {
	case <-v.loaded:
	default:
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loadErr == nil && v.model != nil && len(v.enrolled) > 0
}

// Verify embeds the probe and scores it against the enrolled embedding.
// While the model is still loading it returns (false, 0) immediately.
func (v *NeuralVerifier) Verify(samples []float32) (bool, float64) {
	v.Load()
	select {
	case <-v.loaded:
	default:
		return false, 0
	}

	v.mu.Lock()
	model := v.model
	loadErr := v.loadErr
	enrolled := v.enrolled
	threshold := v.threshold
	v.mu.Unlock()

	if loadErr != nil || model == nil || len(enrolled) == 0 {
		return false, 0
	}
	probe := embedWith(model, samples)
	if len(probe) == 0 {
		return false, 0
	}
	sim := Cosine(enrolled, probe)
	return sim >= threshold, sim
}

// Train builds an enrollment embedding from the utterances using the
// loaded model. It requires the model to be ready; enrollment flows call
// WaitReady first. On success the verifier adopts the new enrollment.
func (v *NeuralVerifier) Train(utterances [][]float32) ([]float32, error) {
	v.mu.Lock()
	model := v.model
	loadErr := v.loadErr
	v.mu.Unlock()

	if loadErr != nil {
		return nil, fmt.Errorf("voiceid: neural model load failed: %w", loadErr)
	}
	if model == nil {
		return nil, fmt.Errorf("voiceid: neural model not loaded")
	}

	embeddings := make([][]float32, 0, len(utterances))
	for _, u := range utterances {
		embeddings = append(embeddings, embedWith(model, u))
	}
	enrolled := Normalize(Mean(embeddings))
	if enrolled == nil {
		return nil, fmt.Errorf("voiceid: no usable utterances for neural training")
	}
	v.mu.Lock()
	v.enrolled = enrolled
	v.mu.Unlock()
	return enrolled, nil
}

// SetEnrollment replaces the enrolled embedding wholesale.
func (v *NeuralVerifier) SetEnrollment(embedding []float32) {
	v.mu.Lock()
	v.enrolled = embedding
	v.mu.Unlock()
}

// SetThreshold replaces the match threshold.
func (v *NeuralVerifier) SetThreshold(t float64) {
	v.mu.Lock()
	v.threshold = t
	v.mu.Unlock()
}

// Close releases the model if it finished loading.
func (v *NeuralVerifier) Close() error {
	select {
	case <-v.loaded:
	default:
		return nil
	}
	v.mu.Lock()
	model := v.model
	v.model = nil
	v.mu.Unlock()
	if model != nil {
		return model.Close()
	}
	return nil
}

// embedWith runs one utterance through the model after duration
// normalization and L2-normalizes the result. Failures yield nil.
func embedWith(model Model, samples []float32) []float32 {
	if len(samples) == 0 {
		return nil
	}
	out, err := model.Extract(loopPad(samples, neuralWindow))
	if err != nil {
		return nil
	}
	return Normalize(out)
}

// loopPad returns samples adjusted to exactly target length: longer input
// is truncated, shorter input is repeated end to end until it fits.
func loopPad(samples []float32, target int) []float32 {
	if len(samples) == 0 || target <= 0 {
		return nil
	}
	if len(samples) >= target {
		return samples[:target]
	}
	out := make([]float32, target)
	for off := 0; off < target; off += len(samples) {
		copy(out[off:], samples)
	}
	return out
}
