package voiceid

import "sync"

// Default match thresholds per backend. The neural embedding separates
// speakers more sharply, so it tolerates a higher bar.
const (
	DefaultFeatureThreshold = 0.6
	DefaultNeuralThreshold  = 0.7
)

// Verifier decides whether an utterance was spoken by the enrolled speaker.
//
// Verify returns the match decision and the cosine similarity against the
// enrolled embedding. It degrades to (false, 0) when no enrollment exists,
// the audio is unusable, or the backend is not ready; it never panics.
type Verifier interface {
	Verify(samples []float32) (ok bool, confidence float64)

	// Ready reports whether Verify can currently produce meaningful
	// scores (enrollment present, model loaded).
	Ready() bool
}

// FeatureVerifier verifies speakers using the hand-crafted acoustic
// embedding. It is always available: no model files, no warm-up.
//
// FeatureVerifier is safe for concurrent use.
type FeatureVerifier struct {
	extractor *FeatureExtractor

	mu        sync.Mutex
	enrolled  []float32
	threshold float64
}

// FeatureVerifierOption configures a FeatureVerifier.
type FeatureVerifierOption func(*FeatureVerifier)

// WithThreshold sets the similarity required for a match.
// Default: [DefaultFeatureThreshold].
func WithThreshold(t float64) FeatureVerifierOption {
	return func(v *FeatureVerifier) {
		if t > 0 {
			v.threshold = t
		}
	}
}

// WithEnrollment sets the enrolled embedding at construction, typically
// loaded from a stored profile.
func WithEnrollment(embedding []float32) FeatureVerifierOption {
	return func(v *FeatureVerifier) {
		v.enrolled = embedding
	}
}

// NewFeatureVerifier creates a FeatureVerifier using extractor. A nil
// extractor gets the default configuration.
func NewFeatureVerifier(extractor *FeatureExtractor, opts ...FeatureVerifierOption) *FeatureVerifier {
	if extractor == nil {
		extractor = NewFeatureExtractor(DefaultFeatureConfig())
	}
	v := &FeatureVerifier{
		extractor: extractor,
		threshold: DefaultFeatureThreshold,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Train builds an enrollment embedding from the utterances: each is
// embedded independently, the per-dimension mean is taken over the ones
// that produced an embedding, and the result is L2-normalized. Utterances
// too short to embed are skipped; if none survive, Train returns nil and
// leaves the current enrollment untouched. On success the verifier adopts
// the new enrollment.
func (v *FeatureVerifier) Train(utterances [][]float32) []float32 {
	embeddings := make([][]float32, 0, len(utterances))
	for _, u := range utterances {
		embeddings = append(embeddings, v.extractor.Extract(u))
	}
	enrolled := Normalize(Mean(embeddings))
	if enrolled == nil {
		return nil
	}
	v.mu.Lock()
	v.enrolled = enrolled
	v.mu.Unlock()
	return enrolled
}

// Verify embeds the probe and scores it against the enrolled embedding.
func (v *FeatureVerifier) Verify(samples []float32) (bool, float64) {
	v.mu.Lock()
	enrolled := v.enrolled
	threshold := v.threshold
	v.mu.Unlock()

	if len(enrolled) == 0 {
		return false, 0
	}
	probe := v.extractor.Extract(samples)
	if len(probe) == 0 {
		return false, 0
	}
	sim := Cosine(enrolled, probe)
	return sim >= threshold, sim
}

// Ready reports whether an enrollment is present.
func (v *FeatureVerifier) Ready() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.enrolled) > 0
}

// SetEnrollment replaces the enrolled embedding wholesale.
func (v *FeatureVerifier) SetEnrollment(embedding []float32) {
	v.mu.Lock()
	v.enrolled = embedding
	v.mu.Unlock()
}

// SetThreshold replaces the match threshold.
func (v *FeatureVerifier) SetThreshold(t float64) {
	v.mu.Lock()
	v.threshold = t
	v.mu.Unlock()
}

// Threshold returns the current match threshold.
func (v *FeatureVerifier) Threshold() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.threshold
}
