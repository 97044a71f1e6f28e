// Package voiceid provides speaker verification for the command detection
// pipeline.
//
// # Architecture
//
// Verification compares a probe utterance against an enrolled voice profile
// and happens in one of two backends:
//
//  1. FeatureVerifier: 16kHz mono float32 audio → 47-dimensional
//     hand-crafted acoustic embedding (MFCC statistics plus prosodic
//     scalars) → cosine similarity. Always available, no model files.
//  2. NeuralVerifier: the same audio → 256-dimensional embedding from an
//     ONNX speaker model behind the [Model] interface. Higher accuracy,
//     loads lazily in the background.
//
// Both backends share the embedding algebra in this file: enrollment
// averages per-utterance embeddings into a profile vector, verification is
// cosine similarity against it, and a similarity at or above the
// configured threshold is a match.
//
// # Degraded Results
//
// Verification never panics on bad input. Audio that is too short, a
// model that is still loading, or an embedding length mismatch all
// degrade to a non-match with zero confidence; the pipeline decides
// what to do with that.
package voiceid

import "math"

// FeatureDim is the length of hand-crafted acoustic embeddings:
// 13 MFCC means + 13 MFCC standard deviations + 13 delta means +
// 8 prosodic and spectral scalars.
const FeatureDim = 47

// Cosine returns the cosine similarity of a and b in [-1, 1]. Vectors of
// different lengths are compared over the shorter prefix; this keeps old
// profiles usable when the feature set grows. A zero vector yields 0.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// Normalize scales v to unit L2 norm in place and returns it. A zero
// vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// Mean returns the per-dimension mean of the given vectors, skipping nil
// entries. All non-nil vectors must have equal length. Returns nil when
// no usable vectors remain.
func Mean(vectors [][]float32) []float32 {
	var out []float64
	count := 0
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if out == nil {
			out = make([]float64, len(v))
		}
		if len(v) != len(out) {
			continue
		}
		for i, x := range v {
			out[i] += float64(x)
		}
		count++
	}
	if count == 0 {
		return nil
	}
	mean := make([]float32, len(out))
	for i, x := range out {
		mean[i] = float32(x / float64(count))
	}
	return mean
}
