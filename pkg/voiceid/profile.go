package voiceid

import "time"

// VoiceProfile is the persisted enrollment state for a speaker.
//
// Writers replace the whole profile on every update. FeatureEmbedding is
// always present after enrollment; NeuralEmbedding is filled in later when
// background neural training completes, which re-saves the profile.
type VoiceProfile struct {
	// Name identifies the profile (e.g., "default", a user name).
	Name string `json:"name" msgpack:"name"`

	// FeatureEmbedding is the hand-crafted embedding, [FeatureDim] long.
	FeatureEmbedding []float32 `json:"feature_embedding" msgpack:"feature_embedding"`

	// NeuralEmbedding is the model embedding, empty until neural
	// training has run.
	NeuralEmbedding []float32 `json:"neural_embedding,omitempty" msgpack:"neural_embedding,omitempty"`

	// SampleCount is the number of utterances the embeddings were
	// trained from.
	SampleCount int `json:"sample_count" msgpack:"sample_count"`

	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`
}

// HasNeural reports whether the profile carries a neural embedding.
func (p *VoiceProfile) HasNeural() bool {
	return p != nil && len(p.NeuralEmbedding) > 0
}

// Trained reports whether the profile carries any usable embedding.
func (p *VoiceProfile) Trained() bool {
	return p != nil && (len(p.FeatureEmbedding) > 0 || len(p.NeuralEmbedding) > 0)
}
