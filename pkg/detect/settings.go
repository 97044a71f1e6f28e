package detect

import (
	"fmt"
	"strings"
	"time"

	"github.com/koelabs/koe/pkg/voiceid"
)

// Settings is the tunable configuration of the detection pipeline. It
// replaces as a whole value; partial mutation is never observable.
type Settings struct {
	// VADEnabled drops events whose voice activity score falls below
	// VADThreshold before any trigger matching happens.
	VADEnabled   bool    `json:"vad_enabled" msgpack:"vad_enabled" yaml:"vad_enabled"`
	VADThreshold float64 `json:"vad_threshold" msgpack:"vad_threshold" yaml:"vad_threshold"`

	// ConfidenceThreshold is the similarity floor for accepting a
	// speaker verification verdict. It applies to whichever verifier
	// backend is active.
	ConfidenceThreshold float64 `json:"confidence_threshold" msgpack:"confidence_threshold" yaml:"confidence_threshold"`

	// SilenceConfirmationDelay is how long, in seconds, the utterance
	// must stop growing before a matched command fires.
	SilenceConfirmationDelay float64 `json:"silence_confirmation_delay" msgpack:"silence_confirmation_delay" yaml:"silence_confirmation_delay"`

	// UseExtendedTrigger checks ExtendedTriggerPhrase before the
	// per-command triggers; a match fires the first enabled command.
	UseExtendedTrigger    bool   `json:"use_extended_trigger" msgpack:"use_extended_trigger" yaml:"use_extended_trigger"`
	ExtendedTriggerPhrase string `json:"extended_trigger_phrase" msgpack:"extended_trigger_phrase" yaml:"extended_trigger_phrase"`

	// UseNeuralVerifier prefers the neural embedding backend when its
	// model is ready, falling back to the feature backend otherwise.
	UseNeuralVerifier bool `json:"use_neural_verifier" msgpack:"use_neural_verifier" yaml:"use_neural_verifier"`
}

// DefaultSettings returns the settings used when nothing has been
// persisted. The confidence threshold matches the feature backend; use
// voiceid.DefaultNeuralThreshold when enabling the neural backend.
func DefaultSettings() Settings {
	return Settings{
		VADEnabled:               true,
		VADThreshold:             0.3,
		ConfidenceThreshold:      voiceid.DefaultFeatureThreshold,
		SilenceConfirmationDelay: 2.0,
	}
}

// ConfirmationDelay returns SilenceConfirmationDelay as a duration.
func (s *Settings) ConfirmationDelay() time.Duration {
	return time.Duration(s.SilenceConfirmationDelay * float64(time.Second))
}

// Validate checks all fields against their allowed ranges.
func (s *Settings) Validate() error {
	if s.VADThreshold < 0 || s.VADThreshold > 1 {
		return fmt.Errorf("detect: vad_threshold %v out of range [0, 1]", s.VADThreshold)
	}
	if s.ConfidenceThreshold < 0.5 || s.ConfidenceThreshold > 0.95 {
		return fmt.Errorf("detect: confidence_threshold %v out of range [0.5, 0.95]", s.ConfidenceThreshold)
	}
	if s.SilenceConfirmationDelay < 0.5 || s.SilenceConfirmationDelay > 10 {
		return fmt.Errorf("detect: silence_confirmation_delay %v out of range [0.5, 10] seconds", s.SilenceConfirmationDelay)
	}
	if s.UseExtendedTrigger && strings.TrimSpace(s.ExtendedTriggerPhrase) == "" {
		return fmt.Errorf("detect: use_extended_trigger requires extended_trigger_phrase")
	}
	return nil
}
