package voiceid

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ProfileSaver persists voice profiles. The store package satisfies it.
type ProfileSaver interface {
	SaveProfile(ctx context.Context, profile *VoiceProfile) error
}

// Enroller builds and persists voice profiles.
//
// Enrollment is two-phase: the feature embedding trains synchronously and
// the profile is saved at once, so verification works immediately. When a
// neural verifier is configured, neural training runs on a background
// goroutine (the model may still be loading), updates the profile in
// place, and re-saves it.
type Enroller struct {
	feature *FeatureVerifier
	neural  *NeuralVerifier
	saver   ProfileSaver
	logger  *slog.Logger
	wait    time.Duration

	wg sync.WaitGroup
}

// EnrollerOption configures an Enroller.
type EnrollerOption func(*Enroller)

// WithEnrollerLogger sets the logger. Default: slog.Default().
func WithEnrollerLogger(logger *slog.Logger) EnrollerOption {
	return func(e *Enroller) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithNeuralTrainingWait bounds how long background training waits for the
// neural model to load. Default: 30s.
func WithNeuralTrainingWait(d time.Duration) EnrollerOption {
	return func(e *Enroller) {
		if d > 0 {
			e.wait = d
		}
	}
}

// NewEnroller creates an Enroller. neural may be nil to skip neural
// training entirely.
func NewEnroller(feature *FeatureVerifier, neural *NeuralVerifier, saver ProfileSaver, opts ...EnrollerOption) *Enroller {
	e := &Enroller{
		feature: feature,
		neural:  neural,
		saver:   saver,
		logger:  slog.Default(),
		wait:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enroll trains a profile from the utterances (16kHz mono each) and saves
// it. The returned profile carries the feature embedding; the neural
// embedding follows asynchronously if a neural verifier is configured.
func (e *Enroller) Enroll(ctx context.Context, name string, utterances [][]float32) (*VoiceProfile, error) {
	if len(utterances) == 0 {
		return nil, fmt.Errorf("voiceid: enroll %q: no utterances", name)
	}
	embedding := e.feature.Train(utterances)
	if embedding == nil {
		return nil, fmt.Errorf("voiceid: enroll %q: no utterance produced an embedding", name)
	}

	now := time.Now()
	profile := &VoiceProfile{
		Name:             name,
		FeatureEmbedding: embedding,
		SampleCount:      len(utterances),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := e.saver.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("voiceid: enroll %q: %w", name, err)
	}

	if e.neural != nil {
		e.neural.Load()
		e.wg.Add(1)
		go e.trainNeural(profile, utterances)
	}
	return profile, nil
}

// Wait blocks until background neural training has finished. Command-line
// flows call it before exiting.
func (e *Enroller) Wait() {
	e.wg.Wait()
}

func (e *Enroller) trainNeural(profile *VoiceProfile, utterances [][]float32) {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), e.wait)
	defer cancel()

	if err := e.neural.WaitReady(ctx); err != nil {
		e.logger.Warn("voiceid: neural training skipped, model not ready",
			"profile", profile.Name, "err", err)
		return
	}
	embedding, err := e.neural.Train(utterances)
	if err != nil {
		e.logger.Warn("voiceid: neural training failed",
			"profile", profile.Name, "err", err)
		return
	}

	profile.NeuralEmbedding = embedding
	profile.UpdatedAt = time.Now()
	if err := e.saver.SaveProfile(ctx, profile); err != nil {
		e.logger.Error("voiceid: saving neural embedding failed",
			"profile", profile.Name, "err", err)
		return
	}
	e.logger.Info("voiceid: neural embedding trained",
		"profile", profile.Name, "dim", len(embedding))
}
