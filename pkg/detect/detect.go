// Package detect implements the voice command detection pipeline.
//
// The pipeline consumes (text, samples) pairs from a continuous speech
// recognizer, gates them through microphone contention, voice activity,
// and cooldown checks, matches registered trigger phrases, verifies the
// speaker against the enrolled voice profile, and waits for a short
// window of silence before emitting a Detection. The silence window
// exists because continuous recognizers emit growing partial
// transcripts: a trigger match alone does not prove the utterance is
// finished.
//
// # States
//
// The pipeline moves through three states. Idle means nothing is
// pending. TriggerMatched means a candidate passed gating and trigger
// matching and verification is in flight. AwaitingConfirmation means
// verification accepted the speaker and the silence timer is armed.
// An utterance that keeps growing cancels the candidate; silence for
// the configured delay confirms it and emits exactly one Detection.
//
// # Concurrency
//
// A single mutex guards all pipeline state. The lock is never held
// across verification or dispatch. Timer callbacks and verification
// workers carry a generation token and re-check it under the lock
// before committing, so a late timer fire or a stale verdict is a
// no-op.
package detect

import (
	"context"
	"time"
)

// State is the detection pipeline state.
type State int

const (
	StateIdle State = iota
	StateTriggerMatched
	StateAwaitingConfirmation
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTriggerMatched:
		return "trigger_matched"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	default:
		return "unknown"
	}
}

// Detection is the event emitted once per confirmed voice command.
type Detection struct {
	Command         VoiceCommand `json:"command" msgpack:"command"`
	Confidence      float64      `json:"confidence" msgpack:"confidence"`
	IsVoiceVerified bool         `json:"is_voice_verified" msgpack:"is_voice_verified"`
	Text            string       `json:"text" msgpack:"text"`
	At              time.Time    `json:"at" msgpack:"at"`
}

// Dispatcher receives pipeline events. Implementations must be safe for
// concurrent use; errors are logged by the pipeline, never propagated.
type Dispatcher interface {
	// CommandDetected is called once per confirmed command.
	CommandDetected(ctx context.Context, d Detection) error

	// EnabledChanged is called when detection is toggled on or off.
	EnabledChanged(ctx context.Context, enabled bool) error
}

// NopDispatcher is a Dispatcher that discards all events.
type NopDispatcher struct{}

func (NopDispatcher) CommandDetected(context.Context, Detection) error { return nil }
func (NopDispatcher) EnabledChanged(context.Context, bool) error       { return nil }
