package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/koelabs/koe/pkg/audio/vad"
	"github.com/koelabs/koe/pkg/trigger"
	"github.com/koelabs/koe/pkg/voiceid"
)

// cooldownInterval is the minimum gap between two executed commands.
// Events arriving inside the window after an execution are dropped.
const cooldownInterval = 2 * time.Second

// Config wires the pipeline's collaborators. Verifier is required;
// everything else has a usable default.
type Config struct {
	// Verifier is the feature-based speaker verification backend.
	Verifier voiceid.Verifier

	// Neural is the optional neural verification backend, preferred
	// over Verifier when Settings.UseNeuralVerifier is set and the
	// model is ready within NeuralWait.
	Neural voiceid.Verifier

	// Dispatcher receives confirmed detections. Defaults to
	// NopDispatcher.
	Dispatcher Dispatcher

	// VAD scores events for the voice activity gate. Defaults to a
	// detector with vad.DefaultConfig.
	VAD *vad.Detector

	// Matcher matches trigger phrases. Defaults to
	// trigger.NewMatcher().
	Matcher *trigger.Matcher

	// MicBusy reports whether another consumer currently holds the
	// input device. A nil func means never busy. Must be fast and
	// non-blocking.
	MicBusy func() bool

	// Settings is the initial pipeline configuration. The zero value
	// means DefaultSettings.
	Settings *Settings

	// Commands is the initial command list. Nil means
	// DefaultCommands.
	Commands []VoiceCommand

	// VerifyTimeout is the hard ceiling on one verification attempt;
	// exceeding it counts as rejection. Defaults to 5s.
	VerifyTimeout time.Duration

	// NeuralWait bounds how long verification waits for the neural
	// model to become ready before falling back to the feature
	// backend. Defaults to 2s.
	NeuralWait time.Duration

	Logger *slog.Logger
}

// pendingCommand tracks the single in-flight candidate between a
// trigger match and its confirmation or cancellation.
type pendingCommand struct {
	gen        uint64
	command    VoiceCommand
	text       string
	words      int
	confidence float64
	verified   bool
	timer      *time.Timer
}

// Pipeline is the command detection orchestrator. It is safe for
// concurrent use; Process never blocks on verification or dispatch.
type Pipeline struct {
	verifier      voiceid.Verifier
	neural        voiceid.Verifier
	dispatcher    Dispatcher
	vad           *vad.Detector
	matcher       *trigger.Matcher
	micBusy       func() bool
	verifyTimeout time.Duration
	neuralWait    time.Duration
	logger        *slog.Logger

	mu           sync.Mutex
	settings     Settings
	commands     []VoiceCommand
	enabled      bool
	state        State
	pending      *pendingCommand
	gen          uint64
	lastExecuted time.Time
	closed       bool

	wg sync.WaitGroup
}

// New creates a detection pipeline. The pipeline starts enabled.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("detect: config needs a verifier")
	}
	settings := DefaultSettings()
	if cfg.Settings != nil {
		if err := cfg.Settings.Validate(); err != nil {
			return nil, err
		}
		settings = *cfg.Settings
	}
	commands := cfg.Commands
	if commands == nil {
		commands = DefaultCommands()
	}
	p := &Pipeline{
		verifier:      cfg.Verifier,
		neural:        cfg.Neural,
		dispatcher:    cfg.Dispatcher,
		vad:           cfg.VAD,
		matcher:       cfg.Matcher,
		micBusy:       cfg.MicBusy,
		verifyTimeout: cfg.VerifyTimeout,
		neuralWait:    cfg.NeuralWait,
		logger:        cfg.Logger,
		settings:      settings,
		commands:      append([]VoiceCommand(nil), commands...),
		enabled:       true,
	}
	if p.dispatcher == nil {
		p.dispatcher = NopDispatcher{}
	}
	if p.vad == nil {
		p.vad = vad.New(vad.DefaultConfig())
	}
	if p.matcher == nil {
		p.matcher = trigger.NewMatcher()
	}
	if p.verifyTimeout <= 0 {
		p.verifyTimeout = 5 * time.Second
	}
	if p.neuralWait <= 0 {
		p.neuralWait = 2 * time.Second
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.applyThreshold(settings.ConfidenceThreshold)
	return p, nil
}

// Process runs one recognition event through the gates. It returns
// after the gating decision; verification and confirmation happen on
// background workers.
func (p *Pipeline) Process(text string, samples []float32) {
	if p.micBusy != nil && p.micBusy() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || !p.enabled {
		return
	}
	s := p.settings

	if s.VADEnabled {
		if score := p.vad.Score(samples); score < s.VADThreshold {
			p.logger.Debug("detect: event below vad threshold", "score", score, "threshold", s.VADThreshold)
			return
		}
	}

	if !p.lastExecuted.IsZero() && time.Since(p.lastExecuted) < cooldownInterval {
		return
	}

	words := trigger.WordCount(text)

	// A candidate is already in flight. Growth means the speaker kept
	// talking, so the candidate dies. Anything else is treated as
	// continuing silence.
	if p.pending != nil {
		if words > p.pending.words {
			p.logger.Debug("detect: utterance grew, cancelling pending command",
				"trigger", p.pending.command.Trigger, "words", words, "pending_words", p.pending.words)
			p.cancelPendingLocked()
			return
		}
		if p.state == StateAwaitingConfirmation {
			p.restartTimerLocked(s.ConfirmationDelay())
		}
		return
	}

	matched, ok := p.matchLocked(text, &s)
	if !ok {
		return
	}

	p.gen++
	gen := p.gen
	p.pending = &pendingCommand{
		gen:     gen,
		command: matched,
		text:    text,
		words:   words,
	}
	p.state = StateTriggerMatched

	p.wg.Add(1)
	go p.verifyAndArm(gen, samples, s)
}

// matchLocked finds the command the text triggers, if any. The
// extended phrase is checked first when enabled and maps to the first
// enabled command.
func (p *Pipeline) matchLocked(text string, s *Settings) (VoiceCommand, bool) {
	if s.UseExtendedTrigger && s.ExtendedTriggerPhrase != "" {
		if p.matcher.MatchPhrase(text, s.ExtendedTriggerPhrase) {
			for _, c := range p.commands {
				if c.Enabled {
					return c, true
				}
			}
		}
	}
	for _, c := range p.commands {
		if !c.Enabled {
			continue
		}
		if p.matcher.Match(text, c.Trigger) {
			return c, true
		}
	}
	return VoiceCommand{}, false
}

// verifyAndArm runs speaker verification off the lock, then commits
// the verdict if the candidate is still current.
func (p *Pipeline) verifyAndArm(gen uint64, samples []float32, s Settings) {
	defer p.wg.Done()

	ok, confidence := p.runVerify(samples, s.UseNeuralVerifier)

	p.mu.Lock()
	if p.closed || p.pending == nil || p.pending.gen != gen {
		p.mu.Unlock()
		return
	}
	if !ok || confidence < s.ConfidenceThreshold {
		trig := p.pending.command.Trigger
		p.pending = nil
		p.state = StateIdle
		p.mu.Unlock()
		p.logger.Debug("detect: speaker verification rejected",
			"trigger", trig, "verified", ok, "confidence", confidence)
		return
	}
	p.pending.confidence = confidence
	p.pending.verified = true
	p.state = StateAwaitingConfirmation
	p.pending.timer = time.AfterFunc(s.ConfirmationDelay(), func() { p.confirm(gen) })
	trig := p.pending.command.Trigger
	p.mu.Unlock()

	p.logger.Debug("detect: speaker verified, awaiting silence",
		"trigger", trig, "confidence", confidence)
}

// runVerify performs one verification attempt with a hard timeout.
// Timing out or panicking inside a backend counts as rejection.
func (p *Pipeline) runVerify(samples []float32, useNeural bool) (bool, float64) {
	type verdict struct {
		ok         bool
		confidence float64
	}
	ch := make(chan verdict, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("detect: panic in verifier", "panic", r)
				ch <- verdict{}
			}
		}()
		ok, confidence := p.verifyBackend(samples, useNeural)
		ch <- verdict{ok, confidence}
	}()
	select {
	case v := <-ch:
		return v.ok, v.confidence
	case <-time.After(p.verifyTimeout):
		p.logger.Warn("detect: verification timed out", "timeout", p.verifyTimeout)
		return false, 0
	}
}

// verifyBackend picks the neural backend when requested and ready
// within the bounded wait, the feature backend otherwise.
func (p *Pipeline) verifyBackend(samples []float32, useNeural bool) (bool, float64) {
	if useNeural && p.neural != nil {
		if w, ok := p.neural.(interface{ WaitReady(context.Context) error }); ok {
			ctx, cancel := context.WithTimeout(context.Background(), p.neuralWait)
			err := w.WaitReady(ctx)
			cancel()
			if err != nil {
				p.logger.Debug("detect: neural backend not ready, using feature backend", "error", err)
			}
		}
		if p.neural.Ready() {
			return p.neural.Verify(samples)
		}
	}
	return p.verifier.Verify(samples)
}

// confirm is the silence timer callback. A stale generation token
// means the candidate was cancelled or replaced after the timer was
// armed, so the fire is a no-op.
func (p *Pipeline) confirm(gen uint64) {
	p.mu.Lock()
	if p.closed || p.pending == nil || p.pending.gen != gen {
		p.mu.Unlock()
		return
	}
	d := Detection{
		Command:         p.pending.command,
		Confidence:      p.pending.confidence,
		IsVoiceVerified: p.pending.verified,
		Text:            p.pending.text,
		At:              time.Now(),
	}
	p.lastExecuted = d.At
	p.pending = nil
	p.state = StateIdle
	dispatcher := p.dispatcher
	p.mu.Unlock()

	p.logger.Info("detect: command detected",
		"trigger", d.Command.Trigger, "action", d.Command.Action, "confidence", d.Confidence)
	if err := dispatcher.CommandDetected(context.Background(), d); err != nil {
		p.logger.Warn("detect: dispatch error", "error", err)
	}
}

// cancelPendingLocked invalidates the in-flight candidate. Bumping the
// generation orphans its timer and any verification worker.
func (p *Pipeline) cancelPendingLocked() {
	if p.pending == nil {
		return
	}
	if p.pending.timer != nil {
		p.pending.timer.Stop()
	}
	p.gen++
	p.pending = nil
	p.state = StateIdle
}

// restartTimerLocked replaces the running silence timer with a fresh
// one under a new generation, so a concurrent fire of the old timer is
// discarded.
func (p *Pipeline) restartTimerLocked(delay time.Duration) {
	if p.pending == nil || p.pending.timer == nil {
		return
	}
	p.pending.timer.Stop()
	p.gen++
	gen := p.gen
	p.pending.gen = gen
	p.pending.timer = time.AfterFunc(delay, func() { p.confirm(gen) })
}

// SetEnabled turns detection on or off. Disabling cancels any pending
// command. The dispatcher is notified of actual transitions.
func (p *Pipeline) SetEnabled(enabled bool) {
	p.mu.Lock()
	if p.closed || p.enabled == enabled {
		p.mu.Unlock()
		return
	}
	p.enabled = enabled
	if !enabled {
		p.cancelPendingLocked()
	}
	dispatcher := p.dispatcher
	p.mu.Unlock()

	p.logger.Info("detect: enabled changed", "enabled", enabled)
	if err := dispatcher.EnabledChanged(context.Background(), enabled); err != nil {
		p.logger.Warn("detect: dispatch error", "error", err)
	}
}

// Enabled reports whether detection is on.
func (p *Pipeline) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// SetDispatcher replaces the event dispatcher. This exists for sinks
// that cannot be built before the pipeline, such as the intake feed
// that echoes detections back to its producer.
func (p *Pipeline) SetDispatcher(d Dispatcher) {
	if d == nil {
		d = NopDispatcher{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatcher = d
}

// State returns the current state of the confirmation state machine.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetSettings validates and replaces the pipeline settings and keeps
// the verifier thresholds in line with the new confidence threshold.
func (p *Pipeline) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.settings = s
	p.mu.Unlock()
	p.applyThreshold(s.ConfidenceThreshold)
	return nil
}

// Settings returns a copy of the current settings.
func (p *Pipeline) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// SetCommands replaces the command list.
func (p *Pipeline) SetCommands(commands []VoiceCommand) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commands = append([]VoiceCommand(nil), commands...)
}

// Commands returns a copy of the command list.
func (p *Pipeline) Commands() []VoiceCommand {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]VoiceCommand(nil), p.commands...)
}

// Close cancels any pending command and waits for in-flight
// verification workers to drain. The pipeline drops all events after
// Close.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.cancelPendingLocked()
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

// applyThreshold pushes the settings threshold into both backends so
// the acceptance floor is the same regardless of which one runs.
func (p *Pipeline) applyThreshold(t float64) {
	type thresholdSetter interface{ SetThreshold(float64) }
	if ts, ok := p.verifier.(thresholdSetter); ok {
		ts.SetThreshold(t)
	}
	if p.neural != nil {
		if ts, ok := p.neural.(thresholdSetter); ok {
			ts.SetThreshold(t)
		}
	}
}
