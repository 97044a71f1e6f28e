package detect

import (
	"context"
	"sync"
	"testing"
	"time"
)

// stubVerifier returns a scripted verdict, optionally after a delay.
type stubVerifier struct {
	mu         sync.Mutex
	ok         bool
	confidence float64
	delay      time.Duration
	calls      int
	threshold  float64
}

func (v *stubVerifier) Verify(samples []float32) (bool, float64) {
	v.mu.Lock()
	v.calls++
	delay := v.delay
	v.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return v.ok, v.confidence
}

func (v *stubVerifier) Ready() bool { return true }

func (v *stubVerifier) SetThreshold(t float64) {
	v.mu.Lock()
	v.threshold = t
	v.mu.Unlock()
}

func (v *stubVerifier) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func (v *stubVerifier) lastThreshold() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.threshold
}

// neverReadyVerifier simulates a neural backend whose model never
// finishes loading.
type neverReadyVerifier struct{}

func (neverReadyVerifier) Verify([]float32) (bool, float64) { return false, 0 }
func (neverReadyVerifier) Ready() bool                      { return false }
func (neverReadyVerifier) WaitReady(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// recordingDispatcher captures every event the pipeline emits.
type recordingDispatcher struct {
	mu         sync.Mutex
	detections []Detection
	enabled    []bool
}

func (d *recordingDispatcher) CommandDetected(_ context.Context, det Detection) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detections = append(d.detections, det)
	return nil
}

func (d *recordingDispatcher) EnabledChanged(_ context.Context, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = append(d.enabled, enabled)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.detections)
}

func (d *recordingDispatcher) detection(i int) Detection {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detections[i]
}

func (d *recordingDispatcher) enabledChanges() []bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]bool(nil), d.enabled...)
}

// speech returns a half-second buffer loud enough to pass the voice
// activity gate.
func speech() []float32 {
	samples := make([]float32, 8000)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 0.5
		} else {
			samples[i] = -0.5
		}
	}
	return samples
}

func testSettings() *Settings {
	s := DefaultSettings()
	s.VADEnabled = false
	return &s
}

// setDelay shortens the confirmation delay below what Validate allows,
// to keep tests fast.
func setDelay(p *Pipeline, seconds float64) {
	p.mu.Lock()
	p.settings.SilenceConfirmationDelay = seconds
	p.mu.Unlock()
}

func waitState(t *testing.T, p *Pipeline, want State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", p.State(), want)
}

func TestNew_requiresVerifier(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New accepted a nil verifier")
	}
}

func TestNew_validatesSettings(t *testing.T) {
	bad := DefaultSettings()
	bad.ConfidenceThreshold = 0.2
	_, err := New(Config{Verifier: &stubVerifier{}, Settings: &bad})
	if err == nil {
		t.Fatal("New accepted out-of-range settings")
	}
}

func TestPipeline_silenceConfirmation(t *testing.T) {
	verifier := &stubVerifier{ok: true, confidence: 0.9}
	dispatcher := &recordingDispatcher{}
	p, err := New(Config{Verifier: verifier, Dispatcher: dispatcher, Settings: testSettings()})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	setDelay(p, 0.1)

	p.Process("koe", speech())
	waitState(t, p, StateAwaitingConfirmation)

	time.Sleep(300 * time.Millisecond)

	if got := dispatcher.count(); got != 1 {
		t.Fatalf("detections = %d, want 1", got)
	}
	det := dispatcher.detection(0)
	if det.Command.Trigger != "koe" {
		t.Errorf("trigger = %q, want %q", det.Command.Trigger, "koe")
	}
	if !det.IsVoiceVerified {
		t.Error("detection not voice verified")
	}
	if det.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", det.Confidence)
	}
	if det.Text != "koe" {
		t.Errorf("text = %q, want %q", det.Text, "koe")
	}
	if got := p.State(); got != StateIdle {
		t.Errorf("state after confirmation = %v, want %v", got, StateIdle)
	}
}

func TestPipeline_growingUtteranceCancels(t *testing.T) {
	verifier := &stubVerifier{ok: true, confidence: 0.9}
	dispatcher := &recordingDispatcher{}
	p, err := New(Config{Verifier: verifier, Dispatcher: dispatcher, Settings: testSettings()})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	setDelay(p, 0.2)

	p.Process("koe", speech())
	waitState(t, p, StateAwaitingConfirmation)

	// The recognizer saw more words: the speaker kept talking.
	p.Process("koe please also", speech())

	if got := p.State(); got != StateIdle {
		t.Fatalf("state after growth = %v, want %v", got, StateIdle)
	}
	time.Sleep(400 * time.Millisecond)
	if got := dispatcher.count(); got != 0 {
		t.Fatalf("detections = %d, want 0 after cancellation", got)
	}
}

func TestPipeline_sameWordCountRestartsTimer(t *testing.T) {
	verifier := &stubVerifier{ok: true, confidence: 0.9}
	dispatcher := &recordingDispatcher{}
	p, err := New(Config{Verifier: verifier, Dispatcher: dispatcher, Settings: testSettings()})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	setDelay(p, 0.5)

	p.Process("koe", speech())
	waitState(t, p, StateAwaitingConfirmation)

	time.Sleep(250 * time.Millisecond)
	p.Process("koe", speech()) // still silent, timer restarts

	time.Sleep(350 * time.Millisecond)
	// 600ms in: the original timer would have fired at 500ms, the
	// restarted one fires around 750ms.
	if got := dispatcher.count(); got != 0 {
		t.Fatalf("detections = %d, want 0 before restarted timer fires", got)
	}

	time.Sleep(350 * time.Millisecond)
	if got := dispatcher.count(); got != 1 {
		t.Fatalf("detections = %d, want 1 after restarted timer fires", got)
	}
}

func TestPipeline_cooldownSuppressesSecondCommand(t *testing.T) {
	verifier := &stubVerifier{ok: true, confidence: 0.9}
	dispatcher := &recordingDispatcher{}
	p, err := New(Config{Verifier: verifier, Dispatcher: dispatcher, Settings: testSettings()})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	setDelay(p, 0.05)

	p.Process("koe", speech())
	time.Sleep(200 * time.Millisecond)
	if got := dispatcher.count(); got != 1 {
		t.Fatalf("detections = %d, want 1 after first command", got)
	}

	// Inside the cooldown window: dropped before matching.
	p.Process("koe", speech())
	time.Sleep(200 * time.Millisecond)

	if got := dispatcher.count(); got != 1 {
		t.Fatalf("detections = %d, want still 1 inside cooldown", got)
	}
	if got := verifier.callCount(); got != 1 {
		t.Errorf("verifier calls = %d, want 1", got)
	}
}

func TestPipeline_vadGate(t *testing.T) {
	verifier := &stubVerifier{ok: true, confidence: 0.9}
	dispatcher := &recordingDispatcher{}
	p, err := New(Config{Verifier: verifier, Dispatcher: dispatcher})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	setDelay(p, 0.05)

	// Default settings keep the voice activity gate on at 0.3.
	p.Process("koe", make([]float32, 8000))
	time.Sleep(150 * time.Millisecond)

	if got := dispatcher.count(); got != 0 {
		t.Fatalf("detections = %d, want 0 for silent audio", got)
	}
	if got := verifier.callCount(); got != 0 {
		t.Errorf("verifier calls = %d, want 0 for gated event", got)
	}

	p.Process("koe", speech())
	time.Sleep(200 * time.Millisecond)
	if got := dispatcher.count(); got != 1 {
		t.Fatalf("detections = %d, want 1 for voiced audio", got)
	}
}

func TestPipeline_micContentionGate(t *testing.T) {
	verifier := &stubVerifier{ok: true, confidence: 0.9}
	dispatcher := &recordingDispatcher{}
	busy := true
	p, err := New(Config{
		Verifier:   verifier,
		Dispatcher: dispatcher,
		Settings:   testSettings(),
		MicBusy:    func() bool { return busy },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	setDelay(p, 0.05)

	p.Process("koe", speech())
	time.Sleep(150 * time.Millisecond)
	if got := dispatcher.count(); got != 0 {
		t.Fatalf("detections = %d, want 0 while mic is contended", got)
	}

	busy = false
	p.Process("koe", speech())
	time.Sleep(200 * time.Millisecond)
	if got := dispatcher.count(); got != 1 {
		t.Fatalf("detections = %d, want 1 after contention cleared", got)
	}
}

func TestPipeline_disabledDropsEvents(t *testing.T) {
	verifier := &stubVerifier{ok: true, confidence: 0.9}
	dispatcher := &recordingDispatcher{}
	p, err := New(Config{Verifier: verifier, Dispatcher: dispatcher, Settings: testSettings()})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	setDelay(p, 0.05)

	p.SetEnabled(false)
	p.Process("koe", speech())
	time.Sleep(150 * time.Millisecond)
	if got := dispatcher.count(); got != 0 {
		t.Fatalf("detections = %d, want 0 while disabled", got)
	}

	p.SetEnabled(true)
	p.Process("koe", speech())
	time.Sleep(200 * time.Millisecond)
	if got := dispatcher.count(); got != 1 {
		t.Fatalf("detections = %d, want 1 after re-enabling", got)
	}

	want := []bool{false, true}
	got := dispatcher.enabledChanges()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("enabled changes = %v, want %v", got, want)
	}
}

func TestPipeline_disableCancelsPending(t *testing.T) {
	verifier := &stubVerifier{ok: true, confidence: 0.9}
	dispatcher := &recordingDispatcher{}
	p, err := New(Config{Verifier: verifier, Dispatcher: dispatcher, Settings: testSettings()})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	setDelay(p, 0.2)

	p.Process("koe", speech())
	waitState(t, p, StateAwaitingConfirmation)

	p.SetEnabled(false)
	time.Sleep(400 * time.Millisecond)
	if got := dispatcher.count(); got != 0 {
		t.Fatalf("detections = %d, want 0 after disable", got)
	}
}

func TestPipeline_rejectionReturnsToIdle(t *testing.T) {
	tests := []struct {
		name     string
		verifier *stubVerifier
	}{
		{"not a match", &stubVerifier{ok: false, confidence: 0.1}},
		{"match below threshold", &stubVerifier{ok: true, confidence: 0.55}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher := &recordingDispatcher{}
			p, err := New(Config{Verifier: tt.verifier, Dispatcher: dispatcher, Settings: testSettings()})
			if err != nil {
				t.Fatal(err)
			}
			defer p.Close()
			setDelay(p, 0.05)

			p.Process("koe", speech())
			waitState(t, p, StateIdle)

			time.Sleep(150 * time.Millisecond)
			if got := dispatcher.count(); got != 0 {
				t.Fatalf("detections = %d, want 0 after rejection", got)
			}
		})
	}
}

func TestPipeline_verifyTimeoutRejects(t *testing.T) {
	verifier := &stubVerifier{ok: true, confidence: 0.9, delay: 300 * time.Millisecond}
	dispatcher := &recordingDispatcher{}
	p, err := New(Config{
		Verifier:      verifier,
		Dispatcher:    dispatcher,
		Settings:      testSettings(),
		VerifyTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	setDelay(p, 0.05)

	p.Process("koe", speech())
	waitState(t, p, StateIdle)

	time.Sleep(400 * time.Millisecond)
	if got := dispatcher.count(); got != 0 {
		t.Fatalf("detections = %d, want 0 after verification timeout", got)
	}
}

func TestPipeline_neuralFallback(t *testing.T) {
	feature := &stubVerifier{ok: true, confidence: 0.9}
	dispatcher := &recordingDispatcher{}
	settings := testSettings()
	settings.UseNeuralVerifier = true
	p, err := New(Config{
		Verifier:   feature,
		Neural:     neverReadyVerifier{},
		Dispatcher: dispatcher,
		Settings:   settings,
		NeuralWait: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	setDelay(p, 0.05)

	start := time.Now()
	p.Process("koe", speech())
	waitState(t, p, StateAwaitingConfirmation)

	// The bounded wait for the neural model must have elapsed before
	// the feature backend answered.
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("verification finished in %v, expected to wait for the neural model first", elapsed)
	}
	if got := feature.callCount(); got != 1 {
		t.Errorf("feature verifier calls = %d, want 1", got)
	}

	time.Sleep(200 * time.Millisecond)
	if got := dispatcher.count(); got != 1 {
		t.Fatalf("detections = %d, want 1 via feature fallback", got)
	}
}

func TestPipeline_neuralPreferredWhenReady(t *testing.T) {
	feature := &stubVerifier{ok: true, confidence: 0.7}
	neural := &stubVerifier{ok: true, confidence: 0.95}
	dispatcher := &recordingDispatcher{}
	settings := testSettings()
	settings.UseNeuralVerifier = true
	p, err := New(Config{Verifier: feature, Neural: neural, Dispatcher: dispatcher, Settings: settings})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	setDelay(p, 0.05)

	p.Process("koe", speech())
	time.Sleep(200 * time.Millisecond)

	if got := dispatcher.count(); got != 1 {
		t.Fatalf("detections = %d, want 1", got)
	}
	if got := dispatcher.detection(0).Confidence; got != 0.95 {
		t.Errorf("confidence = %v, want the neural backend's 0.95", got)
	}
	if got := feature.callCount(); got != 0 {
		t.Errorf("feature verifier calls = %d, want 0 when neural is ready", got)
	}
}

func TestPipeline_extendedTrigger(t *testing.T) {
	verifier := &stubVerifier{ok: true, confidence: 0.9}
	dispatcher := &recordingDispatcher{}
	settings := testSettings()
	settings.UseExtendedTrigger = true
	settings.ExtendedTriggerPhrase = "hey koe"

	disabled := NewCommand("koe", ActionNotify)
	disabled.Enabled = false
	recCmd := NewCommand("rec", ActionStartRecording)

	p, err := New(Config{
		Verifier:   verifier,
		Dispatcher: dispatcher,
		Settings:   settings,
		Commands:   []VoiceCommand{disabled, recCmd},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	setDelay(p, 0.05)

	// No per-command trigger in the text; the extended phrase routes
	// to the first enabled command.
	p.Process("hey koe wake up", speech())
	time.Sleep(200 * time.Millisecond)

	if got := dispatcher.count(); got != 1 {
		t.Fatalf("detections = %d, want 1", got)
	}
	if got := dispatcher.detection(0).Command.Action; got != ActionStartRecording {
		t.Errorf("action = %q, want %q", got, ActionStartRecording)
	}
}

func TestPipeline_firstEnabledMatchWins(t *testing.T) {
	verifier := &stubVerifier{ok: true, confidence: 0.9}
	dispatcher := &recordingDispatcher{}

	first := NewCommand("koe", ActionNotify)
	first.Enabled = false
	second := NewCommand("koe", ActionStartRecording)
	third := NewCommand("koe", ActionStopRecording)

	p, err := New(Config{
		Verifier:   verifier,
		Dispatcher: dispatcher,
		Settings:   testSettings(),
		Commands:   []VoiceCommand{first, second, third},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	setDelay(p, 0.05)

	p.Process("koe", speech())
	time.Sleep(200 * time.Millisecond)

	if got := dispatcher.count(); got != 1 {
		t.Fatalf("detections = %d, want 1", got)
	}
	if got := dispatcher.detection(0).Command.ID; got != second.ID {
		t.Errorf("matched command = %s, want the first enabled one %s", got, second.ID)
	}
}

func TestPipeline_thresholdPropagation(t *testing.T) {
	feature := &stubVerifier{ok: true, confidence: 0.9}
	neural := &stubVerifier{ok: true, confidence: 0.9}
	settings := testSettings()
	settings.ConfidenceThreshold = 0.8
	p, err := New(Config{Verifier: feature, Neural: neural, Settings: settings})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if got := feature.lastThreshold(); got != 0.8 {
		t.Errorf("feature threshold = %v, want 0.8", got)
	}
	if got := neural.lastThreshold(); got != 0.8 {
		t.Errorf("neural threshold = %v, want 0.8", got)
	}

	updated := *settings
	updated.ConfidenceThreshold = 0.9
	if err := p.SetSettings(updated); err != nil {
		t.Fatal(err)
	}
	if got := feature.lastThreshold(); got != 0.9 {
		t.Errorf("feature threshold after update = %v, want 0.9", got)
	}
}

func TestPipeline_closeDropsEvents(t *testing.T) {
	verifier := &stubVerifier{ok: true, confidence: 0.9}
	dispatcher := &recordingDispatcher{}
	p, err := New(Config{Verifier: verifier, Dispatcher: dispatcher, Settings: testSettings()})
	if err != nil {
		t.Fatal(err)
	}
	setDelay(p, 0.05)

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	p.Process("koe", speech())
	time.Sleep(150 * time.Millisecond)
	if got := dispatcher.count(); got != 0 {
		t.Fatalf("detections = %d, want 0 after Close", got)
	}
}

func TestPipeline_setDispatcher(t *testing.T) {
	verifier := &stubVerifier{ok: true, confidence: 0.9}
	p, err := New(Config{Verifier: verifier, Settings: testSettings()})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	setDelay(p, 0.05)

	late := &recordingDispatcher{}
	p.SetDispatcher(late)

	p.Process("koe", speech())
	time.Sleep(200 * time.Millisecond)
	if got := late.count(); got != 1 {
		t.Fatalf("detections = %d, want 1 on the late-bound dispatcher", got)
	}

	// A nil dispatcher falls back to the no-op.
	p.SetDispatcher(nil)
	p.SetEnabled(false)
}

func TestPipeline_commandListReplacement(t *testing.T) {
	verifier := &stubVerifier{ok: true, confidence: 0.9}
	p, err := New(Config{Verifier: verifier, Settings: testSettings()})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	replacement := []VoiceCommand{NewCommand("zelda", ActionNotify)}
	p.SetCommands(replacement)

	got := p.Commands()
	if len(got) != 1 || got[0].Trigger != "zelda" {
		t.Fatalf("commands = %+v, want the replacement list", got)
	}

	// The returned slice is a copy.
	got[0].Trigger = "mutated"
	if p.Commands()[0].Trigger != "zelda" {
		t.Error("Commands returned a live reference")
	}
}
