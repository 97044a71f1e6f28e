package voiceid

import (
	"math"
	"testing"
)

func TestFeatureVerifier_trainAndVerify(t *testing.T) {
	v := NewFeatureVerifier(nil)
	enrolled := v.Train([][]float32{
		sineWave(220, 0.5, 32000),
		sineWave(220, 0.5, 24000),
		sineWave(220, 0.45, 32000),
	})
	if enrolled == nil {
		t.Fatal("Train returned nil")
	}
	if !v.Ready() {
		t.Fatal("Ready() = false after training")
	}

	ok, confidence := v.Verify(sineWave(220, 0.5, 20000))
	if !ok {
		t.Errorf("same tone not verified, confidence %f", confidence)
	}
	if confidence < 0.9 {
		t.Errorf("same tone confidence = %f, want > 0.9", confidence)
	}

	ok, confidence = v.Verify(whiteNoise(0.5, 20000, 13))
	if ok {
		t.Errorf("noise verified with confidence %f", confidence)
	}
}

func TestFeatureVerifier_trainIdempotentOnCopies(t *testing.T) {
	sample := sineWave(300, 0.5, 16000)

	one := NewFeatureVerifier(nil).Train([][]float32{sample})
	many := NewFeatureVerifier(nil).Train([][]float32{sample, sample, sample, sample})

	if len(one) != len(many) {
		t.Fatalf("lengths differ: %d vs %d", len(one), len(many))
	}
	for i := range one {
		if math.Abs(float64(one[i]-many[i])) > 1e-6 {
			t.Fatalf("dim %d: one=%f many=%f", i, one[i], many[i])
		}
	}
}

func TestFeatureVerifier_trainSkipsShortUtterances(t *testing.T) {
	v := NewFeatureVerifier(nil)
	good := sineWave(220, 0.5, 16000)
	enrolled := v.Train([][]float32{make([]float32, 10), good, nil})
	if enrolled == nil {
		t.Fatal("Train returned nil despite one usable utterance")
	}
	want := NewFeatureVerifier(nil).Train([][]float32{good})
	for i := range want {
		if math.Abs(float64(enrolled[i]-want[i])) > 1e-6 {
			t.Fatalf("dim %d: got %f, want %f", i, enrolled[i], want[i])
		}
	}
}

func TestFeatureVerifier_trainAllFail(t *testing.T) {
	v := NewFeatureVerifier(nil, WithEnrollment([]float32{1, 0}))
	if got := v.Train([][]float32{make([]float32, 5), nil}); got != nil {
		t.Fatalf("Train(all short) = %v, want nil", got)
	}
	// Failed training leaves the previous enrollment in place.
	if !v.Ready() {
		t.Error("previous enrollment lost after failed training")
	}
}

func TestFeatureVerifier_untrained(t *testing.T) {
	v := NewFeatureVerifier(nil)
	if v.Ready() {
		t.Error("Ready() = true without enrollment")
	}
	ok, confidence := v.Verify(sineWave(220, 0.5, 16000))
	if ok || confidence != 0 {
		t.Errorf("Verify without enrollment = (%v, %f), want (false, 0)", ok, confidence)
	}
}

func TestFeatureVerifier_shortProbe(t *testing.T) {
	v := NewFeatureVerifier(nil)
	v.Train([][]float32{sineWave(220, 0.5, 16000)})
	ok, confidence := v.Verify(make([]float32, 100))
	if ok || confidence != 0 {
		t.Errorf("Verify(short) = (%v, %f), want (false, 0)", ok, confidence)
	}
}

func TestFeatureVerifier_enrollmentLengthDrift(t *testing.T) {
	// A profile from an older feature set is shorter than current
	// embeddings; verification must still score over the shared prefix.
	old := make([]float32, 30)
	old[0] = 1
	v := NewFeatureVerifier(nil, WithEnrollment(old))
	ok, confidence := v.Verify(sineWave(220, 0.5, 16000))
	_ = ok
	if math.IsNaN(confidence) {
		t.Fatal("confidence is NaN on length drift")
	}
}

func TestFeatureVerifier_thresholdControlsDecision(t *testing.T) {
	v := NewFeatureVerifier(nil, WithThreshold(0.999999))
	v.Train([][]float32{sineWave(220, 0.5, 16000)})
	probe := sineWave(220, 0.5, 16010)
	_, confidence := v.Verify(probe)

	v.SetThreshold(confidence - 0.01)
	if ok, _ := v.Verify(probe); !ok {
		t.Error("probe above threshold not matched")
	}
	v.SetThreshold(confidence + 0.01)
	if ok, _ := v.Verify(probe); ok {
		t.Error("probe below threshold matched")
	}
	if got := v.Threshold(); math.Abs(got-(confidence+0.01)) > 1e-9 {
		t.Errorf("Threshold() = %f, want %f", got, confidence+0.01)
	}
}
