package resampler

import (
	"math"
	"testing"
)

func TestResample_sameRatePassthrough(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3, 0.4}
	out, err := Resample(in, Format{SampleRate: 16000}, Format{SampleRate: 16000})
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	out[0] = 9 // must not alias the input
	if in[0] != 0.1 {
		t.Error("output aliases input buffer")
	}
}

func TestResample_stereoDownmix(t *testing.T) {
	in := []float32{1, 0, 0.5, 0.5, -1, 1}
	out, err := Resample(in, Format{SampleRate: 16000, Stereo: true}, Format{SampleRate: 16000})
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	want := []float32{0.5, 0.5, 0}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 1e-6 {
			t.Errorf("out[%d] = %f, want %f", i, out[i], want[i])
		}
	}
}

func TestResample_rateConversionLength(t *testing.T) {
	in := make([]float32, 44100)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 44100))
	}
	out, err := Resample(in, Format{SampleRate: 44100}, Format{SampleRate: 16000})
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	// One second of input should yield close to one second of output.
	if len(out) < 15000 || len(out) > 17000 {
		t.Errorf("resampled length = %d, want ~16000", len(out))
	}
}

func TestResample_rejectsStereoOutput(t *testing.T) {
	_, err := Resample(nil, Format{SampleRate: 16000}, Format{SampleRate: 16000, Stereo: true})
	if err == nil {
		t.Fatal("expected error for stereo output")
	}
}

func TestResample_rejectsInvalidRate(t *testing.T) {
	_, err := Resample(nil, Format{SampleRate: 0}, Format{SampleRate: 16000})
	if err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}
