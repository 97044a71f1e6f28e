package voiceid

import "math"

// FeatureConfig configures the hand-crafted acoustic feature extractor.
type FeatureConfig struct {
	SampleRate  int     // Input sample rate in Hz (default: 16000)
	FrameLength int     // Frame length in samples (default: 400 = 25ms @ 16kHz)
	FrameShift  int     // Frame shift in samples (default: 160 = 10ms @ 16kHz)
	FFTSize     int     // FFT size, power of 2 >= FrameLength (default: 512)
	NumMels     int     // Number of mel filterbank channels (default: 26)
	NumCoeffs   int     // Number of cepstral coefficients kept (default: 13)
	PreEmphasis float64 // Pre-emphasis coefficient (default: 0.97)
	EnergyFloor float64 // Floor for mel energies before log (default: 1e-10)
	DeltaWindow int     // Half-width of the delta regression window (default: 2)
}

// DefaultFeatureConfig returns the extractor configuration for 16kHz audio.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		SampleRate:  16000,
		FrameLength: 400, // 25ms @ 16kHz
		FrameShift:  160, // 10ms @ 16kHz
		FFTSize:     512,
		NumMels:     26,
		NumCoeffs:   13,
		PreEmphasis: 0.97,
		EnergyFloor: 1e-10,
		DeltaWindow: 2,
	}
}

// FeatureExtractor computes hand-crafted speaker embeddings from 16kHz mono
// float32 audio. The embedding concatenates MFCC statistics (means, standard
// deviations, delta means) with prosodic and spectral scalars, then
// L2-normalizes, yielding [FeatureDim] values.
//
// The extractor is stateless after construction and safe for concurrent use.
type FeatureExtractor struct {
	cfg    FeatureConfig
	window []float64
	fb     [][]float64
	dct    [][]float64
}

// NewFeatureExtractor creates a FeatureExtractor with the given
// configuration, precomputing the window, filterbank, and DCT basis.
func NewFeatureExtractor(cfg FeatureConfig) *FeatureExtractor {
	return &FeatureExtractor{
		cfg:    cfg,
		window: hammingWindow(cfg.FrameLength),
		fb:     melFilterbank(cfg.NumMels, cfg.FFTSize, cfg.SampleRate),
		dct:    dctMatrix(cfg.NumCoeffs, cfg.NumMels),
	}
}

// Dimension returns the embedding length.
func (e *FeatureExtractor) Dimension() int {
	return 3*e.cfg.NumCoeffs + 8
}

// Extract computes the speaker embedding for samples. Input shorter than
// one frame returns nil. The result is L2-normalized unless its norm is
// zero, in which case the raw (zero) vector is returned. Degenerate
// intermediate values (NaN, Inf) are replaced by 0 so a usable vector
// always comes back for valid-length input.
func (e *FeatureExtractor) Extract(samples []float32) []float32 {
	cfg := e.cfg
	n := len(samples)
	if n < cfg.FrameLength {
		return nil
	}

	raw := make([]float64, n)
	for i, s := range samples {
		raw[i] = float64(s)
	}

	// Pre-emphasis on a copy; the prosodic features use the raw signal.
	emph := make([]float64, n)
	emph[0] = raw[0]
	for i := 1; i < n; i++ {
		emph[i] = raw[i] - cfg.PreEmphasis*raw[i-1]
	}

	numFrames := (n-cfg.FrameLength)/cfg.FrameShift + 1
	halfFFT := cfg.FFTSize/2 + 1

	mfcc := make([][]float64, numFrames)
	power := make([][]float64, numFrames)
	fftBuf := make([]complex128, cfg.FFTSize)

	for f := 0; f < numFrames; f++ {
		offset := f * cfg.FrameShift

		// Window and zero-pad to FFT size.
		for i := range fftBuf {
			fftBuf[i] = 0
		}
		for i := 0; i < cfg.FrameLength; i++ {
			fftBuf[i] = complex(emph[offset+i]*e.window[i], 0)
		}
		fft(fftBuf)

		spec := make([]float64, halfFFT)
		for k := 0; k < halfFFT; k++ {
			r := real(fftBuf[k])
			im := imag(fftBuf[k])
			spec[k] = r*r + im*im
		}
		power[f] = spec

		// Log mel energies, then DCT-II to cepstral coefficients.
		mel := make([]float64, cfg.NumMels)
		for m := 0; m < cfg.NumMels; m++ {
			var energy float64
			for k, w := range e.fb[m] {
				energy += w * spec[k]
			}
			if energy < cfg.EnergyFloor {
				energy = cfg.EnergyFloor
			}
			mel[m] = math.Log(energy)
		}
		coeffs := make([]float64, cfg.NumCoeffs)
		for k := 0; k < cfg.NumCoeffs; k++ {
			var sum float64
			for j, w := range e.dct[k] {
				sum += w * mel[j]
			}
			coeffs[k] = sum
		}
		mfcc[f] = coeffs
	}

	out := make([]float32, 0, e.Dimension())
	out = append(out, e.mfccStats(mfcc)...)
	out = append(out, e.prosodicFeatures(raw, power)...)

	for i, v := range out {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			out[i] = 0
		}
	}
	return Normalize(out)
}

// mfccStats computes per-coefficient means and standard deviations over all
// frames, plus delta means over the interior frames. Delta coefficients use
// a regression window of ±DeltaWindow frames; the boundary frames that lack
// a full window are dropped from the delta statistics.
func (e *FeatureExtractor) mfccStats(mfcc [][]float64) []float32 {
	nc := e.cfg.NumCoeffs
	dw := e.cfg.DeltaWindow
	numFrames := len(mfcc)

	means := make([]float64, nc)
	for _, frame := range mfcc {
		for k, c := range frame {
			means[k] += c
		}
	}
	for k := range means {
		means[k] /= float64(numFrames)
	}

	stds := make([]float64, nc)
	for _, frame := range mfcc {
		for k, c := range frame {
			d := c - means[k]
			stds[k] += d * d
		}
	}
	for k := range stds {
		stds[k] = math.Sqrt(stds[k] / float64(numFrames))
	}

	// Delta regression denominator: 2 * sum(j^2) for j in 1..dw.
	var denom float64
	for j := 1; j <= dw; j++ {
		denom += float64(j * j)
	}
	denom *= 2

	deltaMeans := make([]float64, nc)
	interior := 0
	for t := dw; t < numFrames-dw; t++ {
		for k := 0; k < nc; k++ {
			var num float64
			for j := 1; j <= dw; j++ {
				num += float64(j) * (mfcc[t+j][k] - mfcc[t-j][k])
			}
			deltaMeans[k] += num / denom
		}
		interior++
	}
	if interior > 0 {
		for k := range deltaMeans {
			deltaMeans[k] /= float64(interior)
		}
	}

	out := make([]float32, 0, 3*nc)
	for _, v := range means {
		out = append(out, float32(v))
	}
	for _, v := range stds {
		out = append(out, float32(v))
	}
	for _, v := range deltaMeans {
		out = append(out, float32(v))
	}
	return out
}

// prosodicFeatures computes the eight scalar features: RMS energy mean and
// std over 25ms windows with 50% overlap, zero-crossing rate, pitch mean
// (/500) and std (/100) from autocorrelation, spectral centroid (/8000),
// 85% spectral rolloff (/8000), and speaking rate in peaks per second.
func (e *FeatureExtractor) prosodicFeatures(raw []float64, power [][]float64) []float32 {
	cfg := e.cfg
	n := len(raw)

	// RMS over 25ms windows, 50% overlap.
	var rmsVals []float64
	win := cfg.FrameLength
	for off := 0; off+win <= n; off += win / 2 {
		rmsVals = append(rmsVals, rms(raw[off:off+win]))
	}
	rmsMean, rmsStd := meanStd(rmsVals)

	// Zero-crossing rate over the whole buffer.
	crossings := 0
	for i := 1; i < n; i++ {
		if (raw[i] >= 0) != (raw[i-1] >= 0) {
			crossings++
		}
	}
	zcr := float64(crossings) / float64(n-1)

	pitchMean, pitchStd := e.pitchStats(raw)
	centroid, rolloff := e.spectralStats(power)
	rate := e.speakingRate(raw)

	return []float32{
		float32(rmsMean),
		float32(rmsStd),
		float32(zcr),
		float32(pitchMean / 500),
		float32(pitchStd / 100),
		float32(centroid / 8000),
		float32(rolloff / 8000),
		float32(rate),
	}
}

// pitchStats estimates pitch per 30ms frame by picking the strongest
// autocorrelation lag between 50Hz and 500Hz, then returns the mean and
// standard deviation of the voiced frames' pitches in Hz.
func (e *FeatureExtractor) pitchStats(raw []float64) (mean, std float64) {
	rate := e.cfg.SampleRate
	frame := rate * 30 / 1000
	minLag := rate / 500
	maxLag := rate / 50
	if maxLag >= frame {
		maxLag = frame - 1
	}

	var pitches []float64
	for off := 0; off+frame <= len(raw); off += frame {
		seg := raw[off : off+frame]
		bestLag, bestCorr := 0, 0.0
		for lag := minLag; lag <= maxLag; lag++ {
			var corr float64
			for i := 0; i+lag < len(seg); i++ {
				corr += seg[i] * seg[i+lag]
			}
			if corr > bestCorr {
				bestCorr = corr
				bestLag = lag
			}
		}
		if bestLag > 0 && bestCorr > 0 {
			pitches = append(pitches, float64(rate)/float64(bestLag))
		}
	}
	return meanStd(pitches)
}

// spectralStats averages per-frame spectral centroid and 85% rolloff
// frequency over frames with nonzero energy, in Hz.
func (e *FeatureExtractor) spectralStats(power [][]float64) (centroid, rolloff float64) {
	rate := float64(e.cfg.SampleRate)
	fftSize := float64(e.cfg.FFTSize)

	var centroids, rolloffs []float64
	for _, spec := range power {
		var total float64
		for _, p := range spec {
			total += p
		}
		if total <= 0 {
			continue
		}

		var weighted float64
		for k, p := range spec {
			weighted += float64(k) * rate / fftSize * p
		}
		centroids = append(centroids, weighted/total)

		target := 0.85 * total
		var cum float64
		for k, p := range spec {
			cum += p
			if cum >= target {
				rolloffs = append(rolloffs, float64(k)*rate/fftSize)
				break
			}
		}
	}
	centroid, _ = meanStd(centroids)
	rolloff, _ = meanStd(rolloffs)
	return centroid, rolloff
}

// speakingRate counts peaks above 0.05 in a smoothed 20ms RMS energy
// envelope and reports them per second of audio.
func (e *FeatureExtractor) speakingRate(raw []float64) float64 {
	rate := e.cfg.SampleRate
	win := rate * 20 / 1000

	var env []float64
	for off := 0; off+win <= len(raw); off += win {
		env = append(env, rms(raw[off:off+win]))
	}
	if len(env) < 3 {
		return 0
	}

	// 3-point moving average.
	smooth := make([]float64, len(env))
	smooth[0] = (env[0] + env[1]) / 2
	smooth[len(env)-1] = (env[len(env)-2] + env[len(env)-1]) / 2
	for i := 1; i < len(env)-1; i++ {
		smooth[i] = (env[i-1] + env[i] + env[i+1]) / 3
	}

	peaks := 0
	for i := 1; i < len(smooth)-1; i++ {
		if smooth[i] > 0.05 && smooth[i] > smooth[i-1] && smooth[i] >= smooth[i+1] {
			peaks++
		}
	}
	seconds := float64(len(raw)) / float64(rate)
	return float64(peaks) / seconds
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func meanStd(x []float64) (mean, std float64) {
	if len(x) == 0 {
		return 0, 0
	}
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	for _, v := range x {
		d := v - mean
		std += d * d
	}
	return mean, math.Sqrt(std / float64(len(x)))
}
