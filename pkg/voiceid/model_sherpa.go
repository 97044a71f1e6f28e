package voiceid

import (
	"fmt"
	"os"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// SherpaModel implements [Model] using sherpa-onnx speaker embedding
// extraction. It wraps a sherpa SpeakerEmbeddingExtractor and handles the
// full pipeline from float32 samples to embedding vector.
//
// # Thread Safety
//
// SherpaModel is safe for concurrent use; the underlying C extractor is
// not documented as reentrant, so Extract serializes on a mutex. Each
// call feeds its own stream.
type SherpaModel struct {
	mu         sync.Mutex
	extractor  *sherpa.SpeakerEmbeddingExtractor
	dim        int
	sampleRate int
	closed     bool
}

// SherpaModelOption configures a SherpaModel.
type SherpaModelOption func(*sherpaSettings)

type sherpaSettings struct {
	numThreads int
	provider   string
	debug      int
	sampleRate int
}

// WithSherpaNumThreads sets the ONNX Runtime intra-op thread count.
// Default: 1.
func WithSherpaNumThreads(n int) SherpaModelOption {
	return func(s *sherpaSettings) {
		if n > 0 {
			s.numThreads = n
		}
	}
}

// WithSherpaProvider sets the execution provider ("cpu", "cuda", "coreml").
// Default: "cpu".
func WithSherpaProvider(provider string) SherpaModelOption {
	return func(s *sherpaSettings) {
		if provider != "" {
			s.provider = provider
		}
	}
}

// WithSherpaDebug enables sherpa-onnx debug logging.
func WithSherpaDebug(debug bool) SherpaModelOption {
	return func(s *sherpaSettings) {
		if debug {
			s.debug = 1
		}
	}
}

// NewSherpaModel creates a SherpaModel from an ONNX speaker embedding
// model file.
func NewSherpaModel(modelPath string, opts ...SherpaModelOption) (*SherpaModel, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("voiceid: model file: %w", err)
	}

	settings := sherpaSettings{
		numThreads: 1,
		provider:   "cpu",
		sampleRate: 16000,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	config := sherpa.SpeakerEmbeddingExtractorConfig{
		Model:      modelPath,
		NumThreads: settings.numThreads,
		Debug:      settings.debug,
		Provider:   settings.provider,
	}
	extractor := sherpa.NewSpeakerEmbeddingExtractor(&config)
	if extractor == nil {
		return nil, fmt.Errorf("voiceid: load speaker model %q failed", modelPath)
	}

	return &SherpaModel{
		extractor:  extractor,
		dim:        extractor.Dim(),
		sampleRate: settings.sampleRate,
	}, nil
}

// Extract implements [Model]. It feeds the samples through a fresh stream
// and computes the embedding.
func (m *SherpaModel) Extract(samples []float32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("voiceid: model is closed")
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("voiceid: empty audio")
	}

	stream := m.extractor.CreateStream()
	if stream == nil {
		return nil, fmt.Errorf("voiceid: create stream failed")
	}
	defer sherpa.DeleteOnlineStream(stream)

	stream.AcceptWaveform(m.sampleRate, samples)
	stream.InputFinished()

	if !m.extractor.IsReady(stream) {
		return nil, fmt.Errorf("voiceid: audio too short for embedding")
	}
	embedding := m.extractor.Compute(stream)
	if len(embedding) == 0 {
		return nil, fmt.Errorf("voiceid: empty embedding from model")
	}
	return embedding, nil
}

// Dimension implements [Model].
func (m *SherpaModel) Dimension() int {
	return m.dim
}

// Close implements [Model].
func (m *SherpaModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.extractor != nil {
		sherpa.DeleteSpeakerEmbeddingExtractor(m.extractor)
		m.extractor = nil
	}
	return nil
}
