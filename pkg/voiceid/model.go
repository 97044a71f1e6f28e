package voiceid

// Model extracts speaker embedding vectors from raw audio.
//
// The input is 16kHz mono float32 samples in [-1, 1). The output is a
// dense float32 vector whose dimensionality is returned by Dimension().
//
// Typical implementations run a speaker verification model (e.g.,
// ECAPA-TDNN, ResNet) under ONNX Runtime and produce a 256-dimensional
// embedding per audio segment.
//
// # Audio Requirements
//
//   - Sample rate: 16000 Hz
//   - Channels: 1 (mono)
//   - Minimum duration: ~400ms (6400 samples) for meaningful embeddings
//
// Callers normalize duration before extraction; [NeuralVerifier] loop-pads
// or truncates every utterance to a fixed window so embeddings are
// comparable.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Multiple goroutines
// may call Extract simultaneously.
type Model interface {
	// Extract computes a speaker embedding from 16kHz mono float32
	// samples. Returns a vector of length Dimension().
	Extract(samples []float32) ([]float32, error)

	// Dimension returns the dimensionality of the embedding vectors
	// produced by Extract (e.g., 256).
	Dimension() int

	// Close releases any resources held by the model (e.g., ONNX session).
	Close() error
}
