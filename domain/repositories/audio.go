package repositories

import "context"

// CaptureConfig describes the requested microphone stream
type CaptureConfig struct {
	SampleRate       int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
}

// AudioStream is an open microphone stream producing float32 samples in [-1, 1]
type AudioStream interface {
	// ReadFrame fills frame and returns the number of samples written
	ReadFrame(frame []float32) (int, error)
	Close() error
}

// Microphone acquires audio input streams
type Microphone interface {
	Open(ctx context.Context, config CaptureConfig) (AudioStream, error)
}

// AudioPlayer plays a mono buffer of normalized samples.
// Play blocks until playback completes or ctx is cancelled.
type AudioPlayer interface {
	Play(ctx context.Context, samples []float32, sampleRate int) error
}
