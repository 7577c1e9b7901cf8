package repositories

import "context"

// AudioConfig describes an uploaded recording. Empty fields let the
// recognizer pick its defaults.
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// SpeechToText transcribes a complete recording
type SpeechToText interface {
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (string, error)
}

// SpeechOptions overrides the synthesis defaults of a TextToSpeech adapter.
// Empty fields keep the adapter defaults.
type SpeechOptions struct {
	VoiceID      string
	ModelID      string
	OutputFormat string
}

// TextToSpeech streams encoded audio chunks for text. The channel is closed
// when synthesis ends.
type TextToSpeech interface {
	ConvertTextToSpeech(ctx context.Context, text string, opts SpeechOptions) (<-chan []byte, error)
}
