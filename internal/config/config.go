// Package config loads server settings from the environment and client
// settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

// Server is the configuration of the backend API
type Server struct {
	Port     string
	LogLevel string
	Storage  string

	MongoURI      string
	MongoDatabase string

	ElevenLabsAPIKey      string
	ElevenLabsAPIBaseURL  string
	ElevenLabsBaseAgentID string

	GeminiAPIKey string
	GeminiModel  string

	// GoogleSpeech enables Google speech-to-text; credentials come from
	// GOOGLE_APPLICATION_CREDENTIALS.
	GoogleSpeech bool

	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string

	CORSOrigins []string
}

// LoadServer reads the server configuration from the environment. Values in
// envFile, when it exists, are loaded first without overriding the process
// environment.
func LoadServer(envFile string) (*Server, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := &Server{
		Port:                  envStr("PORT", "8000"),
		LogLevel:              envStr("LOG_LEVEL", "info"),
		Storage:               envStr("STORAGE", StorageMongo),
		MongoURI:              envStr("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:         envStr("MONGODB_DATABASE", "voiceagent"),
		ElevenLabsAPIKey:      os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsAPIBaseURL:  os.Getenv("ELEVENLABS_API_BASE_URL"),
		ElevenLabsBaseAgentID: os.Getenv("ELEVENLABS_BASE_AGENT_ID"),
		GeminiAPIKey:          os.Getenv("GEMINI_API_KEY"),
		GeminiModel:           os.Getenv("GEMINI_MODEL"),
		GoogleSpeech:          os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "",
		MQTTBroker:            os.Getenv("MQTT_BROKER"),
		MQTTClientID:          os.Getenv("MQTT_CLIENT_ID"),
		MQTTUsername:          os.Getenv("MQTT_USERNAME"),
		MQTTPassword:          os.Getenv("MQTT_PASSWORD"),
		MQTTTopicPrefix:       os.Getenv("MQTT_TOPIC_PREFIX"),
		CORSOrigins:           envList("CORS_ORIGINS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the server configuration
func (s *Server) Validate() error {
	if _, err := strconv.Atoi(s.Port); err != nil {
		return fmt.Errorf("invalid PORT %q", s.Port)
	}
	switch s.Storage {
	case StorageMongo, StorageMemory:
	default:
		return fmt.Errorf("invalid STORAGE %q, expected %s or %s", s.Storage, StorageMongo, StorageMemory)
	}
	if s.ElevenLabsAPIKey == "" {
		return errors.New("ELEVENLABS_API_KEY is required")
	}
	return nil
}

// Client is the configuration of the voice client
type Client struct {
	APIURL           string        `yaml:"api_url"`
	AgentID          string        `yaml:"agent_id"`
	Channel          string        `yaml:"channel"`
	LogLevel         string        `yaml:"log_level"`
	BootstrapTimeout time.Duration `yaml:"bootstrap_timeout"`
	Audio            AudioConfig   `yaml:"audio"`
}

// AudioConfig controls microphone capture
type AudioConfig struct {
	SampleRate       int   `yaml:"sample_rate"`
	FrameSize        int   `yaml:"frame_size"`
	EchoCancellation *bool `yaml:"echo_cancellation"`
	NoiseSuppression *bool `yaml:"noise_suppression"`
}

// DefaultClient returns the client defaults
func DefaultClient() *Client {
	echoCancellation, noiseSuppression := true, true
	return &Client{
		APIURL:           "http://localhost:8000",
		Channel:          "voice",
		LogLevel:         "info",
		BootstrapTimeout: 15 * time.Second,
		Audio: AudioConfig{
			SampleRate:       16000,
			FrameSize:        4096,
			EchoCancellation: &echoCancellation,
			NoiseSuppression: &noiseSuppression,
		},
	}
}

// LoadClient reads the client configuration from a YAML file. An empty path
// uses the defaults. VOICEAGENT_API_URL, VOICEAGENT_AGENT_ID and LOG_LEVEL
// override the file.
func LoadClient(path string) (*Client, error) {
	cfg := DefaultClient()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.APIURL = envStr("VOICEAGENT_API_URL", cfg.APIURL)
	cfg.AgentID = envStr("VOICEAGENT_AGENT_ID", cfg.AgentID)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)

	if cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample_rate %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.FrameSize <= 0 {
		return nil, fmt.Errorf("invalid frame_size %d", cfg.Audio.FrameSize)
	}
	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	var values []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
