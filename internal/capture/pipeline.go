// Package capture streams microphone frames to the agent connection.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/escal8/voiceagent/domain/repositories"
	"github.com/escal8/voiceagent/internal/audio"
	"github.com/escal8/voiceagent/internal/websocket"
)

// Sender is the part of a stream connection the pipeline writes to
type Sender interface {
	IsOpen() bool
	Send(v interface{}) error
}

// Config controls the requested microphone stream. Echo cancellation and
// noise suppression are requested unless disabled.
type Config struct {
	SampleRate              int
	FrameSize               int
	DisableEchoCancellation bool
	DisableNoiseSuppression bool
}

// DefaultConfig returns mono 16 kHz capture in 4096-sample frames
func DefaultConfig() Config {
	return Config{
		SampleRate: audio.SampleRate,
		FrameSize:  audio.FrameSize,
	}
}

type handle struct {
	stream repositories.AudioStream
	cancel context.CancelFunc
	done   chan struct{}
}

// Pipeline owns the microphone while streaming
type Pipeline struct {
	mic    repositories.Microphone
	config Config
	logger *zap.Logger

	mu        sync.Mutex
	handle    *handle
	streaming bool

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewPipeline creates a capture pipeline. Zero config fields take defaults.
func NewPipeline(mic repositories.Microphone, config Config, logger *zap.Logger) *Pipeline {
	defaults := DefaultConfig()
	if config.SampleRate == 0 {
		config.SampleRate = defaults.SampleRate
	}
	if config.FrameSize == 0 {
		config.FrameSize = defaults.FrameSize
	}

	return &Pipeline{
		mic:    mic,
		config: config,
		logger: logger,
	}
}

// Start opens the microphone and streams frames to conn until Stop.
// Calling Start while streaming is a no-op.
func (p *Pipeline) Start(ctx context.Context, conn Sender) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != nil {
		return nil
	}

	stream, err := p.mic.Open(ctx, repositories.CaptureConfig{
		SampleRate:       p.config.SampleRate,
		Channels:         1,
		EchoCancellation: !p.config.DisableEchoCancellation,
		NoiseSuppression: !p.config.DisableNoiseSuppression,
	})
	if err != nil {
		return fmt.Errorf("failed to open microphone: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	h := &handle{
		stream: stream,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.handle = h
	p.streaming = true

	go p.run(loopCtx, h, conn)

	p.logger.Info("Microphone streaming started",
		zap.Int("sampleRate", p.config.SampleRate),
		zap.Int("frameSize", p.config.FrameSize))
	return nil
}

// Stop releases the microphone and waits for the frame loop to exit.
// Safe to call when not streaming.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	h := p.handle
	p.handle = nil
	p.streaming = false
	p.mu.Unlock()

	if h == nil {
		return
	}

	h.cancel()
	if err := h.stream.Close(); err != nil {
		p.logger.Warn("Failed to close microphone stream", zap.Error(err))
	}
	<-h.done

	p.logger.Info("Microphone streaming stopped",
		zap.Uint64("sent", p.sent.Load()),
		zap.Uint64("dropped", p.dropped.Load()))
}

// Streaming reports whether frames are being captured
func (p *Pipeline) Streaming() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streaming
}

// Stats returns the number of frames sent and dropped
func (p *Pipeline) Stats() (sent, dropped uint64) {
	return p.sent.Load(), p.dropped.Load()
}

func (p *Pipeline) run(ctx context.Context, h *handle, conn Sender) {
	defer close(h.done)

	frame := make([]float32, p.config.FrameSize)
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := h.stream.ReadFrame(frame)
		if n > 0 && ctx.Err() == nil {
			p.ProcessFrame(conn, frame[:n])
		}
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				p.logger.Error("Failed to read microphone frame", zap.Error(err))
			}
			p.mu.Lock()
			if p.handle == h {
				p.streaming = false
			}
			p.mu.Unlock()
			return
		}
	}
}

// ProcessFrame encodes one frame and sends it if the connection is open.
// Frames are dropped silently otherwise.
func (p *Pipeline) ProcessFrame(conn Sender, frame []float32) bool {
	if !conn.IsOpen() {
		p.dropped.Add(1)
		return false
	}

	if err := conn.Send(websocket.CreateUserAudioChunkMessage(audio.EncodeFrame(frame))); err != nil {
		p.dropped.Add(1)
		p.logger.Debug("Dropped audio frame", zap.Error(err))
		return false
	}

	p.sent.Add(1)
	return true
}
