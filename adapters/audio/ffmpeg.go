// Package audio captures the microphone with ffmpeg and plays speech with ffplay.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/escal8/voiceagent/domain/repositories"
	pcm "github.com/escal8/voiceagent/internal/audio"
)

// FFmpegMicrophone opens the default input device through ffmpeg
type FFmpegMicrophone struct {
	goos   string
	logger *zap.Logger
}

var _ repositories.Microphone = (*FFmpegMicrophone)(nil)

// NewFFmpegMicrophone creates a microphone for the current platform
func NewFFmpegMicrophone(logger *zap.Logger) *FFmpegMicrophone {
	return &FFmpegMicrophone{goos: runtime.GOOS, logger: logger}
}

// Open starts ffmpeg and returns a stream of mono s16le samples
func (m *FFmpegMicrophone) Open(ctx context.Context, config repositories.CaptureConfig) (repositories.AudioStream, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for mic capture (install ffmpeg and ensure it is in PATH)")
	}

	args, err := micArgs(m.goos, config)
	if err != nil {
		return nil, err
	}
	if config.EchoCancellation {
		m.logger.Debug("Echo cancellation is left to the system audio server")
	}

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg mic capture: %w", err)
	}

	m.logger.Info("Microphone opened",
		zap.Int("sampleRate", config.SampleRate),
		zap.Bool("noiseSuppression", config.NoiseSuppression))

	return &micStream{reader: stdout, cmd: cmd}, nil
}

func micArgs(goos string, config repositories.CaptureConfig) ([]string, error) {
	var input []string
	switch goos {
	case "darwin":
		input = []string{"-f", "avfoundation", "-i", ":0"}
	case "linux":
		input = []string{"-f", "pulse", "-i", "default"}
	default:
		return nil, fmt.Errorf("mic capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}

	channels := config.Channels
	if channels <= 0 {
		channels = 1
	}
	sampleRate := config.SampleRate
	if sampleRate <= 0 {
		sampleRate = pcm.SampleRate
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	if config.NoiseSuppression {
		args = append(args, "-af", "afftdn")
	}
	args = append(args,
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le", "-",
	)
	return args, nil
}

type micStream struct {
	reader io.Reader
	cmd    *exec.Cmd
	buf    []byte

	closeOnce sync.Once
}

// ReadFrame reads up to len(frame) samples. A short final frame is
// returned before io.EOF.
func (s *micStream) ReadFrame(frame []float32) (int, error) {
	need := len(frame) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	n, err := io.ReadFull(s.reader, buf)
	samples := pcm.PCM16ToFloat32(pcm.BytesToPCM16(buf[:n]))
	copy(frame, samples)

	if errors.Is(err, io.ErrUnexpectedEOF) && len(samples) > 0 {
		return len(samples), nil
	}
	if err != nil {
		return len(samples), err
	}
	return len(samples), nil
}

// Close stops ffmpeg
func (s *micStream) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
			_ = s.cmd.Wait()
		}
	})
	return nil
}

// FFplayPlayer plays each buffer through a short-lived ffplay process
type FFplayPlayer struct {
	logger *zap.Logger
}

var _ repositories.AudioPlayer = (*FFplayPlayer)(nil)

// NewFFplayPlayer checks that ffplay is available
func NewFFplayPlayer(logger *zap.Logger) (*FFplayPlayer, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay is required for playback (install ffmpeg/ffplay and ensure it is in PATH)")
	}
	return &FFplayPlayer{logger: logger}, nil
}

// Play blocks until the buffer has been played or ctx is cancelled
func (p *FFplayPlayer) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}

	cmd := exec.CommandContext(ctx, "ffplay", playerArgs(sampleRate)...)
	cmd.Stdin = bytes.NewReader(pcm.PCM16ToBytes(pcm.Float32ToPCM16(samples)))
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffplay: %w", err)
	}
	return nil
}

func playerArgs(sampleRate int) []string {
	return []string{
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-i", "pipe:0",
	}
}
