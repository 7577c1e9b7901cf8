// Package audio converts between normalized float32 samples and the
// base64 PCM16LE payloads carried on the conversation stream.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// SampleRate is the capture rate and the default playback rate.
	SampleRate = 16000

	// FrameSize is the number of samples per outbound chunk.
	FrameSize = 4096

	bytesPerSample = 2
)

// ErrUnsupportedFormat is returned for output formats that are not raw PCM.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Format is a negotiated output audio format such as "pcm_16000".
type Format struct {
	Name       string
	SampleRate int
}

// DefaultFormat is used until the server announces its output format.
var DefaultFormat = Format{Name: "pcm_16000", SampleRate: SampleRate}

// ParseFormat parses a "pcm_<rate>" format name.
func ParseFormat(name string) (Format, error) {
	rate, ok := strings.CutPrefix(name, "pcm_")
	if !ok {
		return Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	hz, err := strconv.Atoi(rate)
	if err != nil || hz <= 0 {
		return Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	return Format{Name: name, SampleRate: hz}, nil
}

// Float32ToPCM16 clamps each sample to [-1, 1] and scales it to int16.
// Negative samples scale by 32768 and non-negative by 32767.
func Float32ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if math.IsNaN(float64(s)) {
			continue
		}
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		if s < 0 {
			out[i] = int16(s * 32768)
		} else {
			out[i] = int16(s * 32767)
		}
	}
	return out
}

// PCM16ToBytes packs samples as little-endian 16-bit PCM.
func PCM16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(s))
	}
	return out
}

// BytesToPCM16 unpacks little-endian 16-bit PCM. A trailing odd byte is ignored.
func BytesToPCM16(data []byte) []int16 {
	out := make([]int16, len(data)/bytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*bytesPerSample:]))
	}
	return out
}

// PCM16ToFloat32 normalizes samples by dividing by 32768.
func PCM16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// EncodeFrame turns a captured frame into the base64 payload of a
// user_audio_chunk message.
func EncodeFrame(samples []float32) string {
	return base64.StdEncoding.EncodeToString(PCM16ToBytes(Float32ToPCM16(samples)))
}

// DecodeBase64PCM decodes an audio event payload into normalized samples.
func DecodeBase64PCM(payload string) ([]float32, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio payload: %w", err)
	}
	return PCM16ToFloat32(BytesToPCM16(data)), nil
}
