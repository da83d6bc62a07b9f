package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// MimePCM16K labels PCM16 chunks at the default 16kHz capture rate.
const MimePCM16K = "audio/pcm;rate=16000"

// MimePCM labels a PCM16 chunk with its actual sample rate.
func MimePCM(sampleRate int) string {
	if sampleRate <= 0 {
		return MimePCM16K
	}
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

const bytesPerSample = 2

// EncodeFloat32 converts float samples in [-1,1] to base64 PCM16LE. Samples
// outside the range are clamped before scaling so extremes never wrap.
func EncodeFloat32(samples []float32) string {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Round(float64(s) * 32767))
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(v))
	}
	return base64.StdEncoding.EncodeToString(out)
}

// DecodeBase64 decodes a base64 payload into raw bytes.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64 audio payload: %w", err)
	}
	return data, nil
}

// Buffer is decoded multi-channel audio ready for playback.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || len(b.Channels) == 0 || b.SampleRate <= 0 {
		return 0
	}
	frames := len(b.Channels[0])
	return time.Duration(float64(frames) / float64(b.SampleRate) * float64(time.Second))
}

// DecodeAudioData reconstructs interleaved PCM16LE bytes into per-channel
// float32 samples. The byte length must be a multiple of 2 bytes per channel;
// anything else is a malformed payload and is never retried by callers.
func DecodeAudioData(data []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("decode audio: invalid format %d Hz / %d ch", sampleRate, channels)
	}
	frameBytes := bytesPerSample * channels
	if len(data)%frameBytes != 0 {
		return nil, fmt.Errorf("decode audio: truncated payload: %d bytes is not a multiple of %d", len(data), frameBytes)
	}

	frames := len(data) / frameBytes
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for f := 0; f < frames; f++ {
		base := f * frameBytes
		for ch := 0; ch < channels; ch++ {
			v := int16(binary.LittleEndian.Uint16(data[base+ch*bytesPerSample:]))
			out[ch][f] = float32(v) / 32768
		}
	}
	return &Buffer{Channels: out, SampleRate: sampleRate}, nil
}

// Float32FromLE reinterprets little-endian float32 capture bytes as samples.
// Trailing partial samples are dropped.
func Float32FromLE(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
