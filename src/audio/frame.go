// Package audio holds PCM16 frames and the microphone capture primitives
// used by voice sessions.
package audio

import (
	"encoding/binary"
	"errors"
	"time"
)

// Common sample rates.
const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000

	// MaxFrameDuration bounds one frame so transport latency stays low.
	MaxFrameDuration = 100 * time.Millisecond
)

var (
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	ErrInvalidFrameSize  = errors.New("frame duration must be between 1ms and 100ms")
)

// Frame is a chunk of mono PCM16 samples at a fixed rate.
type Frame struct {
	Seq        int
	SampleRate int
	Samples    []int16
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Bytes encodes the samples as little-endian PCM16.
func (f Frame) Bytes() []byte {
	return EncodePCM16(f.Samples)
}

// EncodePCM16 encodes samples as little-endian PCM16.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DecodePCM16 decodes little-endian PCM16. A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Concat joins frames into one PCM16 buffer in sequence order of the slice.
func Concat(frames []Frame) []byte {
	var n int
	for _, f := range frames {
		n += len(f.Samples) * 2
	}
	out := make([]byte, 0, n)
	for _, f := range frames {
		out = append(out, f.Bytes()...)
	}
	return out
}
