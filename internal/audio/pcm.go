package audio

import (
	"fmt"
	"math"
)

// Audio format constants shared across the pipeline. The recognizer expects
// 16 kHz mono PCM-16 delivered in 200 ms frames.
const (
	SampleRate   = 16000
	Channels     = 1
	FrameSamples = 3200 // 200 ms at 16 kHz
)

// EncodePCM16 converts floating-point samples in [-1, 1] to signed 16-bit
// PCM. Out-of-range samples are clamped, never rejected. Negative and
// positive samples are scaled by 32768 and 32767 respectively; this
// asymmetry matches naive PCM consumers bit-for-bit and must not be
// "fixed" to a symmetric scale.
func EncodePCM16(src []float32) []int16 {
	out := make([]int16, len(src))
	for i, s := range src {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		if s < 0 {
			out[i] = int16(math.Round(float64(s) * 32768))
		} else {
			out[i] = int16(math.Round(float64(s) * 32767))
		}
	}
	return out
}

// PCM16Bytes serializes samples as little-endian PCM-16 bytes, the layout
// used both on the recognizer wire format and inside WAV data chunks.
func PCM16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

// SamplesFromBytes parses little-endian PCM-16 bytes back into samples.
func SamplesFromBytes(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm data length must be even (got %d bytes)", len(data))
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples, nil
}
