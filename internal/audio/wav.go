package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// wavFormat describes the fmt chunk of a PCM WAV file.
type wavFormat struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

const wavHeaderSize = 44

// EncodeWAV wraps PCM-16 mono samples in a minimal RIFF/WAVE container.
// Synthesized payloads from the backend use this exact layout.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	dataSize := uint32(len(samples) * 2)
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(samples)*2))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, wavFormat{
		AudioFormat:   1, // PCM
		NumChannels:   Channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * Channels * 2,
		BlockAlign:    Channels * 2,
		BitsPerSample: 16,
	})

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
	binary.Write(buf, binary.LittleEndian, samples)

	return buf.Bytes(), nil
}

// DecodeWAV parses a PCM WAV payload into samples and its sample rate.
// Only 16-bit mono PCM is supported; chunks other than fmt/data (LIST,
// fact, ...) are skipped rather than rejected, since synthesis backends
// disagree about what metadata they emit.
func DecodeWAV(data []byte) ([]int16, int, error) {
	if len(data) < 12 {
		return nil, 0, fmt.Errorf("wav data too short: need at least 12 bytes, got %d", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("invalid wav file: missing RIFF/WAVE header")
	}

	var format *wavFormat
	var pcm []byte

	// Walk the chunk list.
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			return nil, 0, fmt.Errorf("invalid wav file: %q chunk exceeds payload", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("invalid wav file: fmt chunk too short (%d bytes)", size)
			}
			f := &wavFormat{}
			if err := binary.Read(bytes.NewReader(data[body:body+16]), binary.LittleEndian, f); err != nil {
				return nil, 0, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			format = f
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	if format == nil {
		return nil, 0, fmt.Errorf("invalid wav file: missing fmt chunk")
	}
	if pcm == nil {
		return nil, 0, fmt.Errorf("invalid wav file: missing data chunk")
	}
	if format.AudioFormat != 1 {
		return nil, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", format.AudioFormat)
	}
	if format.BitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", format.BitsPerSample)
	}
	if format.NumChannels != 1 {
		return nil, 0, fmt.Errorf("unsupported channel count: %d (only mono is supported)", format.NumChannels)
	}

	samples, err := SamplesFromBytes(pcm)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read audio samples: %w", err)
	}
	if len(samples) == 0 {
		return nil, 0, fmt.Errorf("no audio data found")
	}
	return samples, int(format.SampleRate), nil
}

// IsWAV reports whether data begins with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}
