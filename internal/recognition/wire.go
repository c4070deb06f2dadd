package recognition

import (
	"encoding/binary"
	"fmt"

	"github.com/wngkj/RoleVerse/internal/audio"
)

// Wire protocol constants.
const (
	// Frame types
	FrameTypeAudio = 0x01 // full fixed-size frame
	FrameTypeFinal = 0x02 // partial trailing frame flushed at stop

	// Frame structure sizes
	FrameHeaderSize = 7 // 1 + 4 + 2 bytes

	// MaxPayloadSize is the largest PCM payload a single frame can carry,
	// bounded by the 16-bit length field.
	MaxPayloadSize = 65535
)

// FrameHeader is the 7-byte header preceding every binary audio frame.
// Layout: [FrameType:1][Sequence:4][PayloadLen:2]
type FrameHeader struct {
	FrameType  uint8  // 0x01=Audio, 0x02=Final
	Sequence   uint32 // Monotonic frame counter within a session
	PayloadLen uint16 // PCM payload size in bytes
}

// Frame is a fully parsed binary audio frame. PCM holds little-endian
// 16-bit samples.
type Frame struct {
	Header FrameHeader
	PCM    []byte
}

// IsValidFrameType reports whether t names a known frame type.
func IsValidFrameType(t uint8) bool {
	return t == FrameTypeAudio || t == FrameTypeFinal
}

// EncodeFrame serializes samples into a wire frame. Header fields are
// big-endian; the PCM payload is little-endian per the capture format.
func EncodeFrame(frameType uint8, sequence uint32, samples []int16) ([]byte, error) {
	if !IsValidFrameType(frameType) {
		return nil, fmt.Errorf("invalid frame type: 0x%02x", frameType)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty frame")
	}
	payloadLen := len(samples) * 2
	if payloadLen > MaxPayloadSize {
		return nil, fmt.Errorf("frame payload too large: %d bytes (maximum %d)", payloadLen, MaxPayloadSize)
	}

	buf := make([]byte, FrameHeaderSize, FrameHeaderSize+payloadLen)
	buf[0] = frameType
	binary.BigEndian.PutUint32(buf[1:5], sequence)
	binary.BigEndian.PutUint16(buf[5:7], uint16(payloadLen))
	return append(buf, audio.PCM16Bytes(samples)...), nil
}

// ParseFrameHeader parses the 7-byte frame header.
func ParseFrameHeader(data []byte) (*FrameHeader, error) {
	if len(data) < FrameHeaderSize {
		return nil, fmt.Errorf("frame header too short: expected %d bytes, got %d", FrameHeaderSize, len(data))
	}
	return &FrameHeader{
		FrameType:  data[0],
		Sequence:   binary.BigEndian.Uint32(data[1:5]),
		PayloadLen: binary.BigEndian.Uint16(data[5:7]),
	}, nil
}

// ParseFrame parses a complete binary frame and validates its header
// against the actual payload.
func ParseFrame(data []byte) (*Frame, error) {
	header, err := ParseFrameHeader(data)
	if err != nil {
		return nil, err
	}
	if !IsValidFrameType(header.FrameType) {
		return nil, fmt.Errorf("invalid frame type: 0x%02x", header.FrameType)
	}

	payload := data[FrameHeaderSize:]
	if len(payload) != int(header.PayloadLen) {
		return nil, fmt.Errorf("frame length mismatch: header says %d bytes, got %d bytes",
			header.PayloadLen, len(payload))
	}
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("frame payload not sample-aligned: %d bytes", len(payload))
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("frame carries no audio data")
	}

	frame := &Frame{Header: *header, PCM: make([]byte, len(payload))}
	copy(frame.PCM, payload)
	return frame, nil
}

// Samples decodes the frame payload into PCM-16 samples.
func (f *Frame) Samples() ([]int16, error) {
	return audio.SamplesFromBytes(f.PCM)
}
