package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeWAVRoundTrip(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768, 5000}

	data, err := EncodeWAV(samples, SampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if len(data) != wavHeaderSize+len(samples)*2 {
		t.Errorf("encoded size = %d, want %d", len(data), wavHeaderSize+len(samples)*2)
	}
	if !IsWAV(data) {
		t.Error("IsWAV rejected encoded payload")
	}

	back, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != SampleRate {
		t.Errorf("sample rate = %d, want %d", rate, SampleRate)
	}
	if len(back) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(back), len(samples))
	}
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("sample %d: got %d, want %d", i, back[i], samples[i])
		}
	}
}

func TestEncodeWAVValidation(t *testing.T) {
	if _, err := EncodeWAV(nil, SampleRate); err == nil {
		t.Error("expected error for empty samples")
	}
	if _, err := EncodeWAV([]int16{1}, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestDecodeWAVSkipsUnknownChunks(t *testing.T) {
	samples := []int16{1, 2, 3, 4}
	data, err := EncodeWAV(samples, SampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	// Splice a LIST chunk between fmt and data, the way some synthesis
	// backends tag their output.
	var withList bytes.Buffer
	withList.Write(data[:12+8+16]) // RIFF header + fmt chunk
	withList.WriteString("LIST")
	binary.Write(&withList, binary.LittleEndian, uint32(4))
	withList.WriteString("INFO")
	withList.Write(data[12+8+16:]) // data chunk

	out := withList.Bytes()
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))

	back, _, err := DecodeWAV(out)
	if err != nil {
		t.Fatalf("DecodeWAV failed on payload with LIST chunk: %v", err)
	}
	if len(back) != len(samples) {
		t.Errorf("decoded %d samples, want %d", len(back), len(samples))
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	valid, _ := EncodeWAV([]int16{1, 2}, SampleRate)

	stereo := make([]byte, len(valid))
	copy(stereo, valid)
	binary.LittleEndian.PutUint16(stereo[22:24], 2) // NumChannels

	eightBit := make([]byte, len(valid))
	copy(eightBit, valid)
	binary.LittleEndian.PutUint16(eightBit[34:36], 8) // BitsPerSample

	truncated := make([]byte, len(valid))
	copy(truncated, valid)
	binary.LittleEndian.PutUint32(truncated[40:44], 1000) // data size beyond payload

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "not riff", data: []byte("this is not a wav file, honest")},
		{name: "header only", data: valid[:12]},
		{name: "stereo rejected", data: stereo},
		{name: "8-bit rejected", data: eightBit},
		{name: "data chunk exceeds payload", data: truncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeWAV(tt.data); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestIsWAV(t *testing.T) {
	data, _ := EncodeWAV([]int16{1}, SampleRate)
	if !IsWAV(data) {
		t.Error("expected true for wav payload")
	}
	if IsWAV([]byte("RIFFxxxx")) {
		t.Error("expected false for short payload")
	}
	if IsWAV(PCM16Bytes(seq(0, 100))) {
		t.Error("expected false for raw pcm")
	}
}
