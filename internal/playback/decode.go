package playback

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/wngkj/RoleVerse/internal/audio"
)

// decodePayload turns an opaque audio payload into playable samples. The
// synthesis backend sends WAV containers; older responses carry the same
// container base64-encoded, and anything else is treated as raw PCM-16 at
// the pipeline sample rate.
func decodePayload(payload []byte) ([]int16, int, error) {
	if len(payload) == 0 {
		return nil, 0, fmt.Errorf("empty audio payload")
	}

	if audio.IsWAV(payload) {
		return audio.DecodeWAV(payload)
	}

	if decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(payload))); err == nil {
		if audio.IsWAV(decoded) {
			return audio.DecodeWAV(decoded)
		}
		if samples, err := audio.SamplesFromBytes(decoded); err == nil {
			return samples, audio.SampleRate, nil
		}
	}

	samples, err := audio.SamplesFromBytes(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("payload is neither WAV, base64 nor raw PCM: %w", err)
	}
	return samples, audio.SampleRate, nil
}
