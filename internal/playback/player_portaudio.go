package playback

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/wngkj/RoleVerse/internal/audio"
)

const playbackBufferFrames = 1024

// PortAudioPlayer plays mono PCM-16 on the default output device. Each
// Play call owns the device for its duration; the queue serializes calls.
type PortAudioPlayer struct{}

// NewPortAudioPlayer creates a player for the default output device.
func NewPortAudioPlayer() *PortAudioPlayer {
	return &PortAudioPlayer{}
}

// Play writes samples to the output device in fixed-size buffers and
// returns when the payload has been fully written or ctx is cancelled.
func (p *PortAudioPlayer) Play(ctx context.Context, samples []int16, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}

	if err := portaudio.Initialize(); err != nil {
		return &Error{Op: "initialize", Err: err}
	}
	defer portaudio.Terminate()

	buffer := make([]int16, playbackBufferFrames)
	stream, err := portaudio.OpenDefaultStream(0, audio.Channels, float64(sampleRate), playbackBufferFrames, &buffer)
	if err != nil {
		return &Error{Op: "open output stream", Err: err}
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return &Error{Op: "start output stream", Err: err}
	}
	defer stream.Stop()

	for offset := 0; offset < len(samples); offset += playbackBufferFrames {
		select {
		case <-ctx.Done():
			return fmt.Errorf("playback interrupted: %w", ctx.Err())
		default:
		}

		end := offset + playbackBufferFrames
		if end > len(samples) {
			end = len(samples)
		}
		n := copy(buffer, samples[offset:end])
		for i := n; i < len(buffer); i++ {
			buffer[i] = 0
		}
		if err := stream.Write(); err != nil {
			return &Error{Op: "write samples", Err: err}
		}
	}
	return nil
}
