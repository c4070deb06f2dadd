package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// CaptureConfig contains capture device parameters.
type CaptureConfig struct {
	SampleRate   int // pipeline rate, 16000
	BufferFrames int // device callback buffer size in samples
	RingCapacity int // samples buffered between the callback and the pipeline
	// OnDrop is invoked with the number of samples evicted when the ring
	// overflows. Optional.
	OnDrop func(dropped int)
}

// PortAudioSource captures microphone audio through PortAudio. Samples are
// pushed from the device callback; the callback itself never blocks on
// downstream work.
type PortAudioSource struct {
	config CaptureConfig
	logger *slog.Logger
}

// NewPortAudioSource creates a PortAudio-backed capture source.
func NewPortAudioSource(config CaptureConfig, logger *slog.Logger) *PortAudioSource {
	if config.SampleRate <= 0 {
		config.SampleRate = SampleRate
	}
	if config.BufferFrames <= 0 {
		config.BufferFrames = 480 // 30 ms at 16 kHz
	}
	if config.RingCapacity <= 0 {
		config.RingCapacity = config.SampleRate // one second
	}
	return &PortAudioSource{config: config, logger: logger}
}

// Start acquires the default input device and begins pushing samples to
// deliver. Both the device stream and the PortAudio runtime are released by
// the returned session's Stop.
func (s *PortAudioSource) Start(ctx context.Context, deliver SampleFunc) (*CaptureSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, &DeviceError{Op: "initialize", Err: fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)}
	}

	meter := NewMeter(0.3)
	ring := NewRing(s.config.RingCapacity)
	wake := make(chan struct{}, 1)

	// The device callback must return quickly, so it only encodes into the
	// ring; the pump goroutine below carries samples into the pipeline.
	stream, err := portaudio.OpenDefaultStream(Channels, 0, float64(s.config.SampleRate), s.config.BufferFrames,
		func(in []float32) {
			pcm := EncodePCM16(in)
			meter.Observe(pcm)
			if dropped := ring.Write(pcm); dropped > 0 && s.config.OnDrop != nil {
				s.config.OnDrop(dropped)
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		})
	if err != nil {
		portaudio.Terminate()
		return nil, classifyDeviceError("open stream", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, classifyDeviceError("start stream", err)
	}

	done := make(chan struct{})
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		for {
			select {
			case <-done:
				// Drain what the callback managed to buffer.
				if tail := ring.Read(ring.Len()); len(tail) > 0 {
					deliver(tail)
				}
				return
			case <-wake:
				for {
					chunk := ring.Read(s.config.BufferFrames)
					if chunk == nil {
						break
					}
					deliver(chunk)
				}
			}
		}
	}()

	s.logger.Info("Capture started",
		slog.Int("sample_rate", s.config.SampleRate),
		slog.Int("buffer_frames", s.config.BufferFrames),
	)

	return NewCaptureSession(meter, func() error {
		stopErr := stream.Stop()
		closeErr := stream.Close()
		portaudio.Terminate()
		close(done)
		<-pumped
		stats := ring.Stats()
		s.logger.Info("Capture stopped",
			slog.Uint64("samples_written", stats.SamplesWritten),
			slog.Uint64("samples_dropped", stats.SamplesDropped),
		)
		if stopErr != nil {
			return &DeviceError{Op: "stop stream", Err: stopErr}
		}
		if closeErr != nil {
			return &DeviceError{Op: "close stream", Err: closeErr}
		}
		return nil
	}), nil
}

// classifyDeviceError maps PortAudio failures onto the pipeline's device
// error categories.
func classifyDeviceError(op string, err error) error {
	var paErr portaudio.Error
	if errors.As(err, &paErr) {
		switch paErr {
		case portaudio.DeviceUnavailable:
			return &DeviceError{Op: op, Err: fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)}
		case portaudio.InvalidDevice:
			return &DeviceError{Op: op, Err: fmt.Errorf("%w: %v", ErrDeviceNotFound, err)}
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "denied"):
		return &DeviceError{Op: op, Err: fmt.Errorf("%w: %v", ErrPermissionDenied, err)}
	case strings.Contains(msg, "no default input") || strings.Contains(msg, "no such device"):
		return &DeviceError{Op: op, Err: fmt.Errorf("%w: %v", ErrDeviceNotFound, err)}
	default:
		return &DeviceError{Op: op, Err: fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)}
	}
}
