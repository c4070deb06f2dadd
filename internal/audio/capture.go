package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Device failure categories. These abort the current capture attempt and
// surface a user-facing notice; they never crash the conversation view.
var (
	// ErrDeviceUnavailable means no compatible capture API is present.
	ErrDeviceUnavailable = errors.New("audio: capture device unavailable")
	// ErrPermissionDenied means the user declined microphone access.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")
	// ErrDeviceNotFound means no capture device could be located.
	ErrDeviceNotFound = errors.New("audio: capture device not found")
)

// DeviceError wraps a device failure with the operation that produced it.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio: %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// SampleFunc receives encoded PCM16 samples pushed by the capture source.
// The slice is owned by the callee.
type SampleFunc func(samples []int16)

// Source acquires a microphone stream and pushes raw sample frames at the
// device's native cadence. Implementations own the device lifecycle; the
// returned session is the only handle through which it is released.
type Source interface {
	Start(ctx context.Context, deliver SampleFunc) (*CaptureSession, error)
}

// CaptureSession owns one live device stream and its level-meter resource.
// Exactly one session may be live per Source; starting a new one requires
// fully stopping the prior one first.
type CaptureSession struct {
	meter   *Meter
	release func() error

	active bool
	mu     sync.Mutex
}

// NewCaptureSession wraps a device release hook and an optional meter into
// a session handle. Used by Source implementations and test fakes.
func NewCaptureSession(meter *Meter, release func() error) *CaptureSession {
	return &CaptureSession{meter: meter, release: release, active: true}
}

// Stop releases the device and the visualizer resource. It is idempotent:
// stopping an already-stopped session is a no-op with no side effects.
func (s *CaptureSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil
	}
	s.active = false
	if s.meter != nil {
		s.meter.Reset()
	}
	if s.release == nil {
		return nil
	}
	return s.release()
}

// Active reports whether the device stream is still held.
func (s *CaptureSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Level returns the current input level in [0, 1] for the visualizer, or 0
// when the session carries no meter.
func (s *CaptureSession) Level() float64 {
	if s.meter == nil {
		return 0
	}
	return s.meter.Level()
}
