package audio

import (
	"errors"
	"testing"
)

func TestCaptureSessionStopIdempotent(t *testing.T) {
	releases := 0
	s := NewCaptureSession(nil, func() error {
		releases++
		return nil
	})

	if !s.Active() {
		t.Fatal("new session should be active")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	if s.Active() {
		t.Error("session still active after stop")
	}
	for i := 0; i < 3; i++ {
		if err := s.Stop(); err != nil {
			t.Errorf("repeated stop %d returned error: %v", i, err)
		}
	}
	if releases != 1 {
		t.Errorf("release called %d times, want 1", releases)
	}
}

func TestCaptureSessionStopResetsMeter(t *testing.T) {
	m := NewMeter(1)
	loud := make([]int16, 10)
	for i := range loud {
		loud[i] = 10000
	}
	m.Observe(loud)

	s := NewCaptureSession(m, nil)
	if s.Level() <= 0 {
		t.Fatal("expected nonzero level before stop")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if s.Level() != 0 {
		t.Errorf("level after stop = %f, want 0", s.Level())
	}
}

func TestCaptureSessionReleaseError(t *testing.T) {
	want := errors.New("device busy")
	s := NewCaptureSession(nil, func() error { return want })

	if err := s.Stop(); !errors.Is(err, want) {
		t.Errorf("stop error = %v, want %v", err, want)
	}
	// The session is stopped even when release fails; retrying is a no-op.
	if err := s.Stop(); err != nil {
		t.Errorf("second stop returned %v, want nil", err)
	}
}

func TestDeviceErrorUnwrap(t *testing.T) {
	err := &DeviceError{Op: "open stream", Err: ErrPermissionDenied}
	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("DeviceError should unwrap to its category")
	}
}
