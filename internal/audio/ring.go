package audio

import (
	"sync"
)

// Ring is a fixed-capacity sample buffer sitting between the device callback
// and the encoder. The callback must never block, so writes that would
// overflow the ring drop the oldest samples and count the loss instead of
// stalling the audio thread. This is the only buffering the capture side
// does; everything downstream consumes frames as they are assembled.
type Ring struct {
	buf   []int16
	head  int // read position
	count int // samples currently buffered

	// Statistics
	samplesWritten uint64
	samplesDropped uint64

	mu sync.Mutex
}

// RingStats reports ring buffer statistics for monitoring.
type RingStats struct {
	Capacity       int     `json:"capacity"`
	Buffered       int     `json:"buffered"`
	SamplesWritten uint64  `json:"samples_written"`
	SamplesDropped uint64  `json:"samples_dropped"`
	DropRate       float64 `json:"drop_rate"`
}

// NewRing creates a ring holding up to capacity samples. A non-positive
// capacity defaults to one second of audio at the pipeline sample rate.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = SampleRate
	}
	return &Ring{buf: make([]int16, capacity)}
}

// Write copies samples into the ring, evicting the oldest buffered samples
// when full. It returns the number of samples dropped to make room.
func (r *Ring) Write(samples []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	if len(samples) >= len(r.buf) {
		// Delivery alone exceeds capacity: keep only the newest samples.
		dropped = r.count + len(samples) - len(r.buf)
		samples = samples[len(samples)-len(r.buf):]
		r.head = 0
		r.count = copy(r.buf, samples)
	} else {
		overflow := r.count + len(samples) - len(r.buf)
		if overflow > 0 {
			dropped = overflow
			r.head = (r.head + overflow) % len(r.buf)
			r.count -= overflow
		}
		tail := (r.head + r.count) % len(r.buf)
		n := copy(r.buf[tail:], samples)
		if n < len(samples) {
			copy(r.buf, samples[n:])
		}
		r.count += len(samples)
	}

	r.samplesWritten += uint64(len(samples))
	r.samplesDropped += uint64(dropped)
	return dropped
}

// Read removes and returns up to max buffered samples in write order.
// It returns nil when the ring is empty.
func (r *Ring) Read(max int) []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 || max <= 0 {
		return nil
	}
	n := max
	if n > r.count {
		n = r.count
	}
	out := make([]int16, n)
	m := copy(out, r.buf[r.head:min(r.head+n, len(r.buf))])
	if m < n {
		copy(out[m:], r.buf)
	}
	r.head = (r.head + n) % len(r.buf)
	r.count -= n
	return out
}

// Len returns the number of samples currently buffered.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Stats returns current ring statistics.
func (r *Ring) Stats() RingStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropRate := float64(0)
	if r.samplesWritten > 0 {
		dropRate = float64(r.samplesDropped) / float64(r.samplesWritten) * 100
	}
	return RingStats{
		Capacity:       len(r.buf),
		Buffered:       r.count,
		SamplesWritten: r.samplesWritten,
		SamplesDropped: r.samplesDropped,
		DropRate:       dropRate,
	}
}
