package audio

import (
	"sync"
)

// Framer assembles fixed-size PCM frames from arbitrary-size capture
// deliveries. The device callback hands over whatever buffer size the host
// API chose; the recognizer wants exact FrameSamples-sized frames in capture
// order. Completed frames are freshly allocated and handed off to the caller
// so they are never aliased by the next capture callback.
type Framer struct {
	frameSize int
	pending   []int16

	// Statistics
	samplesIn      uint64
	framesProduced uint64

	mu sync.Mutex
}

// FramerStats reports frame assembly statistics for monitoring.
type FramerStats struct {
	FrameSize      int    `json:"frame_size"`
	PendingSamples int    `json:"pending_samples"`
	SamplesIn      uint64 `json:"samples_in"`
	FramesProduced uint64 `json:"frames_produced"`
}

// NewFramer creates a frame assembler producing frames of frameSize samples.
// A non-positive frameSize falls back to FrameSamples.
func NewFramer(frameSize int) *Framer {
	if frameSize <= 0 {
		frameSize = FrameSamples
	}
	return &Framer{
		frameSize: frameSize,
		pending:   make([]int16, 0, frameSize),
	}
}

// Push appends samples and returns every frame completed by this delivery,
// in capture order. The returned slices are owned by the caller.
func (f *Framer) Push(samples []int16) [][]int16 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.samplesIn += uint64(len(samples))
	f.pending = append(f.pending, samples...)

	var frames [][]int16
	for len(f.pending) >= f.frameSize {
		frame := make([]int16, f.frameSize)
		copy(frame, f.pending[:f.frameSize])
		f.pending = f.pending[:copy(f.pending, f.pending[f.frameSize:])]
		frames = append(frames, frame)
		f.framesProduced++
	}
	return frames
}

// Flush returns any partial trailing frame, or nil if no samples are
// pending. Called once when capture stops so trailing audio is not lost.
func (f *Framer) Flush() []int16 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) == 0 {
		return nil
	}
	frame := make([]int16, len(f.pending))
	copy(frame, f.pending)
	f.pending = f.pending[:0]
	f.framesProduced++
	return frame
}

// Reset discards pending samples without producing a frame.
func (f *Framer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = f.pending[:0]
}

// Stats returns current assembly statistics.
func (f *Framer) Stats() FramerStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	return FramerStats{
		FrameSize:      f.frameSize,
		PendingSamples: len(f.pending),
		SamplesIn:      f.samplesIn,
		FramesProduced: f.framesProduced,
	}
}
