package audio

import (
	"math"
	"sync"
	"time"
)

// Meter computes a smoothed RMS level from capture deliveries. It stands in
// for the recording visualizer: the capture session feeds it every delivery
// and the UI samples Level at whatever rate it redraws. Releasing the meter
// is part of capture teardown.
type Meter struct {
	smoothing float64
	level     float64 // smoothed RMS in [0, 1]
	peak      float64

	// Statistics
	windows     uint64
	lastUpdated time.Time

	mu sync.RWMutex
}

// MeterStats reports level meter statistics for monitoring.
type MeterStats struct {
	Level       float64   `json:"level"`
	Peak        float64   `json:"peak"`
	Windows     uint64    `json:"windows"`
	LastUpdated time.Time `json:"last_updated"`
}

// NewMeter creates a level meter. Smoothing is an exponential moving average
// factor in (0, 1]; values closer to 0 respond more slowly.
func NewMeter(smoothing float64) *Meter {
	if smoothing <= 0 || smoothing > 1 {
		smoothing = 0.3
	}
	return &Meter{smoothing: smoothing}
}

// Observe folds a sample delivery into the running level.
func (m *Meter) Observe(samples []int16) {
	if len(samples) == 0 {
		return
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = m.level + m.smoothing*(rms-m.level)
	if rms > m.peak {
		m.peak = rms
	}
	m.windows++
	m.lastUpdated = time.Now()
}

// Level returns the current smoothed RMS level in [0, 1].
func (m *Meter) Level() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.level
}

// Reset clears the running level, typically between capture sessions.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = 0
	m.peak = 0
}

// Stats returns current meter statistics.
func (m *Meter) Stats() MeterStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MeterStats{
		Level:       m.level,
		Peak:        m.peak,
		Windows:     m.windows,
		LastUpdated: m.lastUpdated,
	}
}
