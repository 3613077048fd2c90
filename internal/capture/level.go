package capture

import (
	"encoding/binary"
	"math"
	"sync"
)

const levelWindow = 3

// levelMeter accumulates signal energy between ticks and keeps a short
// rolling average of per-tick RMS levels.
type levelMeter struct {
	mu      sync.Mutex
	sumSq   float64
	samples int

	ring  [levelWindow]float64
	ticks int
}

// Add accumulates little-endian int16 samples.
func (m *levelMeter) Add(pcm []byte) {
	var sum float64
	n := len(pcm) / 2
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
		sum += s * s
	}

	m.mu.Lock()
	m.sumSq += sum
	m.samples += n
	m.mu.Unlock()
}

// Tick closes the current interval and returns the rolling average level.
// An interval without samples counts as silence.
func (m *levelMeter) Tick() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rms float64
	if m.samples > 0 {
		rms = math.Sqrt(m.sumSq / float64(m.samples))
	}
	m.sumSq, m.samples = 0, 0

	m.ring[m.ticks%levelWindow] = rms
	m.ticks++

	n := min(m.ticks, levelWindow)
	var total float64
	for i := 0; i < n; i++ {
		total += m.ring[i]
	}
	return total / float64(n)
}

func (m *levelMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sumSq, m.samples = 0, 0
	m.ring = [levelWindow]float64{}
	m.ticks = 0
}

// RMS returns the normalized RMS level of a PCM chunk.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
