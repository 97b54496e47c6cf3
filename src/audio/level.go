package audio

import (
	"math"
	"time"
)

// levelFloorDB is the quietest level that still registers above zero.
const levelFloorDB = -60.0

// RMS returns the root-mean-square energy of samples normalized to 0.0..1.0.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		normalized := float64(s) / 32768.0
		sum += normalized * normalized
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// LevelFromRMS maps RMS energy onto a 0..100 meter on a dBFS scale between
// -60 dB and 0 dB.
func LevelFromRMS(rms float64) int {
	if rms <= 0 {
		return 0
	}
	db := 20 * math.Log10(rms)
	level := (db - levelFloorDB) / -levelFloorDB * 100
	switch {
	case level < 0:
		return 0
	case level > 100:
		return 100
	}
	return int(math.Round(level))
}

// LevelMeter reports one level per fixed window of samples.
type LevelMeter struct {
	window int
	sum    float64
	n      int
}

// NewLevelMeter creates a meter over windows of the given duration.
func NewLevelMeter(sampleRate int, window time.Duration) *LevelMeter {
	size := int(int64(sampleRate) * int64(window) / int64(time.Second))
	if size < 1 {
		size = 1
	}
	return &LevelMeter{window: size}
}

// Add feeds samples and returns the levels of every window they complete.
func (m *LevelMeter) Add(samples []int16) []int {
	var levels []int
	for _, s := range samples {
		normalized := float64(s) / 32768.0
		m.sum += normalized * normalized
		m.n++
		if m.n == m.window {
			levels = append(levels, LevelFromRMS(math.Sqrt(m.sum/float64(m.n))))
			m.sum, m.n = 0, 0
		}
	}
	return levels
}
