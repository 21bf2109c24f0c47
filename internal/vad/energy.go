package vad

import (
	"encoding/binary"
	"fmt"
	"math"
)

// energyThresholds holds the per-frame mean energy and mean absolute amplitude
// a frame must reach to count as speech.
type energyThresholds struct {
	energy  float64
	meanAbs float64
}

// thresholds are indexed by aggressiveness. Level 2 matches the values the
// service was tuned with.
var thresholds = [4]energyThresholds{
	{energy: 0.0001, meanAbs: 0.005},
	{energy: 0.0003, meanAbs: 0.010},
	{energy: 0.0005, meanAbs: 0.015},
	{energy: 0.0010, meanAbs: 0.020},
}

// EnergyDetector is an in-process Detector based on frame energy and mean
// absolute amplitude. It needs no model and is deterministic.
type EnergyDetector struct {
	th energyThresholds
}

// NewEnergyDetector creates an EnergyDetector. Aggressiveness is clamped to 0..3.
func NewEnergyDetector(aggressiveness int) *EnergyDetector {
	if aggressiveness < 0 {
		aggressiveness = 0
	}
	if aggressiveness > 3 {
		aggressiveness = 3
	}
	return &EnergyDetector{th: thresholds[aggressiveness]}
}

// IsSpeech implements Detector.
func (d *EnergyDetector) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	if sampleRate <= 0 {
		return false, fmt.Errorf("%w: got %d", ErrInvalidSampleRate, sampleRate)
	}
	if len(frame)%2 != 0 {
		return false, fmt.Errorf("%w: %d bytes", ErrInvalidFrame, len(frame))
	}
	n := len(frame) / 2
	if n == 0 {
		return false, nil
	}

	var energy, meanAbs float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(frame[i*2:]))) / 32768.0
		energy += v * v
		meanAbs += math.Abs(v)
	}
	energy /= float64(n)
	meanAbs /= float64(n)

	return energy >= d.th.energy && meanAbs >= d.th.meanAbs, nil
}

// Verify interface implementation at compile time.
var _ Detector = (*EnergyDetector)(nil)
