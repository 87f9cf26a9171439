// Package logic contains the pure blink sequence for the two output pins.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Level represents the logical level driven onto a pin.
type Level string

const (
	LevelHigh Level = "HIGH"
	LevelLow  Level = "LOW"
)

// High reports whether l is LevelHigh.
func (l Level) High() bool {
	return l == LevelHigh
}

// PhasesPerCycle is the number of writes in one full cycle.
const PhasesPerCycle = 4

// Step is one position in the repeating cycle: drive Pin to Level.
type Step struct {
	Phase int // 1..PhasesPerCycle
	Pin   int
	Level Level
}

// Event represents a completed pin write to be published.
type Event struct {
	Timestamp time.Time
	Phase     int
	Pin       int
	Level     Level
	Cycle     int // 1-based cycle the write belongs to
}

// Counts tracks writes performed and cycles completed.
type Counts struct {
	Writes int
	Cycles int
}
