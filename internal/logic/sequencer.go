package logic

import "time"

// Cycle returns the fixed four-phase table for pins a and b.
// Pin a is high for phases 1-2; pin b is low for phases 2-3.
func Cycle(a, b int) [PhasesPerCycle]Step {
	return [PhasesPerCycle]Step{
		{Phase: 1, Pin: a, Level: LevelHigh},
		{Phase: 2, Pin: b, Level: LevelLow},
		{Phase: 3, Pin: a, Level: LevelLow},
		{Phase: 4, Pin: b, Level: LevelHigh},
	}
}

// Sequencer walks the cycle table forever.
// Not safe for concurrent use; it is owned by the run loop.
type Sequencer struct {
	steps  [PhasesPerCycle]Step
	pos    int
	counts Counts
}

// NewSequencer creates a Sequencer positioned at phase 1.
func NewSequencer(a, b int) *Sequencer {
	return &Sequencer{steps: Cycle(a, b)}
}

// Peek returns the step Next will return, without advancing.
func (s *Sequencer) Peek() Step {
	return s.steps[s.pos]
}

// Next returns the next step and advances. It counts the step as written;
// call it only once the caller is about to perform the write.
func (s *Sequencer) Next() Step {
	step := s.steps[s.pos]
	s.pos = (s.pos + 1) % PhasesPerCycle
	s.counts.Writes++
	if s.pos == 0 {
		s.counts.Cycles++
	}
	return step
}

// Cycle returns the 1-based number of the cycle the next step belongs to.
func (s *Sequencer) Cycle() int {
	return s.counts.Cycles + 1
}

// Counts returns a copy of the write and cycle counters.
func (s *Sequencer) Counts() Counts {
	return s.counts
}

// Event builds the published record of step, written at t as part of cycle.
func (s Step) Event(t time.Time, cycle int) Event {
	return Event{
		Timestamp: t,
		Phase:     s.Phase,
		Pin:       s.Pin,
		Level:     s.Level,
		Cycle:     cycle,
	}
}
