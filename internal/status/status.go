// Package status provides a thread-safe status tracker for the blinker daemon.
// It is read by HTTP handlers and lifecycle MQTT events.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/gpio-blinker/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	PinA     int
	PinB     int
	DwellMs  int64
	Driver   string
	Cycles   int // 0 = run until interrupted
	Broker   string
	HTTPAddr string
}

// PinState is the last level driven on a pin.
type PinState struct {
	Pin    int
	Level  logic.Level // empty until the first write
	Writes int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Pins          []PinState // sorted by pin number
	Phase         int        // phase of the last write, 0 before the first
	Counts        logic.Counts
	LastWrite     time.Time
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Pin returns the state of pin, and false if it is not tracked.
func (s Snapshot) Pin(pin int) (PinState, bool) {
	for _, p := range s.Pins {
		if p.Pin == pin {
			return p, true
		}
	}
	return PinState{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	pins  map[int]*PinState
	clock func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
// Both configured pins are tracked from the start.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	t := &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		pins:  make(map[int]*PinState),
		clock: time.Now,
	}
	for _, pin := range []int{cfg.PinA, cfg.PinB} {
		t.pins[pin] = &PinState{Pin: pin}
	}
	return t
}

// RecordWrite stores a completed pin write and the sequencer counters.
// Called from runLoop after every write.
func (t *Tracker) RecordWrite(ev logic.Event, counts logic.Counts) {
	t.mu.Lock()
	ps, ok := t.pins[ev.Pin]
	if !ok {
		ps = &PinState{Pin: ev.Pin}
		t.pins[ev.Pin] = ps
	}
	ps.Level = ev.Level
	ps.Writes++
	t.snap.Phase = ev.Phase
	t.snap.Counts = counts
	t.snap.LastWrite = ev.Timestamp
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Pins = make([]PinState, 0, len(t.pins))
	for _, ps := range t.pins {
		s.Pins = append(s.Pins, *ps)
	}
	t.mu.RUnlock()

	sort.Slice(s.Pins, func(i, j int) bool { return s.Pins[i].Pin < s.Pins[j].Pin })
	s.Now = t.clock()
	return s
}
