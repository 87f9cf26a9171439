package gpio

import (
	"fmt"
	"time"
)

// FakeDriver is a test double that records output writes.
type FakeDriver struct {
	// Writes contains every successful Set call, in order.
	Writes []Write

	// ClaimErrors, if set, makes claiming the keyed pin fail.
	ClaimErrors map[int]error

	// SetError, if set, will be returned by Set.
	SetError error

	// Closed tracks if Close was called
	Closed bool

	// Now stamps recorded writes. Defaults to time.Now.
	Now func() time.Time

	claimed map[int]bool
	levels  map[int]bool
}

// Write is a single recorded Set call.
type Write struct {
	Pin  int
	High bool
	Time time.Time
}

// NewFakeDriver creates an unopened FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		claimed: make(map[int]bool),
		levels:  make(map[int]bool),
	}
}

// Opener returns an Opener that claims pins on f.
func (f *FakeDriver) Opener() Opener {
	return func(pins []int) (Driver, error) {
		if err := f.claim(pins); err != nil {
			return nil, err
		}
		return f, nil
	}
}

func (f *FakeDriver) claim(pins []int) error {
	for _, pin := range pins {
		if err, ok := f.ClaimErrors[pin]; ok {
			f.Close()
			return &InitError{Pin: pin, Err: err}
		}
		f.claimed[pin] = true
		f.levels[pin] = false
	}
	f.Closed = false
	return nil
}

// Set records the write.
func (f *FakeDriver) Set(pin int, high bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	if !f.claimed[pin] {
		return fmt.Errorf("pin %d not claimed", pin)
	}

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	f.levels[pin] = high
	f.Writes = append(f.Writes, Write{Pin: pin, High: high, Time: now()})
	return nil
}

// Close releases all claimed pins.
func (f *FakeDriver) Close() error {
	for pin := range f.claimed {
		delete(f.claimed, pin)
		delete(f.levels, pin)
	}
	f.Closed = true
	return nil
}

// Claimed reports whether pin is currently owned as an output.
func (f *FakeDriver) Claimed(pin int) bool {
	return f.claimed[pin]
}

// Level returns the last level driven on pin.
func (f *FakeDriver) Level(pin int) bool {
	return f.levels[pin]
}

// WritesFor returns the recorded writes for a single pin.
func (f *FakeDriver) WritesFor(pin int) []Write {
	var out []Write
	for _, w := range f.Writes {
		if w.Pin == pin {
			out = append(out, w)
		}
	}
	return out
}
