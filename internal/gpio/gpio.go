// Package gpio provides GPIO output driving with hardware abstraction.
// The real implementations use the Linux GPIO character device or periph.io.
// The fake implementation allows testing without hardware.
package gpio

import "fmt"

// Driver drives a fixed set of claimed output pins.
// Pins are claimed as outputs (initially low) when the driver is opened.
type Driver interface {
	// Set drives pin high or low. The pin must have been claimed at open.
	Set(pin int, high bool) error

	// Close releases every claimed pin back to input with pull-down.
	Close() error
}

// Opener claims the given pins as outputs and returns a Driver owning them.
// On failure it releases anything already claimed and returns an *InitError.
type Opener func(pins []int) (Driver, error)

// Pin definitions (BCM numbering)
const (
	DefaultPinA = 27
	DefaultPinB = 17
)

// DefaultChip is the GPIO character device carrying the Pi header lines.
const DefaultChip = "gpiochip0"

// InitError reports a failure to claim the GPIO subsystem or a pin.
type InitError struct {
	// Pin is the BCM pin that could not be claimed, or -1 when the GPIO
	// subsystem itself could not be opened.
	Pin int
	Err error
}

func (e *InitError) Error() string {
	if e.Pin < 0 {
		return fmt.Sprintf("gpio init: %v", e.Err)
	}
	return fmt.Sprintf("gpio init: pin %d: %v", e.Pin, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}
