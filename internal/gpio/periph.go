package gpio

import (
	"errors"
	"fmt"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphDriver drives GPIO outputs through the periph.io host drivers.
// Useful on kernels without the GPIO character device.
type PeriphDriver struct {
	pins  map[int]pgpio.PinIO
	order []int
}

// NewPeriphDriver initialises periph host state and claims each pin as an
// output driven low. Pins are looked up by their BCM name ("GPIO27").
func NewPeriphDriver(pins ...int) (*PeriphDriver, error) {
	// host.Init can safely be called multiple times.
	if _, err := host.Init(); err != nil {
		return nil, &InitError{Pin: -1, Err: fmt.Errorf("periph host init: %w", err)}
	}

	return newPeriphDriver(gpioreg.ByName, pins)
}

// newPeriphDriver claims pins resolved through lookup.
func newPeriphDriver(lookup func(name string) pgpio.PinIO, pins []int) (*PeriphDriver, error) {
	d := &PeriphDriver{pins: make(map[int]pgpio.PinIO, len(pins))}
	for _, pin := range pins {
		p := lookup(fmt.Sprintf("GPIO%d", pin))
		if p == nil {
			d.Close()
			return nil, &InitError{Pin: pin, Err: errors.New("no such pin")}
		}
		if err := p.Out(pgpio.Low); err != nil {
			p.In(pgpio.PullDown, pgpio.NoEdge)
			d.Close()
			return nil, &InitError{Pin: pin, Err: fmt.Errorf("set output: %w", err)}
		}
		d.pins[pin] = p
		d.order = append(d.order, pin)
	}
	return d, nil
}

// OpenPeriph returns an Opener backed by periph.io.
func OpenPeriph() Opener {
	return func(pins []int) (Driver, error) {
		d, err := NewPeriphDriver(pins...)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// Set drives pin high or low.
func (d *PeriphDriver) Set(pin int, high bool) error {
	p, ok := d.pins[pin]
	if !ok {
		return fmt.Errorf("pin %d not claimed", pin)
	}
	if err := p.Out(pgpio.Level(high)); err != nil {
		return fmt.Errorf("set pin %d: %w", pin, err)
	}
	return nil
}

// Close returns every claimed pin to input with pull-down.
func (d *PeriphDriver) Close() error {
	var errs []error
	for _, pin := range d.order {
		if err := d.pins[pin].In(pgpio.PullDown, pgpio.NoEdge); err != nil {
			errs = append(errs, fmt.Errorf("release pin %d: %w", pin, err))
		}
		delete(d.pins, pin)
	}
	d.order = nil

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
