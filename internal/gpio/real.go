//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// CdevDriver drives GPIO outputs using the Linux GPIO character device.
type CdevDriver struct {
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
	order []int
}

// NewCdevDriver opens chip and requests each pin as an output driven low.
// On Raspberry Pi, line offsets on gpiochip0 are BCM numbers.
func NewCdevDriver(chipName string, pins ...int) (*CdevDriver, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, &InitError{Pin: -1, Err: fmt.Errorf("open gpio chip %s: %w", chipName, err)}
	}

	d := &CdevDriver{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line, len(pins)),
	}
	for _, pin := range pins {
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
		if err != nil {
			d.Close()
			return nil, &InitError{Pin: pin, Err: fmt.Errorf("request line: %w", err)}
		}
		d.lines[pin] = line
		d.order = append(d.order, pin)
	}
	return d, nil
}

// OpenCdev returns an Opener for the named chip.
func OpenCdev(chipName string) Opener {
	return func(pins []int) (Driver, error) {
		d, err := NewCdevDriver(chipName, pins...)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// Set drives pin high or low.
func (d *CdevDriver) Set(pin int, high bool) error {
	line, ok := d.lines[pin]
	if !ok {
		return fmt.Errorf("pin %d not claimed", pin)
	}
	v := 0
	if high {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", pin, err)
	}
	return nil
}

// Close releases GPIO resources.
// Reconfigures lines to input with pull-down (matching Pi boot defaults)
// before closing so nothing is left driven after exit.
func (d *CdevDriver) Close() error {
	var errs []error

	for _, pin := range d.order {
		line := d.lines[pin]
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
		delete(d.lines, pin)
	}
	d.order = nil

	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		d.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
