//go:build !linux

package gpio

import "errors"

// CdevDriver is not available on non-Linux platforms.
type CdevDriver struct{}

// NewCdevDriver returns an *InitError on non-Linux platforms.
func NewCdevDriver(chipName string, pins ...int) (*CdevDriver, error) {
	return nil, &InitError{Pin: -1, Err: errors.New("gpio character device not supported on this platform (requires Linux)")}
}

// OpenCdev returns an Opener that always fails on non-Linux platforms.
func OpenCdev(chipName string) Opener {
	return func(pins []int) (Driver, error) {
		_, err := NewCdevDriver(chipName, pins...)
		return nil, err
	}
}

// Set is not implemented on non-Linux platforms.
func (d *CdevDriver) Set(pin int, high bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (d *CdevDriver) Close() error {
	return nil
}
