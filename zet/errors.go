package zet

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedPlatform is generated when the Zadc library cannot exist on this OS
	ErrUnsupportedPlatform = errors.New("the Zadc library is only available on windows")

	// ErrNotOpen is generated when a call is made before Open
	ErrNotOpen = errors.New("board is not open")

	// ErrChannelOutOfRange is generated when a channel index is outside the device's channels
	ErrChannelOutOfRange = errors.New("channel out of range")
)

// DriverError is a non-zero status returned by a driver procedure
type DriverError struct {
	// Op is the name of the procedure, e.g. ZGetPointerDAC
	Op string

	// Code is the status the procedure returned
	Code int32
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s error %04X", e.Op, uint32(e.Code))
}

// enrich converts a status code into an error, or nil if the call succeeded
func enrich(code int32, p proc) error {
	if code == 0 {
		return nil
	}
	return &DriverError{Op: p.String(), Code: code}
}
