package device

import (
	"errors"
	"fmt"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a serial number is not in the
	// mirror, or the mirror is too stale to answer for it.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrReadOnly is returned when a command targets a device configured
	// as read-only.
	ErrReadOnly = errors.New("device: read-only")

	// ErrOffline is returned when a command targets a device the vendor
	// reports as unreachable.
	ErrOffline = errors.New("device: offline")

	// ErrUnsupported is returned when a command targets a family with no
	// command surface (gateways, unrecognised families).
	ErrUnsupported = errors.New("device: family not actionable")

	// ErrUnknownAction is returned for an action string the device's
	// family does not accept.
	ErrUnknownAction = errors.New("device: unknown action")

	// ErrConflict is the sentinel matched by ConflictError.
	ErrConflict = errors.New("device: command conflicts with transition in progress")
)

// ConflictError rejects a command because the device is mid-transition.
// The vendor cannot interrupt an in-flight open or close; callers wait for
// the transition to settle and retry. Matches ErrConflict under
// errors.Is().
type ConflictError struct {
	SerialNumber string
	InProgress   State
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("device %s: %s already in progress", e.SerialNumber, e.InProgress)
}

// Is reports whether target is ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
