package fli

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCamerasAvailable is generated when enumeration finds nothing or
	// an open call reports the invalid-device sentinel.
	ErrNoCamerasAvailable = errors.New("fli: no cameras available")

	// ErrExposureInProgress is generated when an operation requires the
	// handle to be idle but an exposure is in flight, or requires a ready
	// frame and none is available yet.
	ErrExposureInProgress = errors.New("fli: exposure in progress")

	// ErrNotCapturing is generated when exposure status is polled while no
	// exposure is in flight.
	ErrNotCapturing = errors.New("fli: not capturing")
)

// DeviceError is an unexpected non-zero status from a library call.  It
// carries the C entry point name and the raw code for diagnosability.
type DeviceError struct {
	// Op is the library entry point that failed, e.g. "FLISetTemperature"
	Op string

	// Code is the status the library returned
	Code int
}

// Error satisfies the error interface
func (e DeviceError) Error() string {
	return fmt.Sprintf("fli: error calling %s(): %d", e.Op, e.Code)
}

// devErr maps a status code to nil or a DeviceError for the named call.
func devErr(op string, code int) error {
	if code == 0 {
		return nil
	}
	return DeviceError{Op: op, Code: code}
}

// InvalidValueError is a caller-supplied parameter outside the accepted
// domain.  It is always generated before any hardware call is made.
type InvalidValueError struct {
	Desc string
}

// Error satisfies the error interface
func (e InvalidValueError) Error() string {
	return "fli: invalid value: " + e.Desc
}

func invalidValuef(format string, args ...interface{}) error {
	return InvalidValueError{Desc: fmt.Sprintf(format, args...)}
}

// InvalidFormatError is a malformed identifier or a malformed string
// returned by the hardware.
type InvalidFormatError struct {
	Desc string
}

// Error satisfies the error interface
func (e InvalidFormatError) Error() string {
	return "fli: invalid format: " + e.Desc
}

// ExposureFailedError is a status query that failed while an exposure was
// in flight.  The handle leaves the capturing state when this is generated.
type ExposureFailedError struct {
	Detail string
}

// Error satisfies the error interface
func (e ExposureFailedError) Error() string {
	return "fli: exposure failed: " + e.Detail
}
