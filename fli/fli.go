/*Package fli exposes control of Finger Lakes Instrumentation cooled CCD
cameras in Go.

This package provides the exposure lifecycle, region of interest and binning
geometry, and housekeeping (temperature, cooler power, identity) of one FLI
camera.  It does not speak to hardware directly; every library call is made
through the Lib interface, which mirrors the C libfli entry points one to one
and returns the library's numeric status codes.  A cgo adapter satisfying Lib
lives outside this module, and a pure-Go software simulation camera is
provided in the flisim subpackage for development and testing.

Status codes are mapped into typed errors immediately at the call boundary;
raw codes never travel further than one function.  Nothing in this package
retries a failed call, and nothing blocks for the duration of an exposure;
completion is observed by polling.

Users are encouraged to write packages that build on this driver for more
complex functionality, as cmd/flicam does for scripted capture runs.
*/
package fli

import (
	"bytes"
	"unicode/utf8"
)

// WRAPVER is the fli wrapper code version.
// Increment this when pkg fli is updated.
const WRAPVER = 2

// DeviceID is an opaque reference to an open device, produced by Lib.Open.
type DeviceID int64

// InvalidDevice is the sentinel the library hands back when an open call
// did not yield a usable device.
const InvalidDevice DeviceID = -1

// Interface domains and device types, combined into the domain argument of
// Open and List.  Values match the C library.
const (
	DomainNone     int64 = 0x00
	DomainParallel int64 = 0x01
	DomainUSB      int64 = 0x02

	DeviceCamera int64 = 0x100

	// DomainCamera is the domain used for every call in this package.
	DomainCamera = DeviceCamera | DomainUSB
)

// Frame types for SetFrameType.
const (
	FrameTypeNormal int64 = 0
	FrameTypeDark   int64 = 1
)

// lenStringBuffer is how large a buffer to hand the library for calls that
// fill a caller-provided NUL-terminated string.
const lenStringBuffer = 128

// Lib is the hardware call layer: one method per libfli entry point used by
// this package.  Every method returns the library's numeric status, zero
// meaning success.  Implementations must be synchronous; a call may block
// for a transport round-trip but never for an exposure.
//
// String-returning calls fill the caller-provided buffer with NUL-terminated
// bytes.  List returns decoded identifier strings; the adapter owns the
// matching free-list call.
type Lib interface {
	Open(name string, domain int64) (DeviceID, int)
	Close(dev DeviceID) int
	List(domain int64) ([]string, int)

	GetSerialString(dev DeviceID, buf []byte) int
	GetModel(dev DeviceID, buf []byte) int
	GetPixelSize(dev DeviceID) (x, y float64, status int)

	GetTemperature(dev DeviceID) (float64, int)
	SetTemperature(dev DeviceID, t float64) int
	GetCoolerPower(dev DeviceID) (float64, int)

	SetExposureTime(dev DeviceID, ms int64) int
	SetFrameType(dev DeviceID, frameType int64) int
	SetBitDepth(dev DeviceID, depth int64) int

	GetVisibleArea(dev DeviceID) (ulX, ulY, lrX, lrY int, status int)
	SetImageArea(dev DeviceID, ulX, ulY, lrX, lrY int) int
	SetHBin(dev DeviceID, factor int) int
	SetVBin(dev DeviceID, factor int) int
	GetReadoutDimensions(dev DeviceID) (width, hOffset, hBin, height, vOffset, vBin int, status int)

	ExposeFrame(dev DeviceID) int
	GetExposureStatus(dev DeviceID) (remainingMS int64, status int)
	CancelExposure(dev DeviceID) int
	GrabFrame(dev DeviceID, buf []byte) int

	GetCameraMode(dev DeviceID) (int64, int)
	GetCameraModeString(dev DeviceID, mode int64, buf []byte) int
	SetCameraMode(dev DeviceID, mode int64) int
}

// Bpp is a pixel bit depth.
type Bpp uint32

// Bit depths supported by the cameras.
const (
	Bpp8  Bpp = 8
	Bpp16 Bpp = 16
)

// BytesPerSample returns the storage size of one sample at this depth.
func (b Bpp) BytesPerSample() int {
	return int(b) / 8
}

// cstring decodes a NUL-terminated byte buffer filled by the library.
// Non-UTF8 content is an InvalidFormatError.
func cstring(buf []byte) (string, error) {
	i := bytes.IndexByte(buf, 0)
	if i < 0 {
		i = len(buf)
	}
	s := buf[:i]
	if !utf8.Valid(s) {
		return "", InvalidFormatError{Desc: "non-UTF8 string from device"}
	}
	return string(s), nil
}
