package fli

import "fmt"

// ROI is the caller-facing readout rectangle: offset and size in binned
// pixels, relative to the visible area's origin.  The hardware itself works
// in absolute unbinned pixels; the translation happens in CameraUnit.SetROI
// and the helpers below.
//
// A zero offset and zero size is a sentinel meaning "reset to the full
// visible area at 1x1 binning".
type ROI struct {
	// XMin is the left offset in binned pixels from the visible origin
	XMin int

	// YMin is the top offset in binned pixels from the visible origin
	YMin int

	// Width is the readout width in binned pixels
	Width int

	// Height is the readout height in binned pixels
	Height int

	// BinX is the horizontal binning factor
	BinX int

	// BinY is the vertical binning factor
	BinY int
}

// IsReset reports whether r is the all-zero reset sentinel.
func (r ROI) IsReset() bool {
	return r.XMin == 0 && r.YMin == 0 && r.Width == 0 && r.Height == 0
}

func (r ROI) String() string {
	return fmt.Sprintf("ROI{x: %d, y: %d, w: %d, h: %d, bin: %dx%d}",
		r.XMin, r.YMin, r.Width, r.Height, r.BinX, r.BinY)
}

// validateROI checks a non-sentinel request against the visible extent.
// It runs before any hardware call so a rejected request leaves the active
// geometry untouched.
func validateROI(req ROI, visWidth, visHeight int) error {
	if req.BinX < minBin || req.BinX >= maxBin {
		return invalidValuef("horizontal binning factor %d outside [%d, %d)", req.BinX, minBin, maxBin)
	}
	if req.BinY < minBin || req.BinY >= maxBin {
		return invalidValuef("vertical binning factor %d outside [%d, %d)", req.BinY, minBin, maxBin)
	}
	// a partially-zero request is not the reset sentinel and has no
	// readable interpretation
	if req.Width <= 0 || req.Height <= 0 {
		return invalidValuef("zero-size %v is not the reset sentinel", req)
	}
	if req.XMin < 0 || req.YMin < 0 {
		return invalidValuef("%v has negative offset", req)
	}
	if req.Width*req.BinX > visWidth || req.Height*req.BinY > visHeight {
		return invalidValuef("%v exceeds visible area %dx%d", req, visWidth, visHeight)
	}
	return nil
}

// absCorners converts a requested ROI into the absolute unbinned image-area
// corners the hardware takes, against the visible-area origin.
func absCorners(req ROI, visXMin, visYMin int) (ulX, ulY, lrX, lrY int) {
	ulX = visXMin + req.XMin*req.BinX
	ulY = visYMin + req.YMin*req.BinY
	lrX = ulX + req.Width*req.BinX
	lrY = ulY + req.Height*req.BinY
	return ulX, ulY, lrX, lrY
}

// relativeROI normalizes hardware readout geometry (binned size, absolute
// unbinned offset) back into the caller's frame (binned offset relative to
// the visible origin).  The actual applied geometry is used, not the
// request, because the device may snap to supported increments.
func relativeROI(hw ROI, visXMin, visYMin int) ROI {
	bx, by := hw.BinX, hw.BinY
	if bx < 1 {
		bx = 1
	}
	if by < 1 {
		by = 1
	}
	return ROI{
		XMin:   (hw.XMin - visXMin) / bx,
		YMin:   (hw.YMin - visYMin) / by,
		Width:  hw.Width,
		Height: hw.Height,
		BinX:   bx,
		BinY:   by,
	}
}
