package fli

import (
	"io"
	"math"
	"reflect"
	"time"
	"unsafe"

	"github.com/astrogo/fitsio"
)

// Frame is one downloaded image: the raw sample buffer in row-major order
// and native endianness, plus the capture metadata recorded at download
// time.
type Frame struct {
	// Width is the image width in binned pixels
	Width int

	// Height is the image height in binned pixels
	Height int

	// Bpp is the per-sample bit depth
	Bpp Bpp

	// Pix is the raw sample buffer, Width*Height samples
	Pix []byte

	// Timestamp is when the frame was downloaded
	Timestamp time.Time

	// Exposure is the programmed exposure time
	Exposure time.Duration

	// Temperature is the detector temperature at download, Celsius.
	// NaN if the read failed.
	Temperature float64

	// Camera is the identifier the camera was opened with
	Camera string

	// Serial is the camera serial string
	Serial string

	// BinX and BinY are the applied binning factors
	BinX, BinY int

	// OffsetX and OffsetY are the ROI origin in binned pixels relative to
	// the visible area
	OffsetX, OffsetY int
}

// CollectHeaderMetadata produces the FITS cards describing this frame.
func (f *Frame) CollectHeaderMetadata() []fitsio.Card {
	cards := []fitsio.Card{
		{Name: "HDRVER", Value: "1", Comment: "header version"},
		{Name: "WRAPVER", Value: WRAPVER, Comment: "fli wrapper version"},
		{Name: "DATE", Value: f.Timestamp.UTC().Format(time.RFC3339), Comment: "download time, UTC"},
		{Name: "CAMERA", Value: f.Camera, Comment: "camera identifier"},
		{Name: "SERIAL", Value: f.Serial, Comment: "camera serial"},
		{Name: "EXPTIME", Value: f.Exposure.Seconds(), Comment: "exposure time, seconds"},
		{Name: "BITDEPTH", Value: int(f.Bpp), Comment: "sample bit depth"},
		{Name: "HBIN", Value: f.BinX, Comment: "horizontal binning"},
		{Name: "VBIN", Value: f.BinY, Comment: "vertical binning"},
		{Name: "XOFFSET", Value: f.OffsetX, Comment: "ROI left, binned px from visible origin"},
		{Name: "YOFFSET", Value: f.OffsetY, Comment: "ROI top, binned px from visible origin"},
	}
	if !math.IsNaN(f.Temperature) {
		cards = append(cards, fitsio.Card{Name: "CCDTEMP", Value: f.Temperature, Comment: "detector temperature, C"})
	}
	return cards
}

// WriteFits streams the frame to w as a 16-bit FITS file.  8-bit frames are
// widened; the stored values are the raw samples either way.
func (f *Frame) WriteFits(w io.Writer) error {
	cards := f.CollectHeaderMetadata()
	cards = append(cards,
		fitsio.Card{Name: "BZERO", Value: 32768},
		fitsio.Card{Name: "BSCALE", Value: 1.0})
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(16, []int{f.Width, f.Height})
	defer im.Close()
	if err := im.Header().Append(cards...); err != nil {
		return err
	}
	n := f.Width * f.Height
	ints := make([]int16, n)
	switch f.Bpp {
	case Bpp8:
		for i := 0; i < n; i++ {
			ints[i] = int16(int(f.Pix[i]) - 32768)
		}
	default:
		uints := bytesToUint(f.Pix)
		for i := 0; i < n; i++ {
			ints[i] = int16(uints[i] - 32768)
		}
	}
	if err := im.Write(ints); err != nil {
		return err
	}
	return fits.Write(im)
}

func bytesToUint(b []byte) []uint16 {
	var ary []uint16
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&ary))
	hdr.Data = uintptr(unsafe.Pointer(&b[0]))
	hdr.Len = len(b) / 2
	hdr.Cap = cap(b) / 2
	return ary
}
