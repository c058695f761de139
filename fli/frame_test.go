package fli_test

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/flicam/fli"
)

func testFrame() *fli.Frame {
	return &fli.Frame{
		Width:       4,
		Height:      2,
		Bpp:         fli.Bpp16,
		Pix:         make([]byte, 4*2*2),
		Timestamp:   time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		Exposure:    250 * time.Millisecond,
		Temperature: -20,
		Camera:      "flisim-0",
		Serial:      "ML0000001",
		BinX:        1,
		BinY:        1,
	}
}

func TestWriteFits(t *testing.T) {
	f := testFrame()
	var buf bytes.Buffer
	if err := f.WriteFits(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() == 0 {
		t.Fatal("no bytes written")
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("SIMPLE")) {
		t.Error("output does not begin with the FITS primary header")
	}
}

func TestWriteFitsEightBit(t *testing.T) {
	f := testFrame()
	f.Bpp = fli.Bpp8
	f.Pix = []byte{0, 1, 2, 3, 4, 5, 6, 7}
	var buf bytes.Buffer
	if err := f.WriteFits(&buf); err != nil {
		t.Fatal(err)
	}
}

func TestHeaderMetadataOmitsFailedTemperature(t *testing.T) {
	f := testFrame()
	cards := f.CollectHeaderMetadata()
	found := false
	for _, c := range cards {
		if c.Name == "CCDTEMP" {
			found = true
		}
	}
	if !found {
		t.Error("CCDTEMP missing with a good temperature read")
	}
	f.Temperature = math.NaN()
	for _, c := range f.CollectHeaderMetadata() {
		if c.Name == "CCDTEMP" {
			t.Error("CCDTEMP present after a failed temperature read")
		}
	}
}
