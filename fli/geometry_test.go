package fli

import "testing"

func TestValidateROI(t *testing.T) {
	cases := []struct {
		descr string
		roi   ROI
		ok    bool
	}{
		{"full frame unbinned", ROI{0, 0, 1000, 1000, 1, 1}, true},
		{"binned interior window", ROI{100, 100, 300, 500, 2, 2}, true},
		{"hbin zero", ROI{0, 0, 100, 100, 0, 1}, false},
		{"vbin zero", ROI{0, 0, 100, 100, 1, 0}, false},
		{"hbin at exclusive limit", ROI{0, 0, 10, 10, 16, 1}, false},
		{"vbin above limit", ROI{0, 0, 10, 10, 1, 20}, false},
		{"zero width", ROI{10, 10, 0, 100, 1, 1}, false},
		{"zero height", ROI{10, 10, 100, 0, 1, 1}, false},
		{"negative x offset", ROI{-1, 0, 100, 100, 1, 1}, false},
		{"negative y offset", ROI{0, -5, 100, 100, 1, 1}, false},
		{"width exceeds sensor", ROI{0, 0, 1001, 100, 1, 1}, false},
		{"binned width exceeds sensor", ROI{0, 0, 501, 100, 2, 1}, false},
		{"binned height exceeds sensor", ROI{0, 0, 100, 501, 1, 2}, false},
		{"binned extent exactly sensor", ROI{0, 0, 500, 500, 2, 2}, true},
	}
	for _, tc := range cases {
		err := validateROI(tc.roi, 1000, 1000)
		if tc.ok && err != nil {
			t.Errorf("%s: expected valid, got %v", tc.descr, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected rejection of %v", tc.descr, tc.roi)
		}
	}
}

func TestAbsCornersScalesOffsetAndSizeByBinning(t *testing.T) {
	// a 300x500 window at offset (100, 100) under 2x2 binning covers
	// unbinned pixels (200, 200) through (800, 1200)
	ulX, ulY, lrX, lrY := absCorners(ROI{100, 100, 300, 500, 2, 2}, 0, 0)
	if ulX != 200 || ulY != 200 || lrX != 800 || lrY != 1200 {
		t.Errorf("corners (%d, %d)-(%d, %d), expected (200, 200)-(800, 1200)", ulX, ulY, lrX, lrY)
	}
}

func TestAbsCornersHonorsVisibleOrigin(t *testing.T) {
	ulX, ulY, lrX, lrY := absCorners(ROI{10, 20, 50, 60, 1, 1}, 8, 4)
	if ulX != 18 || ulY != 24 || lrX != 68 || lrY != 84 {
		t.Errorf("corners (%d, %d)-(%d, %d), expected (18, 24)-(68, 84)", ulX, ulY, lrX, lrY)
	}
}

func TestRelativeROIRoundTrip(t *testing.T) {
	req := ROI{100, 100, 300, 500, 2, 2}
	ulX, ulY, _, _ := absCorners(req, 0, 0)
	hw := ROI{XMin: ulX, YMin: ulY, Width: req.Width, Height: req.Height, BinX: 2, BinY: 2}
	rel := relativeROI(hw, 0, 0)
	if rel != req {
		t.Errorf("round trip produced %v, expected %v", rel, req)
	}
}

func TestRelativeROINormalizesDegenerateBinning(t *testing.T) {
	rel := relativeROI(ROI{XMin: 10, YMin: 10, Width: 5, Height: 5}, 0, 0)
	if rel.BinX != 1 || rel.BinY != 1 {
		t.Errorf("binning %dx%d, expected 1x1", rel.BinX, rel.BinY)
	}
	if rel.XMin != 10 || rel.YMin != 10 {
		t.Errorf("offset (%d, %d), expected (10, 10)", rel.XMin, rel.YMin)
	}
}

func TestIsReset(t *testing.T) {
	if !(ROI{}).IsReset() {
		t.Error("zero value is the reset sentinel")
	}
	if !(ROI{BinX: 2, BinY: 2}).IsReset() {
		t.Error("binning factors do not disqualify the sentinel")
	}
	if (ROI{Width: 1}).IsReset() {
		t.Error("nonzero size is not the sentinel")
	}
	if (ROI{XMin: 1}).IsReset() {
		t.Error("nonzero offset is not the sentinel")
	}
}
