package bboxconv

import (
	"image"
	"math"
	"strings"
	"testing"
)

const coordTolerance = 1e-9

func floatPtr(v float64) *float64 { return &v }

func approxEqual(a, b float64) bool { return math.Abs(a-b) <= coordTolerance }

func coordsApproxEqual(a, b [4]float64) bool {
	for i := range a {
		if !approxEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func TestCenterSizeAbsoluteRoundTrip(t *testing.T) {
	in := [4]float64{12.5, 30, 100, 40}
	b, err := New(Params{Name: "img_000", Label: "car", Coords: in})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	out, err := b.RawBoundingBox(CenterSize, Absolute, nil)
	if err != nil {
		t.Fatalf("RawBoundingBox failed: %v", err)
	}
	if !coordsApproxEqual(in, out) {
		t.Errorf("round trip changed coords: in %v, out %v", in, out)
	}
}

func TestCornerCornerRoundTrip(t *testing.T) {
	in := [4]float64{10, 20, 110, 60} // xMin, yMin, xMax, yMax
	b, err := New(Params{Label: "person", Coords: in, CoordType: CornerCorner})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if w := b.Width(); !approxEqual(w, 100) {
		t.Errorf("Width = %v, expected 100", w)
	}
	if h := b.Height(); !approxEqual(h, 40) {
		t.Errorf("Height = %v, expected 40", h)
	}
	if x, y := b.Center(); !approxEqual(x, 60) || !approxEqual(y, 40) {
		t.Errorf("Center = (%v, %v), expected (60, 40)", x, y)
	}

	out, err := b.RawBoundingBox(CornerCorner, Absolute, nil)
	if err != nil {
		t.Fatalf("RawBoundingBox failed: %v", err)
	}
	if !coordsApproxEqual(in, out) {
		t.Errorf("round trip changed coords: in %v, out %v", in, out)
	}
}

func TestRelativeRoundTrip(t *testing.T) {
	size := ImageSize{Width: 640, Height: 480}
	in := [4]float64{0.5, 0.25, 0.125, 0.5}
	b, err := New(Params{
		Label:       "dog",
		Coords:      in,
		CoordSystem: Relative,
		ImageSize:   &size,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// The canonical form is absolute.
	abs, err := b.RawBoundingBox(CenterSize, Absolute, nil)
	if err != nil {
		t.Fatalf("RawBoundingBox failed: %v", err)
	}
	want := [4]float64{320, 120, 80, 240}
	if !coordsApproxEqual(abs, want) {
		t.Errorf("absolute coords %v, expected %v", abs, want)
	}

	// Projecting back to relative recovers the input.
	rel, err := b.RawBoundingBox(CenterSize, Relative, nil)
	if err != nil {
		t.Fatalf("RawBoundingBox failed: %v", err)
	}
	if !coordsApproxEqual(rel, in) {
		t.Errorf("round trip changed coords: in %v, out %v", in, rel)
	}
}

func TestRelativeCornerOrderEquivalence(t *testing.T) {
	// Scaling corner values directly must agree with converting the scaled
	// center-size form, for a box whose size is not symmetric in either axis.
	size := ImageSize{Width: 200, Height: 100}
	b, err := New(Params{Label: "cat", Coords: [4]float64{50, 30, 20, 40}, ImageSize: &size})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got, err := b.RawBoundingBox(CornerCorner, Relative, nil)
	if err != nil {
		t.Fatalf("RawBoundingBox failed: %v", err)
	}

	abs, _ := b.RawBoundingBox(CornerCorner, Absolute, nil)
	want := [4]float64{abs[0] / 200, abs[1] / 100, abs[2] / 200, abs[3] / 100}
	if !coordsApproxEqual(got, want) {
		t.Errorf("relative corners %v, expected %v", got, want)
	}
}

func TestRelativeConstructionWithoutImageSize(t *testing.T) {
	_, err := New(Params{
		Label:       "car",
		Coords:      [4]float64{0.5, 0.5, 0.1, 0.1},
		CoordSystem: Relative,
	})
	if err != ErrMissingImageSize {
		t.Errorf("New returned %v, expected ErrMissingImageSize", err)
	}
}

func TestRelativeQueryWithoutImageSize(t *testing.T) {
	b, err := New(Params{Label: "car", Coords: [4]float64{10, 10, 5, 5}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := b.RawBoundingBox(CenterSize, Relative, nil); err != ErrMissingImageSize {
		t.Errorf("RawBoundingBox returned %v, expected ErrMissingImageSize", err)
	}

	// An explicitly supplied size resolves the request.
	rel, err := b.RawBoundingBox(CenterSize, Relative, &ImageSize{Width: 100, Height: 50})
	if err != nil {
		t.Fatalf("RawBoundingBox failed: %v", err)
	}
	want := [4]float64{0.1, 0.2, 0.05, 0.1}
	if !coordsApproxEqual(rel, want) {
		t.Errorf("relative coords %v, expected %v", rel, want)
	}
}

func TestRawBoundingBoxSizeOverride(t *testing.T) {
	stored := ImageSize{Width: 100, Height: 100}
	b, err := New(Params{Label: "car", Coords: [4]float64{50, 50, 10, 10}, ImageSize: &stored})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rel, err := b.RawBoundingBox(CenterSize, Relative, &ImageSize{Width: 200, Height: 200})
	if err != nil {
		t.Fatalf("RawBoundingBox failed: %v", err)
	}
	want := [4]float64{0.25, 0.25, 0.05, 0.05}
	if !coordsApproxEqual(rel, want) {
		t.Errorf("relative coords %v, expected %v", rel, want)
	}
}

func TestDetectionRequiresConfidence(t *testing.T) {
	_, err := New(Params{Label: "car", Coords: [4]float64{1, 1, 1, 1}, Role: Detection})
	if err != ErrMissingConfidence {
		t.Errorf("New returned %v, expected ErrMissingConfidence", err)
	}

	b, err := New(Params{
		Label:      "car",
		Coords:     [4]float64{1, 1, 1, 1},
		Role:       Detection,
		Confidence: floatPtr(0.8),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c, ok := b.Confidence(); !ok || c != 0.8 {
		t.Errorf("Confidence = (%v, %v), expected (0.8, true)", c, ok)
	}
}

func TestGroundTruthHasNoConfidence(t *testing.T) {
	b, err := New(Params{Label: "car", Coords: [4]float64{1, 1, 1, 1}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := b.Confidence(); ok {
		t.Error("ground truth box reports a confidence value")
	}
}

func TestIoUSelf(t *testing.T) {
	b, err := New(Params{Label: "car", Coords: [4]float64{0, 0, 10, 10}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if iou := IoU(b, b); !approxEqual(iou, 1) {
		t.Errorf("IoU(b, b) = %v, expected 1.0", iou)
	}
}

func TestIoUDisjoint(t *testing.T) {
	a, _ := New(Params{Label: "car", Coords: [4]float64{0, 0, 2, 2}})
	b, _ := New(Params{Label: "car", Coords: [4]float64{10, 10, 2, 2}})
	if iou := IoU(a, b); iou != 0 {
		t.Errorf("IoU of disjoint boxes = %v, expected exactly 0", iou)
	}
}

func TestIoUTouching(t *testing.T) {
	// Boxes that share an edge overlap with zero area.
	a, _ := New(Params{Label: "car", Coords: [4]float64{0, 0, 2, 2}, CoordType: CornerCorner})
	b, _ := New(Params{Label: "car", Coords: [4]float64{2, 0, 4, 2}, CoordType: CornerCorner})
	if iou := IoU(a, b); iou != 0 {
		t.Errorf("IoU of touching boxes = %v, expected exactly 0", iou)
	}
}

func TestIoUKnownOverlap(t *testing.T) {
	a, _ := New(Params{Label: "car", Coords: [4]float64{0, 0, 10, 10}, CoordType: CornerCorner})
	b, _ := New(Params{Label: "car", Coords: [4]float64{5, 5, 15, 15}, CoordType: CornerCorner})

	// Intersection 25, union 175.
	want := 25.0 / 175.0
	if iou := IoU(a, b); !approxEqual(iou, want) {
		t.Errorf("IoU = %v, expected %v", iou, want)
	}
}

func TestIoUSymmetry(t *testing.T) {
	coords := [][4]float64{
		{0, 0, 10, 10},
		{5, 5, 10, 10},
		{3, -2, 4, 8},
		{100, 100, 1, 1},
		{2.5, 2.5, 5, 5},
	}

	boxes := make([]*Box, len(coords))
	for i, c := range coords {
		b, err := New(Params{Label: "obj", Coords: c})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		boxes[i] = b
	}

	for i, a := range boxes {
		for j, b := range boxes {
			if ab, ba := IoU(a, b), IoU(b, a); ab != ba {
				t.Errorf("IoU not symmetric for pair (%d, %d): %v != %v", i, j, ab, ba)
			}
		}
	}
}

func TestStringGroundTruthCenterSize(t *testing.T) {
	b, err := New(Params{Label: "car", Coords: [4]float64{1, 2, 3, 4}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s := b.String()
	if !strings.HasPrefix(s, "car: ") {
		t.Errorf("description %q does not start with the label", s)
	}
	for _, want := range []string{"x: 1", "y: 2", "w: 3", "h: 4", "abs. coords", "ground truth"} {
		if !strings.Contains(s, want) {
			t.Errorf("description %q is missing %q", s, want)
		}
	}
}

func TestStringDetectionCornerRelative(t *testing.T) {
	size := ImageSize{Width: 10, Height: 10}
	b, err := New(Params{
		Label:       "person",
		Coords:      [4]float64{0.1, 0.1, 0.5, 0.5},
		CoordType:   CornerCorner,
		CoordSystem: Relative,
		ImageSize:   &size,
		Role:        Detection,
		Confidence:  floatPtr(0.75),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s := b.String()
	for _, want := range []string{"xMin: ", "yMin: ", "xMax: ", "yMax: ",
			"rel. coords", "detection with confidence 0.75"} {
		if !strings.Contains(s, want) {
			t.Errorf("description %q is missing %q", s, want)
		}
	}
	if strings.Contains(s, "ground truth") {
		t.Errorf("detection description %q mentions ground truth", s)
	}
}

func TestFromRect(t *testing.T) {
	b, err := FromRect("img_001", "cat", image.Rect(10, 20, 110, 60), nil)
	if err != nil {
		t.Fatalf("FromRect failed: %v", err)
	}

	out, err := b.RawBoundingBox(CornerCorner, Absolute, nil)
	if err != nil {
		t.Fatalf("RawBoundingBox failed: %v", err)
	}
	want := [4]float64{10, 20, 110, 60}
	if !coordsApproxEqual(out, want) {
		t.Errorf("corners %v, expected %v", out, want)
	}
	if b.Name() != "img_001" || b.Label() != "cat" {
		t.Errorf("metadata (%q, %q), expected (img_001, cat)", b.Name(), b.Label())
	}
}

func TestImageSizeIsCopied(t *testing.T) {
	size := ImageSize{Width: 100, Height: 100}
	b, err := New(Params{Label: "car", Coords: [4]float64{50, 50, 10, 10}, ImageSize: &size})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Mutating the caller's struct must not reach the stored size.
	size.Width = 1
	if s, ok := b.ImageSize(); !ok || s.Width != 100 {
		t.Errorf("stored image size %v changed through the caller's value", s)
	}
}
