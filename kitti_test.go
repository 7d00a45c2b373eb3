package bboxconv

import (
	"testing"
)

const (
	kittiGroundTruthLine = "Car 0.0 0 0.0 10.00 20.00 110.00 60.00 0.0 0.0 0.0 0.0 0.0 0.0 0.0"
	kittiDetectionLine   = "Cyclist 0.0 0 0.0 5.00 5.00 15.00 25.00 0.0 0.0 0.0 0.0 0.0 0.0 0.0 0.87"
)

func TestParseKittiAnnotation(t *testing.T) {
	a, err := parseKittiAnnotation(kittiGroundTruthLine)
	if err != nil {
		t.Fatalf("parseKittiAnnotation failed: %v", err)
	}

	if a.Label != "Car" {
		t.Errorf("label %q, expected Car", a.Label)
	}
	want := [4]float64{10, 20, 110, 60}
	if a.Coords != want {
		t.Errorf("coords %v, expected %v", a.Coords, want)
	}
	if a.HasScore {
		t.Error("a 15 column line must not have a score")
	}
}

func TestParseKittiAnnotationWithScore(t *testing.T) {
	a, err := parseKittiAnnotation(kittiDetectionLine)
	if err != nil {
		t.Fatalf("parseKittiAnnotation failed: %v", err)
	}
	if !a.HasScore || a.Score != 0.87 {
		t.Errorf("score (%v, %v), expected (0.87, true)", a.Score, a.HasScore)
	}
}

func TestParseKittiAnnotationTooShort(t *testing.T) {
	if _, err := parseKittiAnnotation("Car 0.0 0 0.0"); err == nil {
		t.Error("expected an error for a truncated line")
	}
}

func TestKittiAnnotationToBox(t *testing.T) {
	a, err := parseKittiAnnotation(kittiDetectionLine)
	if err != nil {
		t.Fatalf("parseKittiAnnotation failed: %v", err)
	}

	box, err := kittiAnnotationToBox("000042", a)
	if err != nil {
		t.Fatalf("kittiAnnotationToBox failed: %v", err)
	}

	if box.Role() != Detection {
		t.Error("a scored annotation must become a detection")
	}
	if c, ok := box.Confidence(); !ok || c != 0.87 {
		t.Errorf("confidence (%v, %v), expected (0.87, true)", c, ok)
	}
	coords, err := box.RawBoundingBox(CornerCorner, Absolute, nil)
	if err != nil {
		t.Fatalf("RawBoundingBox failed: %v", err)
	}
	if !coordsApproxEqual(coords, a.Coords) {
		t.Errorf("corners %v, expected %v", coords, a.Coords)
	}
}

func TestToKittiRoundTrip(t *testing.T) {
	box := mustBox(t, Params{
		Name:      "000001",
		Label:     "Pedestrian",
		Coords:    [4]float64{10, 20, 30, 40},
		CoordType: CornerCorner,
		Role:      Detection, Confidence: floatPtr(0.5),
	})
	data := []AnnotatedFile{{
		Annotations: []Annotation{{Box: box}},
		FilePath:    "000001.png",
	}}

	kittiData := ToKitti(data)
	if len(kittiData) != 1 || len(kittiData[0].Annotations) != 1 {
		t.Fatalf("unexpected shape: %v", kittiData)
	}

	a := kittiData[0].Annotations[0]
	if a.Label != "Pedestrian" {
		t.Errorf("label %q, expected Pedestrian", a.Label)
	}
	want := [4]float64{10, 20, 30, 40}
	if !coordsApproxEqual(a.Coords, want) {
		t.Errorf("coords %v, expected %v", a.Coords, want)
	}
	if !a.HasScore || a.Score != 0.5 {
		t.Errorf("score (%v, %v), expected (0.5, true)", a.Score, a.HasScore)
	}
}
