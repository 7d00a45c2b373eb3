package bboxconv

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

const slothTestData = `[
  {
    "annotations": [
      {"class": "car", "type": "rect", "x": 10, "y": 20, "width": 100, "height": 40},
      {"class": "person", "type": "rect", "x": 5, "y": 5, "width": 10, "height": 30}
    ],
    "class": "image",
    "filename": "frame_0001.jpg"
  }
]`

func TestFromSloth(t *testing.T) {
	dir, err := ioutil.TempDir("", "bboxconv")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "labels.json")
	if err := ioutil.WriteFile(path, []byte(slothTestData), 0644); err != nil {
		t.Fatal(err)
	}

	data, err := FromSloth(path)
	if err != nil {
		t.Fatalf("FromSloth failed: %v", err)
	}

	if len(data) != 1 || len(data[0].Annotations) != 2 {
		t.Fatalf("unexpected shape: %v", data)
	}
	if data[0].FilePath != "frame_0001.jpg" {
		t.Errorf("file path %q", data[0].FilePath)
	}

	b := data[0].Annotations[0].Box
	if b.Label() != "car" {
		t.Errorf("label %q, expected car", b.Label())
	}
	coords, err := b.RawBoundingBox(CornerCorner, Absolute, nil)
	if err != nil {
		t.Fatalf("RawBoundingBox failed: %v", err)
	}
	want := [4]float64{10, 20, 110, 60}
	if !coordsApproxEqual(coords, want) {
		t.Errorf("corners %v, expected %v", coords, want)
	}
	if b.Role() != GroundTruth {
		t.Error("sloth annotations must be ground truth")
	}
}

func TestToSloth(t *testing.T) {
	box := mustBox(t, Params{
		Name:      "frame_0002.jpg",
		Label:     "dog",
		Coords:    [4]float64{10, 20, 110, 60},
		CoordType: CornerCorner,
	})
	data := []AnnotatedFile{{
		Annotations: []Annotation{{Box: box}},
		FilePath:    "frame_0002.jpg",
	}}

	slothData := ToSloth(data)
	if len(slothData) != 1 || len(slothData[0].Annotations) != 1 {
		t.Fatalf("unexpected shape: %v", slothData)
	}

	a := slothData[0].Annotations[0]
	if a.Class != "dog" || a.Type != "rect" {
		t.Errorf("annotation metadata: %+v", a)
	}
	if !approxEqual(a.X, 10) || !approxEqual(a.Y, 20) ||
			!approxEqual(a.Width, 100) || !approxEqual(a.Height, 40) {
		t.Errorf("geometry: %+v", a)
	}
}
