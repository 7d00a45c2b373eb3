package bboxconv

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestLabelMapSaveLoadRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "bboxconv")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "label_map.pbtxt")
	in := map[string]int32{"car": 1, "person": 2, "dog": 7}
	if err := saveTFRecordLabelMap(path, in); err != nil {
		t.Fatalf("saveTFRecordLabelMap failed: %v", err)
	}

	out, maxID, err := loadTFRecordLabelMap(path)
	if err != nil {
		t.Fatalf("loadTFRecordLabelMap failed: %v", err)
	}

	if len(out) != len(in) {
		t.Fatalf("loaded %d entries, expected %d", len(out), len(in))
	}
	for k, v := range in {
		if out[k] != v {
			t.Errorf("entry %q: %d, expected %d", k, out[k], v)
		}
	}
	if maxID != 7 {
		t.Errorf("maxID %d, expected 7", maxID)
	}
}

func TestLoadLabelMapMissingFile(t *testing.T) {
	_, _, err := loadTFRecordLabelMap(filepath.Join("does", "not", "exist.pbtxt"))
	if !os.IsNotExist(err) {
		t.Errorf("expected a does-not-exist error, got %v", err)
	}
}

func TestLoadLabelMapInvalidEntry(t *testing.T) {
	dir, err := ioutil.TempDir("", "bboxconv")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "label_map.pbtxt")
	if err := ioutil.WriteFile(path, []byte("item {\n  name: \"car\"\n  id: 0\n}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := loadTFRecordLabelMap(path); err == nil {
		t.Error("expected an error for an entry with id 0")
	}
}
