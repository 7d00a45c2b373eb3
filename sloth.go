package bboxconv

// Sloth specific functionality.

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
)

// SlothAnnotation is a single annotation within a Sloth file.
type SlothAnnotation struct {
	Class  string  `json:"class,omitempty"`
	Type   string  `json:"type,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// SlothAnnotatedFile defines the Sloth annotation structure for a single file.
type SlothAnnotatedFile struct {
	Annotations []SlothAnnotation `json:"annotations"`
	Class       string            `json:"class,omitempty"`
	FilePath    string            `json:"filename,omitempty"`
}

// FromSloth reads and parses Sloth annotations from the file at path.
func FromSloth(path string) ([]AnnotatedFile, error) {
	enc, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var slothData []SlothAnnotatedFile
	err = json.Unmarshal(enc, &slothData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Sloth input from %q: %v", path, err)
	}

	// Convert to the intermediate representation. Sloth boxes are min corner
	// plus size, which maps onto center-size directly.
	data := make([]AnnotatedFile, 0, len(slothData))
	for _, slothFileData := range slothData {
		// Per file data. Convert all annotations.
		fileData := AnnotatedFile{
			Annotations: make([]Annotation, 0, len(slothFileData.Annotations)),
			FilePath:    slothFileData.FilePath,
		}
		for _, a := range slothFileData.Annotations {
			box, err := New(Params{
				Name:   slothFileData.FilePath,
				Label:  a.Class,
				Coords: [4]float64{a.X + a.Width/2, a.Y + a.Height/2, a.Width, a.Height},
			})
			if err != nil {
				log.Printf("Invalid annotation in %q, skipping: %v", path, err)
				continue
			}
			fileData.Annotations = append(fileData.Annotations, Annotation{Box: box})
		}
		data = append(data, fileData)
	}

	return data, nil
}

// ToSloth converts the intermediate representation to Sloth format.
func ToSloth(data []AnnotatedFile) []SlothAnnotatedFile {
	slothData := make([]SlothAnnotatedFile, 0, len(data))
	for _, fileData := range data {
		slothFileData := SlothAnnotatedFile{
			Annotations: make([]SlothAnnotation, len(fileData.Annotations)),
			Class:       "image",
			FilePath:    fileData.FilePath,
		}
		for i, a := range fileData.Annotations {
			coords, _ := a.Box.RawBoundingBox(CornerCorner, Absolute, nil)
			slothLabel := SlothAnnotation{
				Class:  a.Box.Label(),
				Type:   "rect",
				X:      coords[0],
				Y:      coords[1],
				Width:  coords[2] - coords[0],
				Height: coords[3] - coords[1],
			}
			slothFileData.Annotations[i] = slothLabel
		}
		slothData = append(slothData, slothFileData)
	}

	return slothData
}

// WriteSloth writes the Sloth annotations to outFile.
func WriteSloth(outFile string, data []SlothAnnotatedFile) error {
	enc, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(outFile, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", outFile, err)
	}
	return nil
}
