package bboxconv

// The bounding box value type shared by all annotation formats.

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// CoordType selects how a raw coordinate 4-tuple is interpreted.
type CoordType int

const (
	CenterSize   CoordType = iota // x, y, w, h with x, y at the box center.
	CornerCorner                  // xMin, yMin, xMax, yMax.
)

// CoordSystem selects the units of a raw coordinate 4-tuple.
type CoordSystem int

const (
	Absolute CoordSystem = iota // Pixel offsets from the top-left corner.
	Relative                    // Fractions of the image width and height.
)

// Role describes where a box came from.
type Role int

const (
	GroundTruth Role = iota // Human annotated, no confidence value.
	Detection               // Model output, carries a confidence value.
)

// ImageSize carries the pixel dimensions of an annotated image. Both values
// must be positive for relative coordinate conversions to be meaningful.
type ImageSize struct {
	Width  float64
	Height float64
}

// Errors reported by Box construction and coordinate queries.
var (
	ErrMissingImageSize  = errors.New("missing image size for relative coordinates")
	ErrMissingConfidence = errors.New("missing confidence for detection box")
)

// Box is a single rectangle annotation with its label and origin metadata.
// It is immutable after construction.
//
// The geometry is stored in one canonical form, absolute center-size, no
// matter which encoding it was supplied in. Conversions back to other
// encodings happen on demand in RawBoundingBox.
type Box struct {
	name  string
	label string

	// Canonical geometry: center offsets and dimensions in absolute pixels.
	// w and h are expected to be non-negative; IoU is meaningless otherwise.
	x, y, w, h float64

	imgSize    *ImageSize
	role       Role
	confidence float64 // Valid only when role == Detection.

	// The encoding the raw input used. Only String looks at these.
	coordType CoordType
	coordSys  CoordSystem
}

// Params describes a box to construct. The zero values of CoordType,
// CoordSystem and Role select center-size, absolute and ground truth.
type Params struct {
	Name        string     // Free-form identifier, e.g. the image file name.
	Label       string     // The object class.
	Coords      [4]float64 // Interpreted according to CoordType and CoordSystem.
	CoordType   CoordType
	CoordSystem CoordSystem
	ImageSize   *ImageSize // Required when CoordSystem is Relative.
	Role        Role
	Confidence  *float64 // Required when Role is Detection.
}

// New constructs an immutable Box from p.
//
// Corner-corner input is converted to center-size and relative input is
// scaled to absolute pixels before storing. Construction fails with
// ErrMissingImageSize when relative coordinates are given without an image
// size, and with ErrMissingConfidence when Role is Detection and no
// confidence value is given. On failure no Box is returned.
func New(p Params) (*Box, error) {
	x, y, w, h := p.Coords[0], p.Coords[1], p.Coords[2], p.Coords[3]
	if p.CoordType == CornerCorner {
		w = p.Coords[2] - p.Coords[0]
		h = p.Coords[3] - p.Coords[1]
		x = p.Coords[0] + w/2
		y = p.Coords[1] + h/2
	}

	// Copy the image size so later writes by the caller cannot reach the box.
	var size *ImageSize
	if p.ImageSize != nil {
		s := *p.ImageSize
		size = &s
	}

	if p.CoordSystem == Relative {
		if size == nil {
			return nil, ErrMissingImageSize
		}
		x *= size.Width
		w *= size.Width
		y *= size.Height
		h *= size.Height
	}

	b := &Box{
		name:      p.Name,
		label:     p.Label,
		x:         x,
		y:         y,
		w:         w,
		h:         h,
		imgSize:   size,
		role:      p.Role,
		coordType: p.CoordType,
		coordSys:  p.CoordSystem,
	}

	if p.Role == Detection {
		if p.Confidence == nil {
			return nil, ErrMissingConfidence
		}
		b.confidence = *p.Confidence
	}

	return b, nil
}

// FromRect constructs a ground truth Box covering r, in absolute pixels.
//
// It extracts the midpoints and dimensions of r and delegates to New with
// center-size coordinates, so the same failure modes apply.
func FromRect(name, label string, r image.Rectangle, size *ImageSize) (*Box, error) {
	w := float64(r.Dx())
	h := float64(r.Dy())
	return New(Params{
		Name:      name,
		Label:     label,
		Coords:    [4]float64{float64(r.Min.X) + w/2, float64(r.Min.Y) + h/2, w, h},
		ImageSize: size,
	})
}

// Name is the free-form identifier of the box.
func (b *Box) Name() string { return b.name }

// Label is the object class of the box.
func (b *Box) Label() string { return b.label }

// Role reports whether the box is a ground truth annotation or a detection.
func (b *Box) Role() Role { return b.role }

// Confidence returns the detection confidence. ok is false for ground truth
// boxes, which carry no confidence value.
func (b *Box) Confidence() (v float64, ok bool) {
	if b.role != Detection {
		return 0, false
	}
	return b.confidence, true
}

// ImageSize returns a copy of the stored image size, if one was given at
// construction time.
func (b *Box) ImageSize() (ImageSize, bool) {
	if b.imgSize == nil {
		return ImageSize{}, false
	}
	return *b.imgSize, true
}

// Width is the box width in absolute pixels.
func (b *Box) Width() float64 { return b.w }

// Height is the box height in absolute pixels.
func (b *Box) Height() float64 { return b.h }

// Center returns the box center in absolute pixels.
func (b *Box) Center() (x, y float64) { return b.x, b.y }

// Area is the box area in absolute pixels.
func (b *Box) Area() float64 { return b.w * b.h }

// Corners returns the absolute xMin, yMin, xMax, yMax of the box.
func (b *Box) Corners() (xMin, yMin, xMax, yMax float64) {
	return b.x - b.w/2, b.y - b.h/2, b.x + b.w/2, b.y + b.h/2
}

// RawBoundingBox projects the canonical geometry into the requested encoding
// without modifying the box.
//
// size overrides the stored image size when non-nil. Requesting Relative
// coordinates fails with ErrMissingImageSize when neither a parameter nor a
// stored size is available.
//
// The coordinate type is converted before relative scaling. The opposite
// order gives identical results for both types since corners are linear in
// the center and size per axis: (x +- w/2)/W == x/W +- (w/W)/2.
func (b *Box) RawBoundingBox(ct CoordType, cs CoordSystem, size *ImageSize) ([4]float64, error) {
	var coords [4]float64
	if ct == CornerCorner {
		coords[0], coords[1], coords[2], coords[3] = b.Corners()
	} else {
		coords = [4]float64{b.x, b.y, b.w, b.h}
	}

	if cs == Relative {
		if size == nil {
			size = b.imgSize
		}
		if size == nil {
			return [4]float64{}, ErrMissingImageSize
		}
		for j := 0; j < 4; j++ {
			if j&1 == 0 {
				coords[j] /= size.Width
			} else {
				coords[j] /= size.Height
			}
		}
	}

	return coords, nil
}

// IoU computes the intersection over union of a and b, in [0, 1].
//
// Boxes that do not overlap, or overlap with zero area, yield exactly 0.
// The function is symmetric in its arguments.
func IoU(a, b *Box) float64 {
	ax1, ay1, ax2, ay2 := a.Corners()
	bx1, by1, bx2, by2 := b.Corners()

	xA := math.Max(ax1, bx1)
	yA := math.Max(ay1, by1)
	xB := math.Min(ax2, bx2)
	yB := math.Min(ay2, by2)

	if xB <= xA || yB <= yA {
		return 0
	}
	inter := (xB - xA) * (yB - yA)

	// The epsilon keeps a degenerate union away from an exact zero divide
	// without biasing the ratio.
	union := a.Area() + b.Area() - inter
	return inter / (union + math.SmallestNonzeroFloat64)
}

// IoU computes the intersection over union of b and other. See the package
// level IoU.
func (b *Box) IoU(other *Box) float64 { return IoU(b, other) }

// String renders the box for logs and diagnostics. It is not a parsing
// format.
//
// The printed values are the stored absolute center-size fields; only the
// field names and the abs./rel. suffix follow the encoding the box was
// constructed with.
func (b *Box) String() string {
	var coords string
	if b.coordType == CornerCorner {
		coords = fmt.Sprintf("(xMin: %v, yMin: %v, xMax: %v, yMax: %v)", b.x, b.y, b.w, b.h)
	} else {
		coords = fmt.Sprintf("(x: %v, y: %v, w: %v, h: %v)", b.x, b.y, b.w, b.h)
	}

	sys := "abs. coords"
	if b.coordSys == Relative {
		sys = "rel. coords"
	}

	origin := "ground truth"
	if b.role == Detection {
		origin = fmt.Sprintf("detection with confidence %v", b.confidence)
	}

	return fmt.Sprintf("%s: %s %s, %s", b.label, coords, sys, origin)
}

// withLabel returns a copy of b with the label replaced.
func (b *Box) withLabel(label string) *Box {
	nb := *b
	nb.label = label
	return &nb
}

// withGeometry returns a copy of b with replacement absolute center-size
// geometry.
func (b *Box) withGeometry(x, y, w, h float64) *Box {
	nb := *b
	nb.x, nb.y, nb.w, nb.h = x, y, w, h
	return &nb
}

// rescaled returns a copy of b with the geometry multiplied by the per axis
// factors and the stored image size, if any, scaled to match.
func (b *Box) rescaled(scaleW, scaleH float64) *Box {
	nb := *b
	nb.x *= scaleW
	nb.w *= scaleW
	nb.y *= scaleH
	nb.h *= scaleH
	if b.imgSize != nil {
		nb.imgSize = &ImageSize{Width: b.imgSize.Width * scaleW, Height: b.imgSize.Height * scaleH}
	}
	return &nb
}
