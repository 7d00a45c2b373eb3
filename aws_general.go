package bboxconv

// AWSBoundingBox defines an axis-aligned rectangle with the dimensions given as normalised ratios
// of the image size.
type AWSBoundingBox struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// AWSPoint defines a point in an image. The coordinates are normalised ratios of the image size.
type AWSPoint struct {
	X float64
	Y float64
}

// awsBoxParams prepares Box construction parameters for an AWS bounding box: relative min corner
// plus size, converted to relative corner coordinates, with the AWS [0, 100] confidence mapped to
// a [0, 1] detection confidence.
func awsBoxParams(name, label string, bb AWSBoundingBox, confidence float64,
		size *ImageSize) Params {

	c := confidence / 100
	return Params{
		Name:        name,
		Label:       label,
		CoordType:   CornerCorner,
		CoordSystem: Relative,
		Coords:      [4]float64{bb.Left, bb.Top, bb.Left + bb.Width, bb.Top + bb.Height},
		ImageSize:   size,
		Role:        Detection,
		Confidence:  &c,
	}
}
