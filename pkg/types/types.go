package types

// BoundingBox is an axis-aligned rectangle in source image pixels.
// Width and Height may be zero for degenerate detections.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Right returns the exclusive right edge of the box
func (b BoundingBox) Right() int {
	return b.X + b.Width
}

// Bottom returns the exclusive bottom edge of the box
func (b BoundingBox) Bottom() int {
	return b.Y + b.Height
}

// ImageExtent is the size of a source image
type ImageExtent struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CropRegion is a square Size x Size sub-region of a source image
type CropRegion struct {
	StartX int `json:"start_x"`
	StartY int `json:"start_y"`
	Size   int `json:"size"`
}

// Contains reports whether the box lies fully inside the crop
func (c CropRegion) Contains(b BoundingBox) bool {
	return b.X >= c.StartX && b.Y >= c.StartY &&
		b.Right() <= c.StartX+c.Size && b.Bottom() <= c.StartY+c.Size
}

// Keypoint is a named landmark with a position and confidence
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Detection is a single object detector result
type Detection struct {
	Class string      `json:"class"`
	Score float64     `json:"score"`
	Box   BoundingBox `json:"bbox"`
}

// Pose is one pose estimate made of keypoints
type Pose struct {
	Keypoints []Keypoint `json:"keypoints"`
	Score     float64    `json:"score"`
}

// Box represents a normalized bounding box with coordinates in [0,1] range,
// as returned by vision models
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ToPixels converts the normalized box to a pixel box for the given extent
func (b Box) ToPixels(ext ImageExtent) BoundingBox {
	fw, fh := float64(ext.Width), float64(ext.Height)
	x0 := int(clamp01(b.X)*fw + 0.5)
	y0 := int(clamp01(b.Y)*fh + 0.5)
	x1 := int(clamp01(b.X+b.W)*fw + 0.5)
	y1 := int(clamp01(b.Y+b.H)*fh + 0.5)
	return BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ProcessingOptions contains options for image processing
type ProcessingOptions struct {
	OutputDir    string
	InputSize    int
	Extension    string
	Quality      int
	Lossless     bool
	DebugOverlay bool
}
