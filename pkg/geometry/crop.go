// Package geometry computes square crop regions around detected subjects
// and maps model-space keypoints back into source image coordinates.
package geometry

import (
	"errors"
	"image"

	"github.com/menta2k/pose-cropper/pkg/types"
)

var (
	// ErrEmptyImage is returned when the image extent has a non-positive side
	ErrEmptyImage = errors.New("geometry: image extent must be positive")
	// ErrInvalidSize is returned when the resized model input size is not positive
	ErrInvalidSize = errors.New("geometry: resized size must be positive")
)

// ComputeCrop returns a square region of the image that contains the box.
//
// The short side of the box is padded symmetrically until the box is square.
// When the padding would leave the image on the padded axis, the crop falls
// back to the full extent of that axis (or the opposite axis when it is
// shorter) instead of clamping asymmetrically. A padding equal to the room
// available still fits and does not trigger the fallback.
func ComputeCrop(box types.BoundingBox, img types.ImageExtent) (types.CropRegion, error) {
	if img.Width <= 0 || img.Height <= 0 {
		return types.CropRegion{}, ErrEmptyImage
	}

	box = clampBox(box, img)
	w, h := box.Width, box.Height

	if h > w {
		padding := halfRounded(h - w)
		if padding > box.X || padding > img.Width-box.Right() {
			return fallbackHorizontal(box, img), nil
		}
		return types.CropRegion{StartX: box.X - padding, StartY: box.Y, Size: h}, nil
	}

	// zero sized box, nothing to pad around
	if w == 0 {
		return fallbackVertical(box, img), nil
	}

	padding := halfRounded(w - h)
	if padding > box.Y || padding > img.Height-box.Bottom() {
		return fallbackVertical(box, img), nil
	}
	return types.CropRegion{StartX: box.X, StartY: box.Y - padding, Size: w}, nil
}

// fallbackHorizontal spans the full image width, or the full height when the
// image is wider than tall
func fallbackHorizontal(box types.BoundingBox, img types.ImageExtent) types.CropRegion {
	size := minInt(img.Width, img.Height)
	return types.CropRegion{
		StartX: centeredStart(box.X, box.Width, size, img.Width),
		StartY: minInt(box.Y, img.Height-size),
		Size:   size,
	}
}

// fallbackVertical spans the full image height, or the full width when the
// image is taller than wide
func fallbackVertical(box types.BoundingBox, img types.ImageExtent) types.CropRegion {
	size := minInt(img.Width, img.Height)
	return types.CropRegion{
		StartX: minInt(box.X, img.Width-size),
		StartY: centeredStart(box.Y, box.Height, size, img.Height),
		Size:   size,
	}
}

// centeredStart centres a span of the given size on [start, start+length)
// and clamps it into [0, extent]. A span covering the whole extent starts at 0.
func centeredStart(start, length, size, extent int) int {
	s := start + length/2 - size/2
	return clampInt(s, 0, extent-size)
}

// halfRounded is d/2 rounded half up
func halfRounded(d int) int {
	return (d + 1) / 2
}

func clampBox(b types.BoundingBox, img types.ImageExtent) types.BoundingBox {
	x0 := clampInt(b.X, 0, img.Width)
	y0 := clampInt(b.Y, 0, img.Height)
	x1 := clampInt(b.X+maxInt(b.Width, 0), x0, img.Width)
	y1 := clampInt(b.Y+maxInt(b.Height, 0), y0, img.Height)
	return types.BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Rect converts a crop region to an image rectangle
func Rect(c types.CropRegion) image.Rectangle {
	return image.Rect(c.StartX, c.StartY, c.StartX+c.Size, c.StartY+c.Size)
}

// ExtentOf returns the extent of an image
func ExtentOf(img image.Image) types.ImageExtent {
	b := img.Bounds()
	return types.ImageExtent{Width: b.Dx(), Height: b.Dy()}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
