// Package render paints detection boxes, crop regions and pose keypoints
// onto a copy of the source image.
package render

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/pose-cropper/pkg/pose"
	"github.com/menta2k/pose-cropper/pkg/types"
)

var (
	boxColor      = color.NRGBA{0, 255, 0, 255}   // detection box
	cropColor     = color.NRGBA{255, 204, 0, 255} // crop square
	limbColor     = color.NRGBA{0, 170, 255, 255}
	keypointColor = color.NRGBA{255, 0, 0, 255}
	labelColor    = color.NRGBA{255, 255, 255, 255}
)

// Scene is the geometry drawn on one frame
type Scene struct {
	Subject   *types.Detection
	Crop      *types.CropRegion
	Keypoints []types.Keypoint
}

// Options controls overlay drawing
type Options struct {
	// MinConfidence hides keypoints at or below this confidence
	MinConfidence float64
	// Labels draws keypoint names next to each keypoint
	Labels bool
	// Stroke is the line width in pixels, 0 picks one from the image size
	Stroke int
}

// DefaultOptions returns options that hide keypoints scored 0.3 or less
func DefaultOptions() Options {
	return Options{MinConfidence: 0.3}
}

// Overlay returns a new image with the scene drawn over img. img is not
// modified, so a fresh overlay per frame never accumulates stale marks.
func Overlay(img image.Image, scene Scene, opts Options) *image.NRGBA {
	dst := imaging.Clone(img)
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()

	stroke := opts.Stroke
	if stroke <= 0 {
		stroke = int(math.Max(2, 0.004*float64(minInt(w, h))))
	}
	radius := stroke + 2

	if scene.Subject != nil {
		b := scene.Subject.Box
		drawRect(dst, image.Rect(b.X, b.Y, b.Right(), b.Bottom()), boxColor, stroke)
	}
	if scene.Crop != nil && scene.Crop.Size > 0 {
		c := scene.Crop
		drawRect(dst, image.Rect(c.StartX, c.StartY, c.StartX+c.Size, c.StartY+c.Size), cropColor, stroke)
	}

	visible := make(map[string]types.Keypoint, len(scene.Keypoints))
	for _, kp := range scene.Keypoints {
		if kp.Confidence > opts.MinConfidence {
			visible[kp.Name] = kp
		}
	}

	for _, limb := range pose.Skeleton {
		a, okA := visible[pose.KeypointNames[limb[0]]]
		b, okB := visible[pose.KeypointNames[limb[1]]]
		if okA && okB {
			drawLine(dst, round(a.X), round(a.Y), round(b.X), round(b.Y), limbColor, stroke)
		}
	}

	for _, kp := range scene.Keypoints {
		if kp.Confidence <= opts.MinConfidence {
			continue
		}
		x, y := round(kp.X), round(kp.Y)
		fillCircle(dst, x, y, radius, keypointColor)
		if opts.Labels {
			drawLabel(dst, x+radius+1, y, kp.Name)
		}
	}

	return dst
}

func drawRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	for x := x0; x < x1; x++ {
		setPixel(img, x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	for y := y0; y < y1; y++ {
		setPixel(img, x, y, c)
	}
}

// drawLine is Bresenham with a square brush of the given width
func drawLine(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA, width int) {
	dx := absInt(x1 - x0)
	dy := -absInt(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	half := width / 2
	err := dx + dy
	for {
		for oy := -half; oy <= half; oy++ {
			for ox := -half; ox <= half; ox++ {
				setPixel(img, x0+ox, y0+oy, c)
			}
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func fillCircle(img *image.NRGBA, cx, cy, r int, c color.NRGBA) {
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if x*x+y*y <= r*r {
				setPixel(img, cx+x, cy+y, c)
			}
		}
	}
}

func drawLabel(img *image.NRGBA, x, y int, text string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y+4),
	}
	d.DrawString(text)
}

// setPixel writes c at (x, y) relative to the image origin, ignoring
// points outside the image
func setPixel(img *image.NRGBA, x, y int, c color.NRGBA) {
	b := img.Bounds()
	if x < 0 || y < 0 || x >= b.Dx() || y >= b.Dy() {
		return
	}
	i := y*img.Stride + x*4
	img.Pix[i+0] = c.R
	img.Pix[i+1] = c.G
	img.Pix[i+2] = c.B
	img.Pix[i+3] = c.A
}

func round(v float64) int {
	return int(math.Round(v))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
