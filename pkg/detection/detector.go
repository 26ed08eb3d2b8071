// Package detection locates objects with a vision model and picks the
// person used as the pose subject.
package detection

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/menta2k/pose-cropper/pkg/client"
	"github.com/menta2k/pose-cropper/pkg/geometry"
	"github.com/menta2k/pose-cropper/pkg/processing"
	"github.com/menta2k/pose-cropper/pkg/types"
)

// ObjectDetector finds objects in an image. Boxes are in the pixel space of
// the image passed in.
type ObjectDetector interface {
	Detect(ctx context.Context, img image.Image) ([]types.Detection, error)
}

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks the model for every object with a normalized box
const DefaultPrompt = `You are an object detector.

Return JSON only:
{
  "objects": [
    {"class": "string", "score": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ]
}

HARD RULES
- "class" is a lowercase COCO class name such as "person", "dog", "car".
- "score" is your confidence in [0,1].
- Box coordinates are normalized to [0,1] (NOT pixels); x,y is the top-left corner.
- Each box tightly includes the whole object.
- If nothing is found, return {"objects": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// classAliases maps free-form model labels to COCO class names
var classAliases = map[string]string{
	"human":  PersonClass,
	"man":    PersonClass,
	"woman":  PersonClass,
	"boy":    PersonClass,
	"girl":   PersonClass,
	"child":  PersonClass,
	"people": PersonClass,
}

type detectionResponse struct {
	Objects []struct {
		Class string    `json:"class"`
		Score float64   `json:"score"`
		Box   types.Box `json:"box"`
	} `json:"objects"`
}

// Detector handles object detection using vision models
type Detector struct {
	client client.VisionClient
	proc   *processing.Processor
	model  string
	prompt string
	encode processing.EncodeOptions
}

// NewDetector creates a new detector with a vision client
func NewDetector(c client.VisionClient, model string) *Detector {
	return &Detector{
		client: c,
		proc:   processing.NewProcessor(),
		model:  model,
		prompt: DefaultPrompt,
		encode: processing.DefaultEncodeOptions(),
	}
}

// SetPrompt overrides the detection prompt
func (d *Detector) SetPrompt(prompt string) {
	d.prompt = prompt
}

// SetEncodeOptions changes how images are sent to the model
func (d *Detector) SetEncodeOptions(opts processing.EncodeOptions) {
	d.encode = opts
}

// Detect sends the image to the model and returns detections in the pixel
// space of img
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	imgB64, sent, err := d.proc.EncodeForModel(img, d.encode)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	raw, err := d.client.Query(ctx, d.model, d.prompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("detection query failed: %w", err)
	}

	return parseDetections(raw, sent, geometry.ExtentOf(img))
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, img image.Image) (string, error) {
	imgB64, _, err := d.proc.EncodeForModel(img, d.encode)
	if err != nil {
		return "", err
	}
	return d.client.SimpleQuery(ctx, d.model, SimpleTestPrompt, imgB64)
}

// parseDetections decodes a model reply. Boxes given in pixels are taken to
// be in the space of the encoded image that was sent.
func parseDetections(raw string, sent, target types.ImageExtent) ([]types.Detection, error) {
	var resp detectionResponse
	if err := client.DecodeModelJSON(raw, &resp); err != nil {
		return nil, err
	}

	dets := make([]types.Detection, 0, len(resp.Objects))
	for _, o := range resp.Objects {
		dets = append(dets, types.Detection{
			Class: normalizeClass(o.Class),
			Score: clamp(o.Score, 0, 1),
			Box:   normalizeBox(o.Box, sent).ToPixels(target),
		})
	}
	return dets, nil
}

func normalizeClass(class string) string {
	class = strings.ToLower(strings.TrimSpace(class))
	if alias, ok := classAliases[class]; ok {
		return alias
	}
	return class
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox ensures box coordinates are within [0,1] bounds, converting
// from pixel coordinates of ext when any value exceeds 1
func normalizeBox(b types.Box, ext types.ImageExtent) types.Box {
	if (b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1) && ext.Width > 0 && ext.Height > 0 {
		b = types.Box{
			X: b.X / float64(ext.Width),
			Y: b.Y / float64(ext.Height),
			W: b.W / float64(ext.Width),
			H: b.H / float64(ext.Height),
		}
	}

	return types.Box{
		X: clamp(b.X, 0, 1),
		Y: clamp(b.Y, 0, 1),
		W: clamp(b.W, 0, 1),
		H: clamp(b.H, 0, 1),
	}
}
