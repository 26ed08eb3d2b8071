// Package pose estimates human keypoints on a square model input image.
package pose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/menta2k/pose-cropper/pkg/client"
	"github.com/menta2k/pose-cropper/pkg/processing"
	"github.com/menta2k/pose-cropper/pkg/types"
)

// DefaultInputSize is the square input side expected by single-person pose models
const DefaultInputSize = 192

// ErrNotSquare is returned when the estimator input is not square
var ErrNotSquare = errors.New("pose: input image must be square")

// PoseEstimator returns up to maxPoses poses for a square input image. Keypoint
// coordinates are pixels of that input image.
type PoseEstimator interface {
	EstimatePoses(ctx context.Context, img image.Image, maxPoses int) ([]types.Pose, error)
}

// DefaultPrompt asks the model for COCO keypoints normalized to the image
var DefaultPrompt = `You are a human pose estimator.

Return JSON only:
{
  "poses": [
    {
      "score": 0.0,
      "keypoints": [{"name": "nose", "x": 0.0, "y": 0.0, "score": 0.0}]
    }
  ]
}

HARD RULES
- Use exactly these keypoint names: ` + strings.Join(KeypointNames[:], ", ") + `.
- Coordinates are normalized to [0,1] (NOT pixels) relative to the image.
- "score" is your confidence in [0,1]; use 0 for keypoints you cannot see.
- Return at most %d poses, best first. If no person is visible return {"poses": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

type poseResponse struct {
	Poses []struct {
		Score     float64 `json:"score"`
		Keypoints []struct {
			Name  string  `json:"name"`
			X     float64 `json:"x"`
			Y     float64 `json:"y"`
			Score float64 `json:"score"`
		} `json:"keypoints"`
	} `json:"poses"`
}

// Estimator runs pose estimation through a vision model client
type Estimator struct {
	client client.VisionClient
	proc   *processing.Processor
	model  string
	format string
}

// NewEstimator creates an estimator backed by a vision client
func NewEstimator(c client.VisionClient, model string) *Estimator {
	return &Estimator{
		client: c,
		proc:   processing.NewProcessor(),
		model:  model,
		format: "png",
	}
}

// EstimatePoses implements PoseEstimator
func (e *Estimator) EstimatePoses(ctx context.Context, img image.Image, maxPoses int) ([]types.Pose, error) {
	b := img.Bounds()
	if b.Dx() != b.Dy() || b.Dx() == 0 {
		return nil, ErrNotSquare
	}
	if maxPoses <= 0 {
		maxPoses = 1
	}

	// model input is already small, send it as is
	imgB64, _, err := e.proc.EncodeForModel(img, processing.EncodeOptions{Format: e.format})
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	raw, err := e.client.Query(ctx, e.model, fmt.Sprintf(DefaultPrompt, maxPoses), imgB64)
	if err != nil {
		return nil, fmt.Errorf("pose query failed: %w", err)
	}

	return parsePoses(raw, float64(b.Dx()), maxPoses)
}

func parsePoses(raw string, size float64, maxPoses int) ([]types.Pose, error) {
	var resp poseResponse
	if err := client.DecodeModelJSON(raw, &resp); err != nil {
		return nil, err
	}

	poses := make([]types.Pose, 0, len(resp.Poses))
	for _, p := range resp.Poses {
		if len(poses) == maxPoses {
			break
		}

		kps := make([]types.Keypoint, 0, len(p.Keypoints))
		for _, k := range p.Keypoints {
			name := strings.ToLower(strings.TrimSpace(k.Name))
			if KeypointIndex(name) < 0 {
				continue
			}
			kps = append(kps, types.Keypoint{
				X:          clamp(k.X, 0, 1) * size,
				Y:          clamp(k.Y, 0, 1) * size,
				Name:       name,
				Confidence: clamp(k.Score, 0, 1),
			})
		}
		poses = append(poses, types.Pose{Keypoints: kps, Score: clamp(p.Score, 0, 1)})
	}
	return poses, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
