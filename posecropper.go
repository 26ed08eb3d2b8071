// Package posecropper finds a person in an image, cuts a square crop around
// them for a fixed-size pose model, and maps the model's keypoints back to
// the original image.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		posecropper "github.com/menta2k/pose-cropper"
//	)
//
//	func main() {
//		vc, err := posecropper.NewClient("ollama", "http://localhost:11434")
//		if err != nil {
//			log.Fatal(err)
//		}
//		pc := posecropper.New(vc, "openbmb/minicpm-v4.5")
//
//		res, err := pc.ProcessFile(context.Background(), "photo.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//		if res.Subject == nil {
//			fmt.Println("no person found")
//			return
//		}
//		for _, kp := range res.Keypoints {
//			fmt.Printf("%s %.1f,%.1f (%.2f)\n", kp.Name, kp.X, kp.Y, kp.Confidence)
//		}
//	}
//
// The work is split across packages:
//
//  1. Geometry (pkg/geometry): square crop computation and keypoint remapping
//  2. Detection (pkg/detection): object detection and subject selection
//  3. Pose (pkg/pose): keypoint estimation on the square crop
//  4. Pipeline (pkg/pipeline): per-image pass and sequential frame loop
//  5. Render (pkg/render): overlays with boxes, crops and skeletons
//
// Box and crop coordinates are integer pixels of the source image. When the
// box cannot be padded to a square without leaving the image, the crop
// spans the full short side of the image instead.
package posecropper

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/menta2k/pose-cropper/pkg/client"
	"github.com/menta2k/pose-cropper/pkg/detection"
	"github.com/menta2k/pose-cropper/pkg/geometry"
	"github.com/menta2k/pose-cropper/pkg/llamacpp"
	"github.com/menta2k/pose-cropper/pkg/ollama"
	"github.com/menta2k/pose-cropper/pkg/pipeline"
	"github.com/menta2k/pose-cropper/pkg/pose"
	"github.com/menta2k/pose-cropper/pkg/processing"
	"github.com/menta2k/pose-cropper/pkg/render"
	"github.com/menta2k/pose-cropper/pkg/types"
)

// Version of the pose cropper library
const Version = "1.0.0"

// PoseCropper provides a high-level interface over the pipeline
type PoseCropper struct {
	session *pipeline.Session
	proc    *processing.Processor
}

// NewClient creates a vision client for the "ollama" or "llamacpp" backend
func NewClient(backend, url string) (client.VisionClient, error) {
	switch backend {
	case "ollama":
		if url == "" {
			url = "http://localhost:11434"
		}
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s (use 'ollama' or 'llamacpp')", backend)
	}
}

// New creates a PoseCropper that uses the same vision model for detection
// and pose estimation, with default options
func New(vc client.VisionClient, model string) *PoseCropper {
	return NewWithModels(detection.NewDetector(vc, model), pose.NewEstimator(vc, model), pipeline.DefaultOptions(), nil)
}

// NewWithModels creates a PoseCropper from explicit models and options
func NewWithModels(det detection.ObjectDetector, est pose.PoseEstimator, opts pipeline.Options, logger *zap.Logger) *PoseCropper {
	return &PoseCropper{
		session: pipeline.NewSession(det, est, opts, logger),
		proc:    processing.NewProcessor(),
	}
}

// Session returns the underlying pipeline session
func (pc *PoseCropper) Session() *pipeline.Session {
	return pc.session
}

// ProcessImage runs the full pipeline on an image
func (pc *PoseCropper) ProcessImage(ctx context.Context, img image.Image) (*pipeline.Result, error) {
	return pc.session.Process(ctx, img)
}

// ProcessFile loads an image from a path or URL and runs the pipeline
func (pc *PoseCropper) ProcessFile(ctx context.Context, source string) (*pipeline.Result, error) {
	img, err := pc.proc.LoadImageSmart(source)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	return pc.session.Process(ctx, img)
}

// Overlay draws a result over the image it was computed from
func (pc *PoseCropper) Overlay(img image.Image, res *pipeline.Result, opts render.Options) *image.NRGBA {
	return render.Overlay(img, res.Scene(), opts)
}

// ComputeCrop returns the square crop for a box. See geometry.ComputeCrop.
func ComputeCrop(box types.BoundingBox, img types.ImageExtent) (types.CropRegion, error) {
	return geometry.ComputeCrop(box, img)
}

// RemapKeypoints maps model-space keypoints to image space. See geometry.RemapKeypoints.
func RemapKeypoints(kps []types.Keypoint, crop types.CropRegion, resizedSize int) ([]types.Keypoint, error) {
	return geometry.RemapKeypoints(kps, crop, resizedSize)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
