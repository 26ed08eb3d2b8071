// Package pipeline ties detection, square cropping, pose estimation and
// keypoint remapping into a single per-image pass.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/menta2k/pose-cropper/pkg/detection"
	"github.com/menta2k/pose-cropper/pkg/geometry"
	"github.com/menta2k/pose-cropper/pkg/pose"
	"github.com/menta2k/pose-cropper/pkg/processing"
	"github.com/menta2k/pose-cropper/pkg/render"
	"github.com/menta2k/pose-cropper/pkg/types"
)

// ErrNotReady is returned when the session has no detector or estimator yet.
// Callers treat it as a no-op.
var ErrNotReady = errors.New("pipeline: models not loaded")

// Options configures a Session
type Options struct {
	InputSize int
	MaxPoses  int
	Select    detection.SelectOptions
}

// DefaultOptions returns a 192px input, one pose, and the default subject selection
func DefaultOptions() Options {
	return Options{
		InputSize: pose.DefaultInputSize,
		MaxPoses:  1,
		Select:    detection.DefaultSelectOptions(),
	}
}

// Result is the outcome of processing one image. Subject is nil when no
// detection qualified; Keypoints is empty when the estimator found no pose.
type Result struct {
	Extent     types.ImageExtent `json:"extent"`
	Detections []types.Detection `json:"detections"`
	Subject    *types.Detection  `json:"subject,omitempty"`
	Crop       *types.CropRegion `json:"crop,omitempty"`
	InputSize  int               `json:"input_size"`
	Keypoints  []types.Keypoint  `json:"keypoints,omitempty"`
	Score      float64           `json:"score"`
	Input      *image.NRGBA      `json:"-"`
}

// Scene returns the geometry to draw for this result
func (r *Result) Scene() render.Scene {
	return render.Scene{Subject: r.Subject, Crop: r.Crop, Keypoints: r.Keypoints}
}

// Session owns the models and options used for a sequence of images
type Session struct {
	detector  detection.ObjectDetector
	estimator pose.PoseEstimator
	proc      *processing.Processor
	opts      Options
	logger    *zap.Logger
}

// NewSession creates a session. A nil logger disables logging.
func NewSession(detector detection.ObjectDetector, estimator pose.PoseEstimator, opts Options, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.InputSize <= 0 {
		opts.InputSize = pose.DefaultInputSize
	}
	if opts.MaxPoses <= 0 {
		opts.MaxPoses = 1
	}
	if opts.Select.Class == "" {
		opts.Select.Class = detection.PersonClass
	}
	if !opts.Select.Policy.Valid() {
		opts.Select.Policy = detection.HighestScore
	}
	return &Session{
		detector:  detector,
		estimator: estimator,
		proc:      processing.NewProcessor(),
		opts:      opts,
		logger:    logger,
	}
}

// Ready reports whether both models are set
func (s *Session) Ready() bool {
	return s.detector != nil && s.estimator != nil
}

// Options returns the effective session options
func (s *Session) Options() Options {
	return s.opts
}

// Process runs detection, crop, pose estimation and remapping on img
func (s *Session) Process(ctx context.Context, img image.Image) (*Result, error) {
	if !s.Ready() {
		return nil, ErrNotReady
	}
	if img == nil {
		return nil, fmt.Errorf("pipeline: nil image")
	}

	ext := geometry.ExtentOf(img)
	res := &Result{Extent: ext, InputSize: s.opts.InputSize}

	dets, err := s.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("object detection failed: %w", err)
	}
	res.Detections = dets

	subject, ok := detection.SelectSubject(dets, s.opts.Select)
	if !ok {
		s.logger.Debug("no subject found",
			zap.Int("detections", len(dets)),
			zap.Float64("min_score", s.opts.Select.MinScore))
		return res, nil
	}
	res.Subject = &subject

	crop, err := geometry.ComputeCrop(subject.Box, ext)
	if err != nil {
		return nil, err
	}
	res.Crop = &crop

	input, err := s.proc.CropSquare(img, crop, s.opts.InputSize)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare pose input: %w", err)
	}
	res.Input = input

	poses, err := s.estimator.EstimatePoses(ctx, input, s.opts.MaxPoses)
	if err != nil {
		return nil, fmt.Errorf("pose estimation failed: %w", err)
	}
	if len(poses) == 0 {
		s.logger.Debug("no pose found", zap.Any("crop", crop))
		return res, nil
	}

	kps, err := geometry.RemapKeypoints(poses[0].Keypoints, crop, s.opts.InputSize)
	if err != nil {
		return nil, err
	}
	res.Keypoints = kps
	res.Score = poses[0].Score

	s.logger.Debug("pose estimated",
		zap.String("class", subject.Class),
		zap.Float64("subject_score", subject.Score),
		zap.Int("crop_x", crop.StartX),
		zap.Int("crop_y", crop.StartY),
		zap.Int("crop_size", crop.Size),
		zap.Int("keypoints", len(kps)))

	return res, nil
}
