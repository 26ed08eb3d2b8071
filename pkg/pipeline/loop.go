package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"go.uber.org/zap"

	"github.com/menta2k/pose-cropper/pkg/processing"
)

// FrameSource yields images one at a time. Next returns io.EOF when exhausted.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
}

// Handler receives each frame's outcome and returns false to stop the loop
type Handler func(res *Result, err error) bool

// Run processes frames strictly in sequence: the next frame is requested
// only after the previous one was processed and handled. Source errors other
// than io.EOF are handed to the handler with a nil result. It returns nil when
// the source is exhausted or the handler stops, and ctx.Err() on cancellation.
func (s *Session) Run(ctx context.Context, src FrameSource, handle Handler) error {
	for frame := 0; ; frame++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		img, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.logger.Debug("frame source exhausted", zap.Int("frames", frame))
			return nil
		}
		if err != nil {
			if !handle(nil, fmt.Errorf("frame %d: %w", frame, err)) {
				return nil
			}
			continue
		}

		res, err := s.Process(ctx, img)
		if !handle(res, err) {
			return nil
		}
	}
}

// FileSource reads images from a list of paths or URLs
type FileSource struct {
	paths []string
	proc  *processing.Processor
	next  int
	last  image.Image
}

// NewFileSource creates a source over the given paths
func NewFileSource(paths []string) *FileSource {
	return &FileSource{paths: paths, proc: processing.NewProcessor()}
}

// Next loads the next image
func (f *FileSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.next >= len(f.paths) {
		return nil, io.EOF
	}
	path := f.paths[f.next]
	f.next++
	f.last = nil

	img, err := f.proc.LoadImageSmart(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	f.last = img
	return img, nil
}

// Current returns the path of the most recently returned image
func (f *FileSource) Current() string {
	if f.next == 0 {
		return ""
	}
	return f.paths[f.next-1]
}

// Image returns the most recently loaded image, nil if it failed to load
func (f *FileSource) Image() image.Image {
	return f.last
}
