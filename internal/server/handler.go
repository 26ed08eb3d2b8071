package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/pose-cropper/internal/utils"
	"github.com/menta2k/pose-cropper/pkg/cache"
	"github.com/menta2k/pose-cropper/pkg/pipeline"
	"github.com/menta2k/pose-cropper/pkg/render"
)

// PoseResponse is returned by the pose endpoints
type PoseResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Key     string           `json:"key,omitempty"`
	Cached  bool             `json:"cached"`
	Data    *pipeline.Result `json:"data,omitempty"`
}

// ErrorResponse is returned on failure
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func abort(c *gin.Context, status int, message string, err error) {
	resp := ErrorResponse{Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	c.AbortWithStatusJSON(status, resp)
}

// Pose handles an image upload in the "file" form field and returns the
// subject crop and remapped keypoints. With overlay=true the response is a
// PNG with the geometry drawn on the image.
func (s *Server) Pose(c *gin.Context) {
	if s.session == nil || !s.session.Ready() {
		abort(c, http.StatusServiceUnavailable, "models not loaded", nil)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		abort(c, http.StatusBadRequest, "an image file is required in the \"file\" field", err)
		return
	}

	if file.Size > s.cfg.Upload.MaxSize {
		abort(c, http.StatusBadRequest,
			fmt.Sprintf("file exceeds size limit (%s)", utils.FormatFileSize(s.cfg.Upload.MaxSize)), nil)
		return
	}

	contentType := file.Header.Get("Content-Type")
	if !s.isAllowedType(contentType) {
		abort(c, http.StatusBadRequest, fmt.Sprintf("unsupported file type %q", contentType), nil)
		return
	}

	f, err := file.Open()
	if err != nil {
		abort(c, http.StatusInternalServerError, "failed to read upload", err)
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		abort(c, http.StatusInternalServerError, "failed to read upload", err)
		return
	}

	img, err := s.proc.DecodeImage(data)
	if err != nil {
		abort(c, http.StatusBadRequest, "failed to decode image", err)
		return
	}

	ctx := c.Request.Context()
	key := cache.Key(data, s.session.Options())
	overlay := c.DefaultPostForm("overlay", c.DefaultQuery("overlay", "false")) == "true"

	s.logger.Info("file uploaded",
		zap.String("filename", file.Filename),
		zap.String("key", key),
		zap.Int64("size", file.Size),
		zap.Bool("overlay", overlay))

	result, cached := s.lookup(c, key)
	if result == nil {
		result, err = s.session.Process(ctx, img)
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, pipeline.ErrNotReady) {
				status = http.StatusServiceUnavailable
			}
			s.logger.Error("failed to process image", zap.String("key", key), zap.Error(err))
			abort(c, status, "pose processing failed", err)
			return
		}
		s.store(c, key, result)
	}

	if overlay {
		out := render.Overlay(img, result.Scene(), render.Options{
			MinConfidence: s.cfg.Pose.MinConfidence,
			Labels:        s.cfg.Output.Labels,
		})
		c.Header("Content-Type", "image/png")
		c.Status(http.StatusOK)
		if err := s.proc.EncodePNG(c.Writer, out); err != nil {
			s.logger.Error("failed to encode overlay", zap.Error(err))
		}
		return
	}

	message := "processed"
	if result.Subject == nil {
		message = "no person found"
	}
	c.JSON(http.StatusOK, PoseResponse{
		Success: true,
		Message: message,
		Key:     key,
		Cached:  cached,
		Data:    result,
	})
}

// GetByKey returns a cached result
func (s *Server) GetByKey(c *gin.Context) {
	if s.cache == nil {
		abort(c, http.StatusNotFound, "cache disabled", nil)
		return
	}

	key := c.Param("key")
	result, err := s.cache.Get(c.Request.Context(), key)
	if err != nil {
		s.logger.Error("failed to get cached result", zap.String("key", key), zap.Error(err))
		abort(c, http.StatusInternalServerError, "lookup failed", err)
		return
	}
	if result == nil {
		abort(c, http.StatusNotFound, "no result for key", nil)
		return
	}

	c.JSON(http.StatusOK, PoseResponse{Success: true, Message: "found", Key: key, Cached: true, Data: result})
}

func (s *Server) lookup(c *gin.Context, key string) (*pipeline.Result, bool) {
	if s.cache == nil {
		return nil, false
	}
	result, err := s.cache.Get(c.Request.Context(), key)
	if err != nil {
		s.logger.Warn("failed to get cache", zap.Error(err))
		return nil, false
	}
	if result != nil {
		s.logger.Info("cache hit", zap.String("key", key))
	}
	return result, result != nil
}

func (s *Server) store(c *gin.Context, key string, result *pipeline.Result) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(c.Request.Context(), key, result); err != nil {
		s.logger.Warn("failed to set cache", zap.Error(err))
	}
}
