// Package server exposes the pose pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/pose-cropper/internal/config"
	"github.com/menta2k/pose-cropper/pkg/pipeline"
	"github.com/menta2k/pose-cropper/pkg/processing"
)

// ResultCache stores pipeline results by key. Get returns nil on a miss.
type ResultCache interface {
	Get(ctx context.Context, key string) (*pipeline.Result, error)
	Set(ctx context.Context, key string, result *pipeline.Result) error
}

// Version is reported by /health
var Version = "dev"

// Server serves pose requests
type Server struct {
	cfg     *config.Config
	session *pipeline.Session
	cache   ResultCache
	proc    *processing.Processor
	logger  *zap.Logger
	engine  *gin.Engine
}

// New builds the server and its routes. cache may be nil.
func New(cfg *config.Config, session *pipeline.Session, cache ResultCache, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	mode := cfg.Server.Mode
	if mode != gin.ReleaseMode && mode != gin.TestMode {
		mode = gin.DebugMode
	}
	gin.SetMode(mode)

	s := &Server{
		cfg:     cfg,
		session: session,
		cache:   cache,
		proc:    processing.NewProcessor(),
		logger:  logger,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.MaxMultipartMemory = cfg.Upload.MaxSize

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": Version,
			"ready":   session != nil && session.Ready(),
		})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/pose", s.Pose)
		api.GET("/pose/:key", s.GetByKey)
	}

	s.engine = r
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on the configured port until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Port,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("port", s.cfg.Server.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) isAllowedType(contentType string) bool {
	contentType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, allowed := range s.cfg.Upload.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}
