package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	posecropper "github.com/menta2k/pose-cropper"
	"github.com/menta2k/pose-cropper/internal/config"
	"github.com/menta2k/pose-cropper/internal/logger"
	"github.com/menta2k/pose-cropper/internal/server"
	"github.com/menta2k/pose-cropper/internal/utils"
	"github.com/menta2k/pose-cropper/pkg/cache"
	"github.com/menta2k/pose-cropper/pkg/detection"
	"github.com/menta2k/pose-cropper/pkg/pipeline"
	"github.com/menta2k/pose-cropper/pkg/pose"
	"github.com/menta2k/pose-cropper/pkg/processing"
	"github.com/menta2k/pose-cropper/pkg/render"
)

func main() {
	var in, outDir, model, url, backend, policy, configPath, serve string
	var size int
	var minScore float64
	var overlay, labels bool

	flag.StringVar(&in, "in", "", "input image path, URL or directory (jpg/png/webp)")
	flag.StringVar(&outDir, "out", "out", "output directory")
	flag.StringVar(&backend, "backend", "ollama", "backend to use: ollama or llamacpp")
	flag.StringVar(&url, "url", "", "server URL (defaults: ollama=http://localhost:11434, llamacpp=http://localhost:8080)")
	flag.StringVar(&model, "model", "openbmb/minicpm-v4.5", "vision model name")
	flag.IntVar(&size, "size", pose.DefaultInputSize, "square pose model input size (px)")
	flag.Float64Var(&minScore, "min-score", detection.DefaultMinScore, "minimum detection score for the subject")
	flag.StringVar(&policy, "policy", string(detection.HighestScore), "subject selection: highest or first")
	flag.BoolVar(&overlay, "overlay", true, "write an overlay image with box, crop and skeleton")
	flag.BoolVar(&labels, "labels", false, "draw keypoint names on the overlay")
	flag.StringVar(&configPath, "config", "", "YAML config file")
	flag.StringVar(&serve, "serve", "", "listen address, e.g. :8080; runs the HTTP API instead of processing -in")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// explicit flags win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.Output.Dir = outDir
		case "backend":
			cfg.Backend.Kind = backend
		case "url":
			cfg.Backend.URL = url
		case "model":
			cfg.Backend.Model = model
		case "size":
			cfg.Pose.InputSize = size
		case "min-score":
			cfg.Detection.MinScore = minScore
		case "policy":
			cfg.Detection.Policy = policy
		case "overlay":
			cfg.Output.Overlay = overlay
		case "labels":
			cfg.Output.Labels = labels
		case "serve":
			cfg.Server.Port = serve
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	if serve == "" && in == "" {
		log.Fatalf("usage: %s -in input.jpg|URL|dir [-backend ollama|llamacpp] [-url server_url] [-out outdir] [-size 192] [-policy highest|first] | -serve :8080", filepath.Base(os.Args[0]))
	}

	if err := logger.Init(cfg.Server.Mode); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	session, err := newSession(cfg)
	if err != nil {
		logger.Logger.Fatal("failed to create session", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serve != "" {
		runServer(ctx, cfg, session)
		return
	}

	if err := runBatch(ctx, cfg, session, in); err != nil {
		logger.Logger.Fatal("processing failed", zap.Error(err))
	}
}

func newSession(cfg *config.Config) (*pipeline.Session, error) {
	vc, err := posecropper.NewClient(cfg.Backend.Kind, cfg.BackendURL())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Backend.Kind, err)
	}

	det := detection.NewDetector(vc, cfg.Backend.Model)
	det.SetEncodeOptions(processing.EncodeOptions{
		Format:  cfg.Backend.SendFmt,
		MaxDim:  cfg.Backend.SendSize,
		Quality: cfg.Backend.SendQ,
	})
	est := pose.NewEstimator(vc, cfg.PoseModel())

	opts := pipeline.Options{
		InputSize: cfg.Pose.InputSize,
		MaxPoses:  cfg.Pose.MaxPoses,
		Select: detection.SelectOptions{
			Class:    cfg.Detection.Class,
			MinScore: cfg.Detection.MinScore,
			Policy:   detection.SelectionPolicy(cfg.Detection.Policy),
		},
	}

	logger.Logger.Info("session ready",
		zap.String("backend", cfg.Backend.Kind),
		zap.String("url", cfg.BackendURL()),
		zap.String("model", cfg.Backend.Model),
		zap.String("pose_model", cfg.PoseModel()),
		zap.Int("input_size", opts.InputSize))

	return pipeline.NewSession(det, est, opts, logger.Logger), nil
}

func runServer(ctx context.Context, cfg *config.Config, session *pipeline.Session) {
	server.Version = posecropper.Version

	var rc server.ResultCache
	if cfg.Redis.Enabled {
		redisCache := cache.NewRedisCache(cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			logger.Logger.Warn("redis unavailable, caching disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			rc = redisCache
			logger.Logger.Info("redis cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
		}
	}

	if err := server.New(cfg, session, rc, logger.Logger).Run(ctx); err != nil {
		logger.Logger.Fatal("server failed", zap.Error(err))
	}
}

func runBatch(ctx context.Context, cfg *config.Config, session *pipeline.Session, in string) error {
	inputs := []string{in}
	if utils.DirExists(in) {
		files, err := utils.ListImageFiles(in)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no images found in %s", in)
		}
		inputs = files
	}

	if err := utils.EnsureDir(cfg.Output.Dir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	proc := processing.NewProcessor()
	src := pipeline.NewFileSource(inputs)
	renderOpts := render.Options{MinConfidence: cfg.Pose.MinConfidence, Labels: cfg.Output.Labels}

	var failed int
	err := session.Run(ctx, src, func(res *pipeline.Result, err error) bool {
		path := src.Current()
		if err != nil {
			if errors.Is(err, pipeline.ErrNotReady) {
				return false
			}
			failed++
			logger.Logger.Error("image failed", zap.String("input", path), zap.Error(err))
			return true
		}

		if res.Subject == nil {
			logger.Logger.Info("no person found", zap.String("input", path), zap.Int("detections", len(res.Detections)))
		} else {
			logger.Logger.Info("pose",
				zap.String("input", path),
				zap.Float64("subject_score", res.Subject.Score),
				zap.Any("crop", res.Crop),
				zap.Int("keypoints", len(res.Keypoints)),
				zap.Float64("score", res.Score))
		}

		if err := writeOutputs(proc, cfg, path, src.Image(), res, renderOpts); err != nil {
			failed++
			logger.Logger.Error("failed to write outputs", zap.String("input", path), zap.Error(err))
		}
		return true
	})
	if err != nil {
		return err
	}

	logger.Logger.Info("done", zap.Int("images", len(inputs)), zap.Int("failed", failed))
	return nil
}

func writeOutputs(proc *processing.Processor, cfg *config.Config, input string, img image.Image, res *pipeline.Result, opts render.Options) error {
	dir := cfg.Output.Dir

	if res.Input != nil {
		cropPath := utils.GenerateOutputFilename(input, dir, "_crop", cfg.Output.Format)
		if err := proc.SaveImage(res.Input, cropPath, cfg.Output.Format, cfg.Output.Quality, cfg.Output.Lossless); err != nil {
			return err
		}
		logger.Logger.Debug("wrote", zap.String("path", cropPath))
	}

	if cfg.Output.Overlay && img != nil {
		overlayPath := utils.GenerateOutputFilename(input, dir, "_pose", "png")
		if err := proc.SaveImage(render.Overlay(img, res.Scene(), opts), overlayPath, "png", 0, false); err != nil {
			return err
		}
		logger.Logger.Debug("wrote", zap.String("path", overlayPath))
	}

	js, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	jsonPath := utils.GenerateOutputFilename(input, dir, "_pose", "json")
	return os.WriteFile(jsonPath, js, 0o644)
}
