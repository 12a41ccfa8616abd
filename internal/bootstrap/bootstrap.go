// Package bootstrap provides dependency initialization for the narration video service.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/narration-video-api/internal/audio"
	"github.com/maauso/narration-video-api/internal/config"
	"github.com/maauso/narration-video-api/internal/engine"
	"github.com/maauso/narration-video-api/internal/media"
	"github.com/maauso/narration-video-api/internal/pipeline"
	"github.com/maauso/narration-video-api/internal/server"
	"github.com/maauso/narration-video-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Orchestrator *pipeline.Orchestrator
	Storage      storage.Storage
	Handlers     *server.Handlers
	Router       server.Config
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize media engine
	runner := engine.NewFFmpeg(cfg.FFmpegPath,
		engine.WithTimeout(cfg.EngineTimeout),
		engine.WithLogger(logger),
	)
	prober := engine.NewFFprobe(cfg.FFprobePath, cfg.ProbeTimeout)

	// Initialize mixer and muxer
	mixer := audio.NewFFmpegMixer(runner, audio.MixOpts{
		Strategy:         audio.Strategy(cfg.MixStrategy),
		BackgroundVolume: cfg.BackgroundVolume,
	}, logger)
	muxer := media.NewFFmpegMuxer(runner, logger, media.WithVideoCovers(cfg.VideoCoverEnabled))

	orch := pipeline.NewOrchestrator(prober, mixer, muxer, store, logger,
		pipeline.WithPadSeconds(cfg.PadSeconds),
		pipeline.WithMaxConcurrent(cfg.MaxConcurrentRuns),
		pipeline.WithAdmissionTimeout(cfg.AdmissionTimeout),
		pipeline.WithMinFreeDisk(cfg.MinFreeDiskBytes()),
		pipeline.WithRepository(pipeline.NewMemoryRepository(pipeline.DefaultMaxRuns)),
	)

	// Outputs are only served locally when they stay on disk.
	handlerOpts := []server.HandlerOption{
		server.WithMaxUploadBytes(cfg.MaxUploadBytes),
	}
	if !cfg.S3Enabled() {
		handlerOpts = append(handlerOpts, server.WithOutputsDir(store.Dir()))
	}
	handlers := server.NewHandlers(orch, logger, handlerOpts...)

	return &Dependencies{
		Orchestrator: orch,
		Storage:      store,
		Handlers:     handlers,
		Router: server.Config{
			AllowedOrigins: cfg.AllowedOrigins,
			PublicPath:     cfg.PublicUploadsPath,
		},
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			KeyPrefix:       cfg.S3KeyPrefix,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.UploadsDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("uploads_dir", s3Store.Dir()),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.UploadsDir, cfg.PublicUploadsPath)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("uploads_dir", localStore.Dir()),
		slog.String("public_path", cfg.PublicUploadsPath),
	)
	return localStore, nil
}
