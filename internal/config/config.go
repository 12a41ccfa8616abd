// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// ErrInvalidConfig is returned when a loaded value is out of range.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=3000" json:"port" validate:"min=1,max=65535"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins" validate:"min=1"`
	MaxUploadBytes int64    `env:"MAX_UPLOAD_BYTES, default=52428800" json:"max_upload_bytes" validate:"min=1"`

	// Storage settings
	UploadsDir        string `env:"UPLOADS_DIR, default=./public/uploads" json:"uploads_dir" validate:"required"`
	PublicUploadsPath string `env:"PUBLIC_UPLOADS_PATH, default=/uploads" json:"public_uploads_path" validate:"required,startswith=/"`

	// Media engine settings
	FFmpegPath    string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path" validate:"required"`
	FFprobePath   string        `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path" validate:"required"`
	EngineTimeout time.Duration `env:"ENGINE_TIMEOUT, default=10m" json:"engine_timeout" validate:"min=0"`
	ProbeTimeout  time.Duration `env:"PROBE_TIMEOUT, default=30s" json:"probe_timeout" validate:"min=0"`

	// Processing settings
	PadSeconds        float64 `env:"PAD_SECONDS, default=5" json:"pad_seconds" validate:"min=0,max=60"`
	BackgroundVolume  float64 `env:"BACKGROUND_VOLUME, default=0.2" json:"background_volume" validate:"gt=0,lte=4"`
	MixStrategy       string  `env:"MIX_STRATEGY, default=two-pass" json:"mix_strategy" validate:"oneof=two-pass single-pass"`
	VideoCoverEnabled bool    `env:"VIDEO_COVER_ENABLED, default=true" json:"video_cover_enabled"`

	// Admission settings
	MaxConcurrentRuns int           `env:"MAX_CONCURRENT_RUNS, default=2" json:"max_concurrent_runs" validate:"min=1"`
	AdmissionTimeout  time.Duration `env:"ADMISSION_TIMEOUT, default=30s" json:"admission_timeout" validate:"gt=0"`
	MinFreeDiskMB     uint64        `env:"MIN_FREE_DISK_MB, default=0" json:"min_free_disk_mb"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	S3KeyPrefix        string `env:"S3_KEY_PREFIX" json:"s3_key_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=text json TEXT JSON"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`                                        // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// MinFreeDiskBytes returns the disk guard threshold in bytes. Zero disables it.
func (c *Config) MinFreeDiskBytes() uint64 {
	return c.MinFreeDiskMB << 20
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return load(context.Background(), envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every value is within its allowed range.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if (c.S3Bucket == "") != (c.S3Region == "") {
		return fmt.Errorf("%w: S3_BUCKET and S3_REGION must be set together", ErrInvalidConfig)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, UploadsDir: %s, PublicUploadsPath: %s, FFmpegPath: %s, FFprobePath: %s, PadSeconds: %g, BackgroundVolume: %g, MixStrategy: %s, VideoCoverEnabled: %t, MaxConcurrentRuns: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.UploadsDir,
		c.PublicUploadsPath,
		c.FFmpegPath,
		c.FFprobePath,
		c.PadSeconds,
		c.BackgroundVolume,
		c.MixStrategy,
		c.VideoCoverEnabled,
		c.MaxConcurrentRuns,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
