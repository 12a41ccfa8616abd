package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/maauso/narration-video-api/internal/engine"
)

// Static errors for media operations.
var (
	// ErrInvalidDuration is returned when duration is not positive.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
	// ErrMissingPath is returned when an input or output path is empty.
	ErrMissingPath = errors.New("missing path")
)

// Encoding parameters shared by both branches.
const (
	audioCodec   = "aac"
	audioBitrate = "192k"
	pixelFormat  = "yuv420p"
	// evenDimensions keeps width and height divisible by two, which yuv420p
	// requires.
	evenDimensions = "scale=trunc(iw/2)*2:trunc(ih/2)*2"
)

// FFmpegMuxer implements Muxer using the ffmpeg CLI.
type FFmpegMuxer struct {
	runner engine.Runner
	// videoCovers enables the video branch. When false every cover is
	// encoded as a still image.
	videoCovers bool
	logger      *slog.Logger
}

// MuxerOption configures an FFmpegMuxer.
type MuxerOption func(*FFmpegMuxer)

// WithVideoCovers enables or disables the video-cover branch.
func WithVideoCovers(enabled bool) MuxerOption {
	return func(m *FFmpegMuxer) {
		m.videoCovers = enabled
	}
}

// NewFFmpegMuxer creates a new FFmpegMuxer with video covers enabled.
func NewFFmpegMuxer(runner engine.Runner, logger *slog.Logger, opts ...MuxerOption) *FFmpegMuxer {
	if logger == nil {
		logger = slog.Default()
	}
	m := &FFmpegMuxer{
		runner:      runner,
		videoCovers: true,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Kind returns the encode branch used for the given cover path.
func (m *FFmpegMuxer) Kind(visualPath string) CoverKind {
	if !m.videoCovers {
		return CoverImage
	}
	return Classify(visualPath)
}

// Mux implements Muxer.Mux.
func (m *FFmpegMuxer) Mux(ctx context.Context, in MuxInput) (CoverKind, error) {
	if in.TotalDuration <= 0 {
		return "", fmt.Errorf("%w: got %.3f", ErrInvalidDuration, in.TotalDuration)
	}
	if in.VisualPath == "" || in.AudioPath == "" || in.OutputPath == "" {
		return "", fmt.Errorf("%w: visual, audio and output are required", ErrMissingPath)
	}

	kind := m.Kind(in.VisualPath)
	m.logger.Debug("encoding output",
		slog.String("cover_kind", string(kind)),
		slog.String("output", in.OutputPath),
	)

	if err := m.runner.Run(ctx, MuxArgs(kind, in)); err != nil {
		return kind, fmt.Errorf("encode %s cover: %w", kind, err)
	}
	return kind, nil
}

// MuxArgs returns the ffmpeg arguments for the given branch.
//
// Video covers are looped with -stream_loop and encoded with the film tune;
// still images are looped with -loop 1 and encoded with the stillimage tune.
// Both map the cover's first video stream and the soundtrack's first audio
// stream, and put the moov atom up front for progressive playback.
func MuxArgs(kind CoverKind, in MuxInput) []string {
	var args []string
	if kind == CoverVideo {
		args = append(args, "-stream_loop", "-1", "-i", in.VisualPath)
	} else {
		args = append(args, "-loop", "1", "-i", in.VisualPath)
	}

	args = append(args,
		"-i", in.AudioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-vf", evenDimensions,
		"-c:v", "libx264",
	)

	if kind == CoverVideo {
		args = append(args, "-preset", "medium", "-tune", "film")
	} else {
		args = append(args, "-tune", "stillimage")
	}

	return append(args,
		"-c:a", audioCodec,
		"-b:a", audioBitrate,
		"-pix_fmt", pixelFormat,
		"-movflags", "+faststart",
		"-t", strconv.FormatFloat(in.TotalDuration, 'f', 3, 64),
		"-y",
		in.OutputPath,
	)
}

// Verify interface implementation at compile time.
var _ Muxer = (*FFmpegMuxer)(nil)
