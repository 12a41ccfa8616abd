package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/maauso/narration-video-api/internal/engine"
)

// FFmpegMixer implements Mixer by running ffmpeg filter graphs.
type FFmpegMixer struct {
	runner   engine.Runner
	graph    FilterGraph
	strategy Strategy
	logger   *slog.Logger
}

// NewFFmpegMixer creates a new FFmpegMixer.
// Zero-valued options fall back to DefaultMixOpts.
func NewFFmpegMixer(runner engine.Runner, opts MixOpts, logger *slog.Logger) *FFmpegMixer {
	defaults := DefaultMixOpts()
	if !opts.Strategy.IsValid() {
		opts.Strategy = defaults.Strategy
	}
	if opts.BackgroundVolume <= 0 {
		opts.BackgroundVolume = defaults.BackgroundVolume
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegMixer{
		runner:   runner,
		graph:    FilterGraph{BackgroundVolume: opts.BackgroundVolume},
		strategy: opts.Strategy,
		logger:   logger,
	}
}

// Strategy returns the configured mixing strategy.
func (m *FFmpegMixer) Strategy() Strategy {
	return m.strategy
}

// BuildCombinedAudio implements Mixer.BuildCombinedAudio.
func (m *FFmpegMixer) BuildCombinedAudio(ctx context.Context, in MixInput) error {
	if err := in.validate(m.strategy); err != nil {
		return err
	}

	if m.strategy == StrategySinglePass {
		if err := m.runner.Run(ctx, m.graph.SinglePassArgs(in)); err != nil {
			return fmt.Errorf("mix tracks: %w", err)
		}
		return nil
	}
	return m.twoPass(ctx, in)
}

// twoPass delays the narration into in.DelayedPath, then mixes it with the
// looped background. The delayed file is removed on every exit path.
func (m *FFmpegMixer) twoPass(ctx context.Context, in MixInput) error {
	defer m.removeDelayed(in.DelayedPath)

	if err := m.runner.Run(ctx, m.graph.DelayArgs(in)); err != nil {
		return fmt.Errorf("delay narration: %w", err)
	}
	if err := m.runner.Run(ctx, m.graph.MixArgs(in)); err != nil {
		return fmt.Errorf("mix tracks: %w", err)
	}
	return nil
}

func (m *FFmpegMixer) removeDelayed(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("failed to remove delayed narration",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// Verify interface implementation at compile time.
var _ Mixer = (*FFmpegMixer)(nil)
