// Package audio builds the combined soundtrack of a narrated video: the
// narration delayed by the pad length and mixed over a looped, attenuated
// background track.
package audio

import (
	"context"
	"errors"
	"fmt"
)

// Static errors for mix input validation.
var (
	// ErrInvalidDuration is returned when the total duration is not positive.
	ErrInvalidDuration = errors.New("invalid total duration: must be positive")
	// ErrInvalidPad is returned when the pad length is negative.
	ErrInvalidPad = errors.New("invalid pad: must not be negative")
	// ErrMissingPath is returned when a required input or output path is empty.
	ErrMissingPath = errors.New("missing path")
)

// Strategy selects how the combined track is produced.
type Strategy string

const (
	// StrategyTwoPass delays the narration into an intermediate file first,
	// then mixes it with the background in a second engine call.
	StrategyTwoPass Strategy = "two-pass"
	// StrategySinglePass does delay, attenuation and mix in one filter graph.
	StrategySinglePass Strategy = "single-pass"
)

// IsValid returns true if the strategy is known.
func (s Strategy) IsValid() bool {
	return s == StrategyTwoPass || s == StrategySinglePass
}

// MixOpts configures the mixer.
type MixOpts struct {
	// Strategy selects two-pass or single-pass mixing.
	// Default: two-pass.
	Strategy Strategy

	// BackgroundVolume is the gain applied to the background track.
	// Default: 0.2 (20% of nominal volume).
	BackgroundVolume float64
}

// DefaultMixOpts returns the default options for mixing.
func DefaultMixOpts() MixOpts {
	return MixOpts{
		Strategy:         StrategyTwoPass,
		BackgroundVolume: 0.2,
	}
}

// MixInput describes one combined-audio build.
type MixInput struct {
	// BackgroundPath is the background track, looped for the whole output.
	BackgroundPath string
	// NarrationPath is the narration track.
	NarrationPath string
	// DelayedPath is where the two-pass strategy writes the delayed narration.
	// The mixer deletes it before returning, whatever the outcome.
	DelayedPath string
	// OutputPath is where the combined track is written.
	OutputPath string
	// TotalDuration is the exact length of the combined track in seconds.
	TotalDuration float64
	// PadSeconds is the silence before the narration starts.
	PadSeconds float64
}

func (in MixInput) validate(strategy Strategy) error {
	if in.TotalDuration <= 0 {
		return fmt.Errorf("%w: got %.3f", ErrInvalidDuration, in.TotalDuration)
	}
	if in.PadSeconds < 0 {
		return fmt.Errorf("%w: got %.3f", ErrInvalidPad, in.PadSeconds)
	}
	if in.BackgroundPath == "" || in.NarrationPath == "" || in.OutputPath == "" {
		return fmt.Errorf("%w: background, narration and output are required", ErrMissingPath)
	}
	if strategy == StrategyTwoPass && in.DelayedPath == "" {
		return fmt.Errorf("%w: two-pass mixing needs a delayed narration path", ErrMissingPath)
	}
	return nil
}

// Mixer defines the interface for building the combined audio track.
type Mixer interface {
	// BuildCombinedAudio writes a track of exactly in.TotalDuration seconds to
	// in.OutputPath: silence for the first in.PadSeconds, narration from then
	// on, and the attenuated background looped throughout.
	BuildCombinedAudio(ctx context.Context, in MixInput) error
}
