package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Static errors for probe operations.
var (
	// ErrProbeExecution is returned when ffprobe cannot be run or exits non-zero.
	ErrProbeExecution = errors.New("ffprobe execution failed")
	// ErrNoDuration is returned when ffprobe output carries no container duration.
	ErrNoDuration = errors.New("ffprobe reported no duration")
	// ErrInvalidDuration is returned when the duration is not a positive number.
	ErrInvalidDuration = errors.New("invalid duration")
)

// Prober reads container metadata from a media file.
type Prober interface {
	// Duration returns the container-level duration of the file in seconds.
	Duration(ctx context.Context, path string) (float64, error)
}

// FFprobe implements Prober using the ffprobe CLI in JSON mode.
type FFprobe struct {
	path    string
	timeout time.Duration
}

// NewFFprobe creates a new FFprobe.
// If path is empty, it defaults to "ffprobe" (found via PATH).
func NewFFprobe(path string, timeout time.Duration) *FFprobe {
	if path == "" {
		path = "ffprobe"
	}
	return &FFprobe{path: path, timeout: timeout}
}

// Duration returns the duration in seconds of a media file.
func (p *FFprobe) Duration(ctx context.Context, path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProbeExecution, err)
	}

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	// #nosec G204 - path is set by the application, not user input
	cmd := exec.CommandContext(runCtx, p.path,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		path,
	)
	cmd.WaitDelay = waitDelay

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %w after %s", ErrProbeExecution, ErrTimeout, p.timeout)
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrProbeExecution, err, strings.TrimSpace(stderr.String()))
	}

	return parseDuration(stdout.Bytes())
}

// parseDuration extracts format.duration from ffprobe JSON output.
// ffprobe reports it as a string ("20.035918") and as "N/A" for streams
// without a known length.
func parseDuration(output []byte) (float64, error) {
	res := gjson.GetBytes(output, "format.duration")
	if !res.Exists() {
		return 0, ErrNoDuration
	}

	raw := strings.TrimSpace(res.String())
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, raw)
	}
	return d, nil
}

// Verify interface implementation at compile time.
var _ Prober = (*FFprobe)(nil)
