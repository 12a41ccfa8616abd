// Package engine runs the external media engine (ffmpeg and ffprobe) as
// subprocesses. Every call is bounded by a wall-clock timeout and reports
// failures with the captured diagnostic stream.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when an engine call exceeds its wall-clock timeout.
// The subprocess is killed before the error is returned.
var ErrTimeout = errors.New("engine call timed out")

// maxStderrBytes caps how much of the diagnostic stream is kept in errors.
// ffmpeg writes progress lines to stderr, the tail carries the actual failure.
const maxStderrBytes = 8 << 10

// waitDelay bounds how long Run waits for I/O after the process is killed.
const waitDelay = 5 * time.Second

// Runner executes one transcode-mode invocation of the media engine.
type Runner interface {
	// Run invokes the engine with args and returns nil on a zero exit status.
	Run(ctx context.Context, args []string) error
}

// FFmpeg implements Runner using the ffmpeg CLI.
type FFmpeg struct {
	// path is the ffmpeg binary. Defaults to "ffmpeg".
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an FFmpeg runner.
type Option func(*FFmpeg)

// WithTimeout sets the wall-clock limit for a single invocation.
// Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(f *FFmpeg) {
		f.timeout = d
	}
}

// WithLogger sets the logger used for command and timing logs.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FFmpeg) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFFmpeg creates a new FFmpeg runner.
// If path is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpeg(path string, opts ...Option) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	f := &FFmpeg{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path returns the configured ffmpeg binary.
func (f *FFmpeg) Path() string {
	return f.path
}

// Run executes ffmpeg with the given arguments and returns an *Error
// containing stderr output if the command fails or times out.
func (f *FFmpeg) Run(ctx context.Context, args []string) error {
	runCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	// #nosec G204 - path is set by the application, args are built internally
	cmd := exec.CommandContext(runCtx, f.path, args...)
	cmd.WaitDelay = waitDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	f.logger.Debug("running ffmpeg",
		slog.String("command", commandLine(f.path, args)),
	)

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		// The caller's context was cancelled: not an engine failure.
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrTimeout, f.timeout)
		}
		return &Error{
			Binary: f.path,
			Args:   args,
			Stderr: tail(stderr.String(), maxStderrBytes),
			Err:    err,
		}
	}

	f.logger.Debug("ffmpeg finished",
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Error represents a failed engine invocation, including the arguments it was
// called with and its diagnostic output. It is meant for operator logs only.
type Error struct {
	Binary string
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v\nargs: %v\nstderr: %s", e.Binary, e.Err, e.Args, e.Stderr)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// commandLine renders a loggable command line.
func commandLine(bin string, args []string) string {
	return bin + " " + strings.Join(args, " ")
}

// tail returns at most n trailing bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// Verify interface implementation at compile time.
var _ Runner = (*FFmpeg)(nil)
