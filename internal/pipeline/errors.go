package pipeline

import (
	"errors"
	"fmt"
)

// Stage names a step of a run.
type Stage string

const (
	StageAdmit   Stage = "admit"
	StageUpload  Stage = "upload"
	StageProbe   Stage = "probe"
	StageMix     Stage = "mix"
	StageMux     Stage = "mux"
	StagePublish Stage = "publish"
	StageCleanup Stage = "cleanup"
)

// Stage sentinels. A *StageError unwraps to exactly one of these.
var (
	ErrUpload           = errors.New("persist uploads")
	ErrProbe            = errors.New("probe narration")
	ErrMix              = errors.New("build combined audio")
	ErrMux              = errors.New("encode output video")
	ErrPublish          = errors.New("publish output")
	ErrCleanup          = errors.New("remove temporary files")
	ErrBusy             = errors.New("too many runs in progress")
	ErrInsufficientDisk = errors.New("insufficient free disk space")
)

// ErrMissingUpload is returned when an UploadSet lacks one of its files.
var ErrMissingUpload = errors.New("missing upload")

// StageError is the single error a failed run returns.
type StageError struct {
	Stage Stage
	Token string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("run %s: %s: %v", e.Token, e.Stage, e.Err)
}

// Unwrap exposes both the stage sentinel and the underlying cause.
func (e *StageError) Unwrap() []error {
	if sentinel := stageSentinel(e.Stage); sentinel != nil {
		return []error{sentinel, e.Err}
	}
	return []error{e.Err}
}

func stageSentinel(stage Stage) error {
	switch stage {
	case StageUpload:
		return ErrUpload
	case StageProbe:
		return ErrProbe
	case StageMix:
		return ErrMix
	case StageMux:
		return ErrMux
	case StagePublish:
		return ErrPublish
	case StageCleanup:
		return ErrCleanup
	default:
		return nil
	}
}

// PublicMessage returns the message a client may see for err. Engine
// arguments and stderr are never part of it.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrBusy):
		return "server is busy, try again later"
	case errors.Is(err, ErrInsufficientDisk):
		return "server is low on disk space, try again later"
	case errors.Is(err, ErrMissingUpload):
		return "missing required files"
	default:
		return "failed to process files"
	}
}
