// Package pipeline turns one set of uploads into a narrated cover video. It
// holds the Orchestrator that sequences the engine stages, the workspace that
// names every artifact of a request, and the Run aggregate that records the
// progress of each request for status queries.
package pipeline

import (
	"errors"
	"slices"
	"sync"
	"time"
)

// Status represents the current state of a Run.
type Status string

const (
	// StatusQueued indicates the run is registered and waiting to start.
	StatusQueued Status = "QUEUED"
	// StatusRunning indicates the run is executing its stages.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the video was produced and published.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates a stage failed and the run was aborted.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

func canTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// Run records the lifecycle of one request.
type Run struct {
	mu sync.RWMutex

	// Token identifies the request and namespaces its files.
	Token string
	// Status is the current run state.
	Status Status
	// Stage is the stage being executed, or the stage that failed.
	Stage Stage
	// Error is the client-safe failure message. Engine diagnostics never land here.
	Error string
	// CoverKind is the encode branch used for the cover, once known.
	CoverKind string
	// TotalDuration is the output length in seconds, once probed.
	TotalDuration float64
	// VideoURL is where the finished video is published.
	VideoURL string
	// CreatedAt is when the run was registered.
	CreatedAt time.Time
	// UpdatedAt is when the run was last updated.
	UpdatedAt time.Time
	// StartedAt is when the first stage started.
	StartedAt time.Time
	// CompletedAt is when the run reached a terminal state.
	CompletedAt time.Time
}

// NewRun creates a Run in QUEUED state for the given token.
func NewRun(token string) *Run {
	now := time.Now()
	return &Run{
		Token:     token,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the run status.
// Returns ErrInvalidTransition if the transition is not allowed.
func (r *Run) TransitionTo(status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(status)
}

func (r *Run) transitionLocked(status Status) error {
	if !canTransition(r.Status, status) {
		return ErrInvalidTransition
	}

	r.Status = status
	r.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		r.StartedAt = r.UpdatedAt
	case StatusCompleted, StatusFailed:
		r.CompletedAt = r.UpdatedAt
	}
	return nil
}

// Start transitions the run from QUEUED to RUNNING.
func (r *Run) Start() error {
	return r.TransitionTo(StatusRunning)
}

// EnterStage records the stage currently executing.
func (r *Run) EnterStage(stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stage = stage
	r.UpdatedAt = time.Now()
}

// SetDuration records the total output duration.
func (r *Run) SetDuration(total float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TotalDuration = total
	r.UpdatedAt = time.Now()
}

// SetCoverKind records the encode branch chosen for the cover.
func (r *Run) SetCoverKind(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CoverKind = kind
	r.UpdatedAt = time.Now()
}

// Complete transitions the run to COMPLETED with the published URL.
func (r *Run) Complete(videoURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	r.VideoURL = videoURL
	return nil
}

// Fail transitions the run to FAILED with a client-safe message.
func (r *Run) Fail(msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionLocked(StatusFailed); err != nil {
		return err
	}
	r.Error = msg
	return nil
}

// GetStatus returns the current run status (thread-safe).
func (r *Run) GetStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// IsTerminal returns true if the run is in a terminal state.
func (r *Run) IsTerminal() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Clone creates a copy of the run for safe reads.
func (r *Run) Clone() *Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return &Run{
		Token:         r.Token,
		Status:        r.Status,
		Stage:         r.Stage,
		Error:         r.Error,
		CoverKind:     r.CoverKind,
		TotalDuration: r.TotalDuration,
		VideoURL:      r.VideoURL,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
	}
}
