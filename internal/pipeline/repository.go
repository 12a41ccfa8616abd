package pipeline

import (
	"context"
	"errors"
)

// ErrRunNotFound is returned when a run cannot be found by token.
var ErrRunNotFound = errors.New("run not found")

// Repository defines the interface for run persistence.
type Repository interface {
	// Save persists a run. An existing run with the same token is replaced.
	Save(ctx context.Context, run *Run) error

	// FindByToken retrieves a run by its request token.
	// Returns ErrRunNotFound if the run does not exist.
	FindByToken(ctx context.Context, token string) (*Run, error)

	// List returns all runs.
	List(ctx context.Context) ([]*Run, error)

	// Delete removes a run.
	// Returns ErrRunNotFound if the run does not exist.
	Delete(ctx context.Context, token string) error
}
