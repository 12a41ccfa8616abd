package pipeline

import (
	"context"
	"sort"
	"sync"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// DefaultMaxRuns is the number of runs kept when no limit is given.
const DefaultMaxRuns = 1000

// MemoryRepository is an in-memory implementation of Repository.
// It keeps at most maxRuns records; when full, the oldest terminal run is
// evicted to make room.
type MemoryRepository struct {
	mu      sync.RWMutex
	runs    map[string]*Run
	maxRuns int
}

// NewMemoryRepository creates a new in-memory run repository.
// A non-positive maxRuns selects DefaultMaxRuns.
func NewMemoryRepository(maxRuns int) *MemoryRepository {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	return &MemoryRepository{
		runs:    make(map[string]*Run),
		maxRuns: maxRuns,
	}
}

// Save persists a clone of the run.
func (r *MemoryRepository) Save(_ context.Context, run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.Token]; !exists && len(r.runs) >= r.maxRuns {
		r.evictOldestLocked()
	}
	r.runs[run.Token] = run.Clone()
	return nil
}

// FindByToken retrieves a clone of the run.
func (r *MemoryRepository) FindByToken(_ context.Context, token string) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[token]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.Clone(), nil
}

// List returns clones of all runs, newest first.
func (r *MemoryRepository) List(_ context.Context) ([]*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Run, 0, len(r.runs))
	for _, run := range r.runs {
		result = append(result, run.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Delete removes a run.
func (r *MemoryRepository) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[token]; !ok {
		return ErrRunNotFound
	}
	delete(r.runs, token)
	return nil
}

// evictOldestLocked drops the oldest terminal run. Active runs are never
// evicted, so the map may briefly exceed maxRuns under heavy load.
func (r *MemoryRepository) evictOldestLocked() {
	var oldest *Run
	for _, run := range r.runs {
		if !run.IsTerminal() {
			continue
		}
		if oldest == nil || run.CreatedAt.Before(oldest.CreatedAt) {
			oldest = run
		}
	}
	if oldest != nil {
		delete(r.runs, oldest.Token)
	}
}
