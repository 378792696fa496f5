package orchestrator

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the process-wide map of project orchestrators. Reads take
// the shared lock; creation re-checks under the write lock so concurrent
// callers end up with the same instance.
type Registry struct {
	mu            sync.RWMutex
	orchestrators map[uuid.UUID]*ProjectOrchestrator
	maxParallel   int
}

// NewRegistry creates a registry whose orchestrators use the given
// parallelism bound.
func NewRegistry(maxParallel int) *Registry {
	return &Registry{
		orchestrators: make(map[uuid.UUID]*ProjectOrchestrator),
		maxParallel:   maxParallel,
	}
}

// Get returns the orchestrator for a project, if one exists.
func (r *Registry) Get(projectID uuid.UUID) (*ProjectOrchestrator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orchestrators[projectID]
	return o, ok
}

// GetOrCreate returns the project's orchestrator, creating it on first
// use. Idempotent and race-free.
func (r *Registry) GetOrCreate(projectID uuid.UUID) *ProjectOrchestrator {
	r.mu.RLock()
	o, ok := r.orchestrators[projectID]
	r.mu.RUnlock()
	if ok {
		return o
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orchestrators[projectID]; ok {
		return o
	}
	o = New(projectID, r.maxParallel)
	r.orchestrators[projectID] = o
	return o
}

// Remove drops a project's orchestrator. Pending subscribers observe
// end-of-stream.
func (r *Registry) Remove(projectID uuid.UUID) {
	r.mu.Lock()
	o, ok := r.orchestrators[projectID]
	delete(r.orchestrators, projectID)
	r.mu.Unlock()

	if ok {
		o.Shutdown()
	}
}

// Len reports the number of live orchestrators.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orchestrators)
}
