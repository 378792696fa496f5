package web

import (
	"sync"

	"github.com/google/uuid"

	"vibeboard/internal/orchestrator"
)

// Change feed event types, pushed over the dependency and genre
// WebSocket streams.
const (
	eventDependencyCreated orchestrator.EventType = "dependency_created"
	eventDependencyUpdated orchestrator.EventType = "dependency_updated"
	eventDependencyDeleted orchestrator.EventType = "dependency_deleted"
	eventGenreCreated      orchestrator.EventType = "genre_created"
	eventGenreUpdated      orchestrator.EventType = "genre_updated"
	eventGenreDeleted      orchestrator.EventType = "genre_deleted"
	eventGenresReordered   orchestrator.EventType = "genres_reordered"
	eventLayoutUpdated     orchestrator.EventType = "layout_updated"
)

// feedRegistry hands out one change broadcaster per project, created
// lazily on first publish or subscribe.
type feedRegistry struct {
	mu    sync.Mutex
	feeds map[uuid.UUID]*orchestrator.Broadcaster
}

func newFeedRegistry() *feedRegistry {
	return &feedRegistry{feeds: make(map[uuid.UUID]*orchestrator.Broadcaster)}
}

func (f *feedRegistry) get(projectID uuid.UUID) *orchestrator.Broadcaster {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.feeds[projectID]
	if !ok {
		b = orchestrator.NewBroadcaster()
		f.feeds[projectID] = b
	}
	return b
}

func (f *feedRegistry) publish(projectID uuid.UUID, ev orchestrator.Event) {
	f.get(projectID).Publish(ev)
}
