package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"vibeboard/internal/db"
	"vibeboard/internal/github"
	"vibeboard/internal/notify"
	"vibeboard/internal/orchestrator"
	"vibeboard/internal/telemetry"
)

// Server wires the HTTP and WebSocket surface over the store, the
// orchestrator registry and the GitHub sync engine.
type Server struct {
	store    db.Store
	registry *orchestrator.Registry
	syncer   *github.Syncer
	queue    *github.Queue
	metrics  *telemetry.Metrics
	notifier notify.Notifier

	depFeeds   *feedRegistry
	genreFeeds *feedRegistry
}

// NewServer creates a server. metrics and notifier may be nil.
func NewServer(store db.Store, registry *orchestrator.Registry, syncer *github.Syncer, queue *github.Queue, metrics *telemetry.Metrics, notifier notify.Notifier) *Server {
	return &Server{
		store:      store,
		registry:   registry,
		syncer:     syncer,
		queue:      queue,
		metrics:    metrics,
		notifier:   notifier,
		depFeeds:   newFeedRegistry(),
		genreFeeds: newFeedRegistry(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// Orchestrator lifecycle
	mux.HandleFunc("GET /projects/{id}/orchestrator", s.handleOrchestratorStatus)
	mux.HandleFunc("POST /projects/{id}/orchestrator/start", s.handleOrchestratorStart)
	mux.HandleFunc("POST /projects/{id}/orchestrator/pause", s.handleOrchestratorPause)
	mux.HandleFunc("POST /projects/{id}/orchestrator/resume", s.handleOrchestratorResume)
	mux.HandleFunc("POST /projects/{id}/orchestrator/stop", s.handleOrchestratorStop)
	mux.HandleFunc("GET /projects/{id}/orchestrator/ready-tasks", s.handleReadyTasks)
	mux.HandleFunc("POST /projects/{id}/orchestrator/validate-transition", s.handleValidateTransition)
	mux.HandleFunc("POST /projects/{id}/orchestrator/tasks/{task_id}/started", s.handleTaskStarted)
	mux.HandleFunc("POST /projects/{id}/orchestrator/tasks/{task_id}/completed", s.handleTaskCompleted)
	mux.HandleFunc("POST /projects/{id}/orchestrator/tasks/{task_id}/failed", s.handleTaskFailed)
	mux.HandleFunc("POST /projects/{id}/orchestrator/tasks/{task_id}/review", s.handleTaskReview)
	mux.HandleFunc("GET /projects/{id}/orchestrator/stream/ws", s.handleOrchestratorStream)

	// Dependencies
	mux.HandleFunc("GET /projects/{id}/dependencies", s.handleListDependencies)
	mux.HandleFunc("POST /projects/{id}/dependencies", s.handleCreateDependency)
	mux.HandleFunc("GET /projects/{id}/dependencies/stream/ws", s.handleDependencyStream)
	mux.HandleFunc("PUT /dependencies/{dep_id}", s.handleUpdateDependency)
	mux.HandleFunc("DELETE /dependencies/{dep_id}", s.handleDeleteDependency)
	mux.HandleFunc("PUT /tasks/{task_id}/position", s.handleUpdateTaskPosition)

	// Dependency genres
	mux.HandleFunc("GET /projects/{id}/dependency-genres", s.handleListGenres)
	mux.HandleFunc("POST /projects/{id}/dependency-genres", s.handleCreateGenre)
	mux.HandleFunc("PUT /projects/{id}/dependency-genres/reorder", s.handleReorderGenres)
	mux.HandleFunc("GET /projects/{id}/dependency-genres/stream/ws", s.handleGenreStream)
	mux.HandleFunc("PUT /dependency-genres/{genre_id}", s.handleUpdateGenre)
	mux.HandleFunc("DELETE /dependency-genres/{genre_id}", s.handleDeleteGenre)

	// GitHub project links
	mux.HandleFunc("GET /projects/{id}/github-links", s.handleListLinks)
	mux.HandleFunc("POST /projects/{id}/github-links", s.handleCreateLink)
	mux.HandleFunc("DELETE /github-links/{link_id}", s.handleDeleteLink)
	mux.HandleFunc("POST /github-links/{link_id}/toggle-sync", s.handleToggleLinkSync)
	mux.HandleFunc("POST /github-links/{link_id}/sync", s.handleSyncLink)
	mux.HandleFunc("GET /github-links/{link_id}/mappings", s.handleListMappings)

	if s.metrics != nil {
		return s.metrics.RequestTrackingMiddleware(mux)
	}
	return mux
}

// Start serves until the listener fails.
func (s *Server) Start(addr string) error {
	slog.Info("starting api server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	var status int
	var notFound *orchestrator.TaskNotFoundError
	switch {
	case errors.Is(err, db.ErrNotFound), errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.Is(err, db.ErrDuplicateEdge),
		errors.Is(err, db.ErrCycleDetected),
		errors.Is(err, db.ErrDuplicateGenreName):
		status = http.StatusConflict
	case errors.Is(err, db.ErrSelfDependency),
		errors.Is(err, db.ErrCrossProjectEdge),
		errors.Is(err, orchestrator.ErrAlreadyRunning),
		errors.Is(err, orchestrator.ErrNotRunning),
		errors.Is(err, orchestrator.ErrNotPaused):
		status = http.StatusBadRequest
	case errors.Is(err, github.ErrProviderUnavailable):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
