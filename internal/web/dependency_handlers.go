package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"vibeboard/internal/db"
	"vibeboard/internal/orchestrator"
	"vibeboard/internal/scheduler"
)

func (s *Server) handleListDependencies(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	deps, err := s.store.FindDependenciesByProject(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	if deps == nil {
		deps = []db.TaskDependency{}
	}
	writeJSON(w, http.StatusOK, deps)
}

type createDependencyRequest struct {
	TaskID          uuid.UUID  `json:"task_id"`
	DependsOnTaskID uuid.UUID  `json:"depends_on_task_id"`
	GenreID         *uuid.UUID `json:"genre_id,omitempty"`
	CreatedBy       string     `json:"created_by,omitempty"`
}

func (s *Server) handleCreateDependency(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	var req createDependencyRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	createdBy := db.CreatorUser
	if req.CreatedBy == string(db.CreatorAI) {
		createdBy = db.CreatorAI
	}
	dep, err := s.store.CreateDependency(r.Context(), db.CreateDependency{
		TaskID:          req.TaskID,
		DependsOnTaskID: req.DependsOnTaskID,
		GenreID:         req.GenreID,
		CreatedBy:       createdBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.depFeeds.publish(projectID, orchestrator.Event{Type: eventDependencyCreated, Data: dep})
	s.relayoutProject(r.Context(), projectID)
	writeJSON(w, http.StatusCreated, dep)
}

type updateDependencyRequest struct {
	GenreID json.RawMessage `json:"genre_id"`
}

// genreChange maps the wire field to the tri-state update: absent keeps
// the genre, null clears it, a UUID sets it.
func (req updateDependencyRequest) genreChange() (db.GenreChange, error) {
	if len(req.GenreID) == 0 {
		return db.GenreUnchanged(), nil
	}
	if bytes.Equal(bytes.TrimSpace(req.GenreID), []byte("null")) {
		return db.GenreClear(), nil
	}
	var id uuid.UUID
	if err := json.Unmarshal(req.GenreID, &id); err != nil {
		return db.GenreChange{}, fmt.Errorf("invalid genre_id: %w", err)
	}
	return db.GenreSet(id), nil
}

func (s *Server) handleUpdateDependency(w http.ResponseWriter, r *http.Request) {
	depID, err := uuid.Parse(r.PathValue("dep_id"))
	if err != nil {
		badRequest(w, "invalid dependency id")
		return
	}
	var req updateDependencyRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	change, err := req.genreChange()
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	dep, err := s.store.UpdateDependency(r.Context(), depID, change)
	if err != nil {
		writeError(w, err)
		return
	}

	if task, err := s.store.FindTask(r.Context(), dep.TaskID); err == nil {
		s.depFeeds.publish(task.ProjectID, orchestrator.Event{Type: eventDependencyUpdated, Data: dep})
	}
	writeJSON(w, http.StatusOK, dep)
}

func (s *Server) handleDeleteDependency(w http.ResponseWriter, r *http.Request) {
	depID, err := uuid.Parse(r.PathValue("dep_id"))
	if err != nil {
		badRequest(w, "invalid dependency id")
		return
	}
	dep, err := s.store.FindDependency(r.Context(), depID)
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := s.store.FindTask(r.Context(), dep.TaskID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteDependency(r.Context(), depID); err != nil {
		writeError(w, err)
		return
	}

	// Removing an edge reshapes the graph the same way adding one does
	s.depFeeds.publish(task.ProjectID, orchestrator.Event{Type: eventDependencyDeleted, Data: map[string]uuid.UUID{"id": depID}})
	s.relayoutProject(r.Context(), task.ProjectID)
	w.WriteHeader(http.StatusNoContent)
}

type updatePositionRequest struct {
	Position *int32   `json:"position,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
}

func (s *Server) handleUpdateTaskPosition(w http.ResponseWriter, r *http.Request) {
	taskID, err := s.taskID(r)
	if err != nil {
		badRequest(w, "invalid task id")
		return
	}
	var req updatePositionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	switch {
	case req.X != nil && req.Y != nil:
		if err := s.store.UpdateTaskDAGPosition(r.Context(), taskID, *req.X, *req.Y); err != nil {
			writeError(w, err)
			return
		}
		task, err := s.store.FindTask(r.Context(), taskID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	case req.Position != nil:
		task, err := s.store.UpdateTaskPosition(r.Context(), taskID, *req.Position)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	default:
		badRequest(w, "position or x/y required")
	}
}

// relayoutProject recomputes DAG coordinates and persists the changed
// ones. Layout failures are logged, not surfaced: the edge write already
// succeeded.
func (s *Server) relayoutProject(ctx context.Context, projectID uuid.UUID) {
	tasks, err := s.store.FindTasksByProject(ctx, projectID)
	if err != nil {
		logLayoutError(projectID, err)
		return
	}
	deps, err := s.store.FindDependenciesByProject(ctx, projectID)
	if err != nil {
		logLayoutError(projectID, err)
		return
	}
	graph, err := scheduler.NewTaskGraph(tasks, deps)
	if err != nil {
		logLayoutError(projectID, err)
		return
	}
	updates, err := scheduler.RecalculateDAGLayout(graph)
	if err != nil {
		logLayoutError(projectID, err)
		return
	}
	for _, u := range updates {
		if err := s.store.UpdateTaskDAGPosition(ctx, u.TaskID, u.X, u.Y); err != nil {
			logLayoutError(projectID, err)
			return
		}
	}
	if len(updates) > 0 {
		s.depFeeds.publish(projectID, orchestrator.Event{Type: eventLayoutUpdated, Data: updates})
	}
}

func logLayoutError(projectID uuid.UUID, err error) {
	slog.Warn("dag relayout failed", "project_id", projectID, "error", err)
}
