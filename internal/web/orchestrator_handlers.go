package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"vibeboard/internal/db"
	"vibeboard/internal/github"
	"vibeboard/internal/notify"
	"vibeboard/internal/orchestrator"
	"vibeboard/internal/scheduler"
)

type orchestratorStatus struct {
	State orchestrator.State       `json:"state"`
	Plan  *scheduler.ExecutionPlan `json:"plan"`
}

func (s *Server) projectID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue("id"))
}

func (s *Server) taskID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue("task_id"))
}

// orchestratorStatusFor rebuilds the plan when none is cached yet so the
// first GET already shows the graph.
func (s *Server) orchestratorStatusFor(r *http.Request, o *orchestrator.ProjectOrchestrator) (orchestratorStatus, error) {
	plan := o.Plan()
	if plan == nil {
		p, err := o.BuildPlan(r.Context(), s.store)
		if err != nil {
			return orchestratorStatus{}, err
		}
		plan = p
	}
	return orchestratorStatus{State: o.State(), Plan: plan}, nil
}

func (s *Server) handleOrchestratorStatus(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	o := s.registry.GetOrCreate(projectID)
	status, err := s.orchestratorStatusFor(r, o)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) recordState(o *orchestrator.ProjectOrchestrator) {
	if s.metrics != nil {
		s.metrics.SetOrchestratorState(o.ProjectID().String(), string(o.State()))
	}
}

func (s *Server) handleOrchestratorStart(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	o := s.registry.GetOrCreate(projectID)
	if err := o.Start(r.Context(), s.store); err != nil {
		writeError(w, err)
		return
	}
	s.recordState(o)
	writeJSON(w, http.StatusOK, orchestratorStatus{State: o.State(), Plan: o.Plan()})
}

func (s *Server) handleOrchestratorPause(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	o := s.registry.GetOrCreate(projectID)
	if err := o.Pause(); err != nil {
		writeError(w, err)
		return
	}
	s.recordState(o)
	writeJSON(w, http.StatusOK, orchestratorStatus{State: o.State(), Plan: o.Plan()})
}

func (s *Server) handleOrchestratorResume(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	o := s.registry.GetOrCreate(projectID)
	if err := o.Resume(r.Context(), s.store); err != nil {
		writeError(w, err)
		return
	}
	s.recordState(o)
	writeJSON(w, http.StatusOK, orchestratorStatus{State: o.State(), Plan: o.Plan()})
}

func (s *Server) handleOrchestratorStop(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	o := s.registry.GetOrCreate(projectID)
	if err := o.Stop(); err != nil {
		writeError(w, err)
		return
	}
	s.recordState(o)
	writeJSON(w, http.StatusOK, orchestratorStatus{State: o.State(), Plan: o.Plan()})
}

func (s *Server) handleReadyTasks(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	o := s.registry.GetOrCreate(projectID)
	ready, err := o.ReadyToExecute(r.Context(), s.store)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ready)
}

type validateTransitionRequest struct {
	TaskID    uuid.UUID `json:"task_id"`
	NewStatus string    `json:"new_status"`
}

func (s *Server) handleValidateTransition(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	var req validateTransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	status, ok := db.ParseTaskStatus(req.NewStatus)
	if !ok {
		badRequest(w, fmt.Sprintf("unknown status %q", req.NewStatus))
		return
	}
	o := s.registry.GetOrCreate(projectID)
	validation, err := o.ValidateTaskTransition(r.Context(), s.store, req.TaskID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validation)
}

func (s *Server) handleTaskStarted(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	taskID, err := s.taskID(r)
	if err != nil {
		badRequest(w, "invalid task id")
		return
	}
	o := s.registry.GetOrCreate(projectID)
	if err := o.OnTaskStarted(r.Context(), s.store, taskID); err != nil {
		writeError(w, err)
		return
	}
	s.pushTaskToGitHub(r.Context(), taskID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTaskCompleted(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	taskID, err := s.taskID(r)
	if err != nil {
		badRequest(w, "invalid task id")
		return
	}
	o := s.registry.GetOrCreate(projectID)
	unblocked, err := o.OnTaskCompleted(r.Context(), s.store, taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.pushTaskToGitHub(r.Context(), taskID)
	writeJSON(w, http.StatusOK, map[string]any{"unblocked_tasks": unblocked})
}

type taskFailedRequest struct {
	Error string `json:"error"`
}

func (s *Server) handleTaskFailed(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	taskID, err := s.taskID(r)
	if err != nil {
		badRequest(w, "invalid task id")
		return
	}
	var req taskFailedRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	o := s.registry.GetOrCreate(projectID)
	if err := o.OnTaskFailed(r.Context(), s.store, taskID, req.Error); err != nil {
		writeError(w, err)
		return
	}
	if s.notifier != nil {
		msg := fmt.Sprintf("Task %s failed: %s", taskID, req.Error)
		s.notifier.Notify(r.Context(), notify.EventTaskFailed, msg)
	}
	s.pushTaskToGitHub(r.Context(), taskID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTaskReview(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.projectID(r)
	if err != nil {
		badRequest(w, "invalid project id")
		return
	}
	taskID, err := s.taskID(r)
	if err != nil {
		badRequest(w, "invalid task id")
		return
	}
	o := s.registry.GetOrCreate(projectID)
	if err := o.OnTaskReview(r.Context(), s.store, taskID); err != nil {
		writeError(w, err)
		return
	}
	s.pushTaskToGitHub(r.Context(), taskID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pushTaskToGitHub mirrors a task's current state to its mapped issue.
// The write is accepted locally no matter what: failed pushes are
// queued and retried on the next queue drain.
func (s *Server) pushTaskToGitHub(ctx context.Context, taskID uuid.UUID) {
	op := github.SyncOperation{TaskID: taskID, Kind: github.OpUpdateStatus}
	s.queue.ExecuteOrQueue(ctx, op, s.executePush)
	if s.metrics != nil {
		s.metrics.SyncQueueDepth.Set(float64(s.queue.Len()))
	}
}

func (s *Server) executePush(ctx context.Context, op github.SyncOperation) error {
	task, err := s.store.FindTask(ctx, op.TaskID)
	if errors.Is(err, db.ErrNotFound) {
		// Task deleted since the operation was queued
		return nil
	}
	if err != nil {
		return err
	}
	return s.syncer.SyncTaskToGitHub(ctx, s.store, task)
}

// SyncQueueExecutor exposes the push executor for periodic queue
// draining by the server runner.
func (s *Server) SyncQueueExecutor() github.Executor {
	return s.executePush
}
