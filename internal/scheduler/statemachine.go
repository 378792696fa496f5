package scheduler

import (
	"fmt"

	"github.com/google/uuid"

	"vibeboard/internal/db"
)

// ValidationKind classifies the outcome of a transition check.
type ValidationKind string

const (
	ValidationValid                ValidationKind = "valid"
	ValidationInvalid              ValidationKind = "invalid"
	ValidationRequiresConfirmation ValidationKind = "requires_confirmation"
)

// TransitionValidation is the result of validating a status change.
// Starting a task with unfinished dependencies is a warning, not an
// error: operators may force-start, so it surfaces as
// requires_confirmation with the blocking IDs attached.
type TransitionValidation struct {
	Kind          ValidationKind `json:"kind"`
	Reason        string         `json:"reason,omitempty"`
	BlockingTasks []uuid.UUID    `json:"blocking_tasks,omitempty"`
}

var legalTransitions = map[db.TaskStatus][]db.TaskStatus{
	db.StatusTodo:       {db.StatusInProgress, db.StatusCancelled},
	db.StatusInProgress: {db.StatusTodo, db.StatusInReview, db.StatusDone, db.StatusCancelled},
	db.StatusInReview:   {db.StatusInProgress, db.StatusDone, db.StatusCancelled},
	db.StatusDone:       {db.StatusTodo, db.StatusInProgress},
	db.StatusCancelled:  {db.StatusTodo},
}

// IsValidTransition reports whether the status pair is structurally
// legal. Same-status writes are always allowed as no-ops.
func IsValidTransition(from, to db.TaskStatus) bool {
	if from == to {
		return true
	}
	for _, t := range legalTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ValidateTransition checks a proposed status change against the state
// machine and the dependency gate.
func ValidateTransition(g *TaskGraph, task db.Task, newStatus db.TaskStatus) TransitionValidation {
	if !IsValidTransition(task.Status, newStatus) {
		return TransitionValidation{
			Kind:   ValidationInvalid,
			Reason: fmt.Sprintf("cannot transition from %s to %s", task.Status, newStatus),
		}
	}

	if newStatus == db.StatusInProgress {
		blocking := blockingDeps(g, task)
		if len(blocking) > 0 {
			return TransitionValidation{
				Kind:          ValidationRequiresConfirmation,
				Reason:        fmt.Sprintf("task has %d unfinished dependencies", len(blocking)),
				BlockingTasks: blocking,
			}
		}
	}

	return TransitionValidation{Kind: ValidationValid}
}

// CanStartTask reports whether a task is immediately startable: todo
// status and every dependency done.
func CanStartTask(g *TaskGraph, task db.Task) bool {
	return task.Status == db.StatusTodo && len(blockingDeps(g, task)) == 0
}

func blockingDeps(g *TaskGraph, task db.Task) []uuid.UUID {
	var blocking []uuid.UUID
	for _, depID := range g.DepsOf(task.ID) {
		dep, ok := g.Task(depID)
		if !ok || dep.Status != db.StatusDone {
			blocking = append(blocking, depID)
		}
	}
	return blocking
}
