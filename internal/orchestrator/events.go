package orchestrator

import (
	"github.com/google/uuid"

	"vibeboard/internal/scheduler"
)

// EventType tags an orchestrator event on the wire.
type EventType string

const (
	EventTaskStarted        EventType = "task_started"
	EventTaskCompleted      EventType = "task_completed"
	EventTaskFailed         EventType = "task_failed"
	EventTaskAwaitingReview EventType = "task_awaiting_review"
	EventStateChanged       EventType = "state_changed"
	EventPlanUpdated        EventType = "plan_updated"
)

// Event is the envelope broadcast to subscribers, serialized as
// {type, data}.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// TaskEventData carries the task reference for started/completed/review
// events.
type TaskEventData struct {
	TaskID uuid.UUID `json:"task_id"`
}

// TaskFailedData additionally carries the failure message.
type TaskFailedData struct {
	TaskID uuid.UUID `json:"task_id"`
	Error  string    `json:"error"`
}

// StateChangedData announces a lifecycle transition.
type StateChangedData struct {
	State State `json:"state"`
}

// PlanUpdatedData publishes a freshly built execution plan.
type PlanUpdatedData struct {
	Plan *scheduler.ExecutionPlan `json:"plan"`
}
