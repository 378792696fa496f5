package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"vibeboard/internal/db"
	"vibeboard/internal/scheduler"
)

// State is the lifecycle phase of a project orchestrator.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateStopping State = "stopping"
)

var (
	ErrAlreadyRunning = errors.New("orchestrator is already running")
	ErrNotRunning     = errors.New("orchestrator is not running")
	ErrNotPaused      = errors.New("orchestrator is not paused")
)

// TaskNotFoundError is returned when an operation references a task
// outside the project's current task set.
type TaskNotFoundError struct {
	TaskID uuid.UUID
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task %s not found", e.TaskID)
}

// PlanStore is the slice of the repository the orchestrator reads from.
type PlanStore interface {
	FindTasksByProject(ctx context.Context, projectID uuid.UUID) ([]db.Task, error)
	FindDependenciesByProject(ctx context.Context, projectID uuid.UUID) ([]db.TaskDependency, error)
}

// DefaultMaxParallel bounds concurrently dispatched tasks unless
// configured otherwise.
const DefaultMaxParallel = 3

// ProjectOrchestrator owns one project's execution lifecycle: state,
// event fan-out, and the cached execution plan. All mutations and event
// emissions happen under one lock, so every subscriber observes events
// in emission order.
type ProjectOrchestrator struct {
	projectID   uuid.UUID
	maxParallel int
	broadcaster *Broadcaster

	mu    sync.Mutex
	state State
	plan  *scheduler.ExecutionPlan
}

// New creates an idle orchestrator for a project. maxParallel values
// below 1 fall back to the default.
func New(projectID uuid.UUID, maxParallel int) *ProjectOrchestrator {
	if maxParallel < 1 {
		maxParallel = DefaultMaxParallel
	}
	return &ProjectOrchestrator{
		projectID:   projectID,
		maxParallel: maxParallel,
		broadcaster: NewBroadcaster(),
		state:       StateIdle,
	}
}

// ProjectID returns the project this orchestrator serves.
func (o *ProjectOrchestrator) ProjectID() uuid.UUID {
	return o.projectID
}

// Subscribe opens an event stream starting from the next emitted event.
func (o *ProjectOrchestrator) Subscribe() *Subscription {
	return o.broadcaster.Subscribe()
}

// State returns a snapshot of the current lifecycle state.
func (o *ProjectOrchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Plan returns the most recently built plan, or nil before the first
// build.
func (o *ProjectOrchestrator) Plan() *scheduler.ExecutionPlan {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.plan
}

// buildPlanLocked loads the project snapshot and rebuilds the cached
// plan. Caller holds o.mu.
func (o *ProjectOrchestrator) buildPlanLocked(ctx context.Context, store PlanStore) (*scheduler.ExecutionPlan, error) {
	tasks, err := store.FindTasksByProject(ctx, o.projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	deps, err := store.FindDependenciesByProject(ctx, o.projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dependencies: %w", err)
	}
	graph, err := scheduler.NewTaskGraph(tasks, deps)
	if err != nil {
		return nil, err
	}
	plan, err := scheduler.BuildExecutionPlan(graph)
	if err != nil {
		return nil, err
	}
	o.plan = plan
	return plan, nil
}

// BuildPlan rebuilds and caches the plan without touching lifecycle
// state.
func (o *ProjectOrchestrator) BuildPlan(ctx context.Context, store PlanStore) (*scheduler.ExecutionPlan, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buildPlanLocked(ctx, store)
}

// Start moves the orchestrator to running and publishes the state change
// followed by a fresh plan.
func (o *ProjectOrchestrator) Start(ctx context.Context, store PlanStore) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateRunning {
		return ErrAlreadyRunning
	}
	o.state = StateRunning
	o.broadcaster.Publish(Event{Type: EventStateChanged, Data: StateChangedData{State: StateRunning}})

	plan, err := o.buildPlanLocked(ctx, store)
	if err != nil {
		return err
	}
	o.broadcaster.Publish(Event{Type: EventPlanUpdated, Data: PlanUpdatedData{Plan: plan}})
	slog.Info("orchestrator started", "project_id", o.projectID)
	return nil
}

// Pause suspends dispatch. The plan is left as-is; nothing about the
// graph changed.
func (o *ProjectOrchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateRunning {
		return ErrNotRunning
	}
	o.state = StatePaused
	o.broadcaster.Publish(Event{Type: EventStateChanged, Data: StateChangedData{State: StatePaused}})
	slog.Info("orchestrator paused", "project_id", o.projectID)
	return nil
}

// Resume returns a paused orchestrator to running with a fresh plan.
func (o *ProjectOrchestrator) Resume(ctx context.Context, store PlanStore) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StatePaused {
		return ErrNotPaused
	}
	o.state = StateRunning
	o.broadcaster.Publish(Event{Type: EventStateChanged, Data: StateChangedData{State: StateRunning}})

	plan, err := o.buildPlanLocked(ctx, store)
	if err != nil {
		return err
	}
	o.broadcaster.Publish(Event{Type: EventPlanUpdated, Data: PlanUpdatedData{Plan: plan}})
	slog.Info("orchestrator resumed", "project_id", o.projectID)
	return nil
}

// Stop returns the orchestrator to idle. Subscribers observe a stopping
// edge before idle so clients can render a graceful phase; in-flight
// work is not awaited. Stopping an idle orchestrator is a silent no-op.
func (o *ProjectOrchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateIdle {
		return nil
	}
	o.state = StateStopping
	o.broadcaster.Publish(Event{Type: EventStateChanged, Data: StateChangedData{State: StateStopping}})
	o.state = StateIdle
	o.broadcaster.Publish(Event{Type: EventStateChanged, Data: StateChangedData{State: StateIdle}})
	slog.Info("orchestrator stopped", "project_id", o.projectID)
	return nil
}

// ReadyToExecute returns the IDs a dispatcher may start now: the plan's
// ready tasks, truncated to the remaining parallelism budget. Empty
// unless running.
func (o *ProjectOrchestrator) ReadyToExecute(ctx context.Context, store PlanStore) ([]uuid.UUID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateRunning {
		return []uuid.UUID{}, nil
	}
	plan, err := o.buildPlanLocked(ctx, store)
	if err != nil {
		return nil, err
	}
	ready := scheduler.GetReadyTasks(plan)
	budget := o.maxParallel - plan.Stats.InProgressTasks
	if budget <= 0 {
		return []uuid.UUID{}, nil
	}
	if len(ready) > budget {
		ready = ready[:budget]
	}
	if ready == nil {
		ready = []uuid.UUID{}
	}
	return ready, nil
}

// OnTaskStarted records an externally started task. Task status itself
// is written by the caller; this only publishes and replans.
func (o *ProjectOrchestrator) OnTaskStarted(ctx context.Context, store PlanStore, taskID uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.broadcaster.Publish(Event{Type: EventTaskStarted, Data: TaskEventData{TaskID: taskID}})
	plan, err := o.buildPlanLocked(ctx, store)
	if err != nil {
		return err
	}
	o.broadcaster.Publish(Event{Type: EventPlanUpdated, Data: PlanUpdatedData{Plan: plan}})
	return nil
}

// OnTaskCompleted records a completion and returns the tasks whose only
// blocker was the completed one. The list is computed from the plan as
// it stood before the rebuild and is advisory; the rebuilt plan is
// authoritative.
func (o *ProjectOrchestrator) OnTaskCompleted(ctx context.Context, store PlanStore, taskID uuid.UUID) ([]uuid.UUID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.broadcaster.Publish(Event{Type: EventTaskCompleted, Data: TaskEventData{TaskID: taskID}})

	unblocked := []uuid.UUID{}
	if o.plan != nil {
		if ids := scheduler.GetTasksUnblockedByCompletion(o.plan, taskID); ids != nil {
			unblocked = ids
		}
	}

	plan, err := o.buildPlanLocked(ctx, store)
	if err != nil {
		return nil, err
	}
	o.broadcaster.Publish(Event{Type: EventPlanUpdated, Data: PlanUpdatedData{Plan: plan}})
	return unblocked, nil
}

// OnTaskFailed records a failure. Dependents are not auto-cancelled;
// whatever status the external writer set stands.
func (o *ProjectOrchestrator) OnTaskFailed(ctx context.Context, store PlanStore, taskID uuid.UUID, taskErr string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.broadcaster.Publish(Event{Type: EventTaskFailed, Data: TaskFailedData{TaskID: taskID, Error: taskErr}})
	plan, err := o.buildPlanLocked(ctx, store)
	if err != nil {
		return err
	}
	o.broadcaster.Publish(Event{Type: EventPlanUpdated, Data: PlanUpdatedData{Plan: plan}})
	slog.Warn("task failed", "project_id", o.projectID, "task_id", taskID, "error", taskErr)
	return nil
}

// OnTaskReview records a task entering review.
func (o *ProjectOrchestrator) OnTaskReview(ctx context.Context, store PlanStore, taskID uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.broadcaster.Publish(Event{Type: EventTaskAwaitingReview, Data: TaskEventData{TaskID: taskID}})
	plan, err := o.buildPlanLocked(ctx, store)
	if err != nil {
		return err
	}
	o.broadcaster.Publish(Event{Type: EventPlanUpdated, Data: PlanUpdatedData{Plan: plan}})
	return nil
}

// ValidateTaskTransition loads the current snapshot and checks a status
// change against the state machine and dependency gate.
func (o *ProjectOrchestrator) ValidateTaskTransition(ctx context.Context, store PlanStore, taskID uuid.UUID, newStatus db.TaskStatus) (scheduler.TransitionValidation, error) {
	tasks, err := store.FindTasksByProject(ctx, o.projectID)
	if err != nil {
		return scheduler.TransitionValidation{}, fmt.Errorf("failed to load tasks: %w", err)
	}
	deps, err := store.FindDependenciesByProject(ctx, o.projectID)
	if err != nil {
		return scheduler.TransitionValidation{}, fmt.Errorf("failed to load dependencies: %w", err)
	}
	graph, err := scheduler.NewTaskGraph(tasks, deps)
	if err != nil {
		return scheduler.TransitionValidation{}, err
	}
	task, ok := graph.Task(taskID)
	if !ok {
		return scheduler.TransitionValidation{}, &TaskNotFoundError{TaskID: taskID}
	}
	return scheduler.ValidateTransition(graph, task, newStatus), nil
}

// Shutdown closes every subscriber stream. Used when the orchestrator is
// removed from the registry.
func (o *ProjectOrchestrator) Shutdown() {
	o.broadcaster.Close()
}
