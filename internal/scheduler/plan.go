package scheduler

import (
	"errors"
	"sort"

	"github.com/google/uuid"

	"vibeboard/internal/db"
)

// ErrCorruptGraph is returned when the edge set contains a cycle. Edge
// creation rejects cycles, so hitting this means the stored graph is
// inconsistent.
var ErrCorruptGraph = errors.New("dependency graph contains a cycle")

// Readiness is the derived execution state of a task, combining its own
// status with the statuses of its upstream dependencies.
type Readiness string

const (
	ReadinessReady      Readiness = "ready"
	ReadinessBlocked    Readiness = "blocked"
	ReadinessInProgress Readiness = "in_progress"
	ReadinessCompleted  Readiness = "completed"
	ReadinessCancelled  Readiness = "cancelled"
)

// ExecutableTask is one task inside an execution plan.
type ExecutableTask struct {
	TaskID        uuid.UUID     `json:"task_id"`
	Status        db.TaskStatus `json:"status"`
	Readiness     Readiness     `json:"readiness"`
	BlockingTasks []uuid.UUID   `json:"blocking_tasks,omitempty"`
	Dependencies  []uuid.UUID   `json:"dependencies"`
	Dependents    []uuid.UUID   `json:"dependents"`
}

// ExecutionLevel groups tasks at the same DAG depth. Tasks within a level
// have no edges between them and are independently executable.
type ExecutionLevel struct {
	Level int              `json:"level"`
	Tasks []ExecutableTask `json:"tasks"`
}

// PlanStats are aggregate counters over the full task set.
type PlanStats struct {
	TotalTasks      int `json:"total_tasks"`
	CompletedTasks  int `json:"completed_tasks"`
	InProgressTasks int `json:"in_progress_tasks"`
	InReviewTasks   int `json:"in_review_tasks"`
	ReadyTasks      int `json:"ready_tasks"`
	BlockedTasks    int `json:"blocked_tasks"`
}

// ExecutionPlan is the leveled view of a project's DAG.
type ExecutionPlan struct {
	Levels []ExecutionLevel `json:"levels"`
	Stats  PlanStats        `json:"stats"`
}

// BuildExecutionPlan runs Kahn's algorithm with level tracking over the
// graph and computes per-task readiness and aggregate stats. It is a pure
// function of the snapshot.
func BuildExecutionPlan(g *TaskGraph) (*ExecutionPlan, error) {
	tasks := g.Tasks()

	inDegree := make(map[uuid.UUID]int, len(tasks))
	for _, t := range tasks {
		inDegree[t.ID] = len(g.DepsOf(t.ID))
	}

	var frontier []uuid.UUID
	for id, deg := range inDegree {
		if deg == 0 {
			frontier = append(frontier, id)
		}
	}

	plan := &ExecutionPlan{}
	placed := 0
	for level := 0; len(frontier) > 0; level++ {
		sortTaskIDs(g, frontier)

		levelTasks := make([]ExecutableTask, 0, len(frontier))
		var next []uuid.UUID
		for _, id := range frontier {
			task, _ := g.Task(id)
			levelTasks = append(levelTasks, buildExecutable(g, task))
			placed++
			for _, dep := range g.DependentsOf(id) {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		plan.Levels = append(plan.Levels, ExecutionLevel{Level: level, Tasks: levelTasks})
		frontier = next
	}

	if placed != len(tasks) {
		return nil, ErrCorruptGraph
	}

	plan.Stats = computeStats(plan, len(tasks))
	return plan, nil
}

// sortTaskIDs orders a frontier by (created_at asc, id asc) so plans are
// deterministic for a given snapshot.
func sortTaskIDs(g *TaskGraph, ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		a, _ := g.Task(ids[i])
		b, _ := g.Task(ids[j])
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

func buildExecutable(g *TaskGraph, task db.Task) ExecutableTask {
	readiness, blocking := CalculateReadiness(g, task)
	deps := g.DepsOf(task.ID)
	if deps == nil {
		deps = []uuid.UUID{}
	}
	dependents := g.DependentsOf(task.ID)
	if dependents == nil {
		dependents = []uuid.UUID{}
	}
	return ExecutableTask{
		TaskID:        task.ID,
		Status:        task.Status,
		Readiness:     readiness,
		BlockingTasks: blocking,
		Dependencies:  deps,
		Dependents:    dependents,
	}
}

// CalculateReadiness derives a task's readiness. For todo tasks the
// blocking list holds every dependency that is not done; it is nil for
// all other readiness values.
func CalculateReadiness(g *TaskGraph, task db.Task) (Readiness, []uuid.UUID) {
	switch task.Status {
	case db.StatusDone:
		return ReadinessCompleted, nil
	case db.StatusCancelled:
		return ReadinessCancelled, nil
	case db.StatusInProgress, db.StatusInReview:
		return ReadinessInProgress, nil
	}

	var blocking []uuid.UUID
	for _, depID := range g.DepsOf(task.ID) {
		dep, ok := g.Task(depID)
		if !ok || dep.Status != db.StatusDone {
			blocking = append(blocking, depID)
		}
	}
	if len(blocking) > 0 {
		return ReadinessBlocked, blocking
	}
	return ReadinessReady, nil
}

// computeStats counts each task exactly once. in_review is counted from
// task status while the other counters come from readiness, so a task in
// review shows up in both in_progress (readiness) and in_review (status).
func computeStats(plan *ExecutionPlan, total int) PlanStats {
	stats := PlanStats{TotalTasks: total}
	for _, level := range plan.Levels {
		for _, t := range level.Tasks {
			switch t.Readiness {
			case ReadinessCompleted:
				stats.CompletedTasks++
			case ReadinessInProgress:
				stats.InProgressTasks++
			case ReadinessReady:
				stats.ReadyTasks++
			case ReadinessBlocked:
				stats.BlockedTasks++
			}
			if t.Status == db.StatusInReview {
				stats.InReviewTasks++
			}
		}
	}
	return stats
}

// GetReadyTasks flattens the plan and returns the IDs of tasks whose
// readiness is ready, in level order.
func GetReadyTasks(plan *ExecutionPlan) []uuid.UUID {
	var ready []uuid.UUID
	for _, level := range plan.Levels {
		for _, t := range level.Tasks {
			if t.Readiness == ReadinessReady {
				ready = append(ready, t.TaskID)
			}
		}
	}
	return ready
}

// GetTasksUnblockedByCompletion returns the tasks whose only remaining
// blocker is the completing task. It under-approximates the next ready
// set; rebuilding the plan gives the authoritative answer.
func GetTasksUnblockedByCompletion(plan *ExecutionPlan, completedID uuid.UUID) []uuid.UUID {
	var unblocked []uuid.UUID
	for _, level := range plan.Levels {
		for _, t := range level.Tasks {
			if t.Readiness == ReadinessBlocked && len(t.BlockingTasks) == 1 && t.BlockingTasks[0] == completedID {
				unblocked = append(unblocked, t.TaskID)
			}
		}
	}
	return unblocked
}
