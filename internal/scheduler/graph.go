package scheduler

import (
	"fmt"

	"github.com/google/uuid"

	"vibeboard/internal/db"
)

// TaskGraph is an immutable in-memory snapshot of a project's tasks and
// dependency edges. It performs no I/O; callers build it from repository
// reads and query it freely.
type TaskGraph struct {
	tasks      map[uuid.UUID]db.Task
	edges      []db.TaskDependency
	deps       map[uuid.UUID][]uuid.UUID // task -> tasks it depends on
	dependents map[uuid.UUID][]uuid.UUID // task -> tasks depending on it
}

// NewTaskGraph builds a graph snapshot. It panics on duplicate task IDs
// (callers load from the repository, which guarantees uniqueness) and
// returns an error when an edge crosses project boundaries or references
// an unknown task.
func NewTaskGraph(tasks []db.Task, edges []db.TaskDependency) (*TaskGraph, error) {
	g := &TaskGraph{
		tasks:      make(map[uuid.UUID]db.Task, len(tasks)),
		edges:      edges,
		deps:       make(map[uuid.UUID][]uuid.UUID),
		dependents: make(map[uuid.UUID][]uuid.UUID),
	}
	for _, t := range tasks {
		if _, ok := g.tasks[t.ID]; ok {
			panic(fmt.Sprintf("duplicate task id %s in graph", t.ID))
		}
		g.tasks[t.ID] = t
	}
	for _, e := range edges {
		from, ok := g.tasks[e.TaskID]
		if !ok {
			return nil, fmt.Errorf("edge %s references unknown task %s", e.ID, e.TaskID)
		}
		to, ok := g.tasks[e.DependsOnTaskID]
		if !ok {
			return nil, fmt.Errorf("edge %s references unknown task %s", e.ID, e.DependsOnTaskID)
		}
		if from.ProjectID != to.ProjectID {
			return nil, fmt.Errorf("edge %s crosses projects %s and %s", e.ID, from.ProjectID, to.ProjectID)
		}
		g.deps[e.TaskID] = append(g.deps[e.TaskID], e.DependsOnTaskID)
		g.dependents[e.DependsOnTaskID] = append(g.dependents[e.DependsOnTaskID], e.TaskID)
	}
	return g, nil
}

// Task returns the task with the given ID, if present.
func (g *TaskGraph) Task(id uuid.UUID) (db.Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Tasks returns every task in the snapshot.
func (g *TaskGraph) Tasks() []db.Task {
	out := make([]db.Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, t)
	}
	return out
}

// Edges returns the dependency edges of the snapshot.
func (g *TaskGraph) Edges() []db.TaskDependency {
	return g.edges
}

// DepsOf returns the IDs the given task depends on.
func (g *TaskGraph) DepsOf(id uuid.UUID) []uuid.UUID {
	return g.deps[id]
}

// DependentsOf returns the IDs of tasks depending on the given task.
func (g *TaskGraph) DependentsOf(id uuid.UUID) []uuid.UUID {
	return g.dependents[id]
}
