package ui

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibeboard/internal/db"
	"vibeboard/internal/scheduler"
)

func TestRenderPlan(t *testing.T) {
	projectID := uuid.New()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := db.Task{ID: uuid.New(), ProjectID: projectID, Title: "design schema", Status: db.StatusDone, CreatedAt: base}
	b := db.Task{ID: uuid.New(), ProjectID: projectID, Title: "write migrations", Status: db.StatusTodo, CreatedAt: base.Add(time.Second)}
	tasks := []db.Task{a, b}
	deps := []db.TaskDependency{{ID: uuid.New(), TaskID: b.ID, DependsOnTaskID: a.ID}}

	graph, err := scheduler.NewTaskGraph(tasks, deps)
	require.NoError(t, err)
	plan, err := scheduler.BuildExecutionPlan(graph)
	require.NoError(t, err)

	out := RenderPlan(projectID, plan, tasks)
	assert.Contains(t, out, "design schema")
	assert.Contains(t, out, "write migrations")
	assert.Contains(t, out, "Level 0")
	assert.Contains(t, out, "Level 1")
	assert.Contains(t, out, "total 2")
	assert.Contains(t, out, "ready 1")
}

func TestRenderPlanEmpty(t *testing.T) {
	projectID := uuid.New()
	graph, err := scheduler.NewTaskGraph(nil, nil)
	require.NoError(t, err)
	plan, err := scheduler.BuildExecutionPlan(graph)
	require.NoError(t, err)

	out := RenderPlan(projectID, plan, nil)
	assert.Contains(t, out, "no tasks")
}
