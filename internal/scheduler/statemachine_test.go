package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibeboard/internal/db"
)

func TestIsValidTransition(t *testing.T) {
	cases := []struct {
		from, to db.TaskStatus
		want     bool
	}{
		{db.StatusTodo, db.StatusInProgress, true},
		{db.StatusTodo, db.StatusCancelled, true},
		{db.StatusTodo, db.StatusDone, false},
		{db.StatusTodo, db.StatusInReview, false},
		{db.StatusInProgress, db.StatusTodo, true},
		{db.StatusInProgress, db.StatusInReview, true},
		{db.StatusInProgress, db.StatusDone, true},
		{db.StatusInProgress, db.StatusCancelled, true},
		{db.StatusInReview, db.StatusInProgress, true},
		{db.StatusInReview, db.StatusDone, true},
		{db.StatusInReview, db.StatusCancelled, true},
		{db.StatusInReview, db.StatusTodo, false},
		{db.StatusDone, db.StatusTodo, true},
		{db.StatusDone, db.StatusInProgress, true},
		{db.StatusDone, db.StatusInReview, false},
		{db.StatusDone, db.StatusCancelled, false},
		{db.StatusCancelled, db.StatusTodo, true},
		{db.StatusCancelled, db.StatusInProgress, false},
		{db.StatusCancelled, db.StatusDone, false},
		// no-op writes are always valid
		{db.StatusTodo, db.StatusTodo, true},
		{db.StatusDone, db.StatusDone, true},
		{db.StatusCancelled, db.StatusCancelled, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsValidTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestValidateTransitionRequiresConfirmation(t *testing.T) {
	b := newGraphBuilder()
	x := b.task("X", db.StatusTodo)
	y := b.task("Y", db.StatusTodo)
	b.edge("X", "Y")
	g := b.build(t)

	task, ok := g.Task(x)
	require.True(t, ok)

	// Starting X while Y is unfinished is a warning, not a refusal
	v := ValidateTransition(g, task, db.StatusInProgress)
	assert.Equal(t, ValidationRequiresConfirmation, v.Kind)
	assert.Equal(t, 1, len(v.BlockingTasks))
	assert.Equal(t, y, v.BlockingTasks[0])
	assert.NotEmpty(t, v.Reason)

	// The pair itself stays legal, so a forced write is permitted
	assert.True(t, IsValidTransition(db.StatusTodo, db.StatusInProgress))
}

func TestValidateTransitionInvalidNeverValid(t *testing.T) {
	b := newGraphBuilder()
	x := b.task("X", db.StatusTodo)
	g := b.build(t)
	task, _ := g.Task(x)

	v := ValidateTransition(g, task, db.StatusDone)
	assert.Equal(t, ValidationInvalid, v.Kind)
	assert.NotEmpty(t, v.Reason)
}

func TestValidateTransitionValidWhenDepsDone(t *testing.T) {
	b := newGraphBuilder()
	x := b.task("X", db.StatusTodo)
	b.task("Y", db.StatusDone)
	b.edge("X", "Y")
	g := b.build(t)
	task, _ := g.Task(x)

	v := ValidateTransition(g, task, db.StatusInProgress)
	assert.Equal(t, ValidationValid, v.Kind)
	assert.Empty(t, v.BlockingTasks)
}

func TestCanStartTask(t *testing.T) {
	b := newGraphBuilder()
	x := b.task("X", db.StatusTodo)
	b.task("Y", db.StatusDone)
	started := b.task("started", db.StatusInProgress)
	b.edge("X", "Y")
	g := b.build(t)

	xt, _ := g.Task(x)
	assert.True(t, CanStartTask(g, xt))

	st, _ := g.Task(started)
	assert.False(t, CanStartTask(g, st), "non-todo tasks are never startable")
}
