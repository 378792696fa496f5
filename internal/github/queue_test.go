package github

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteOrQueue(t *testing.T) {
	q := NewQueue()
	executed := 0
	ok := func(ctx context.Context, op SyncOperation) error {
		executed++
		return nil
	}
	fail := func(ctx context.Context, op SyncOperation) error {
		return fmt.Errorf("offline")
	}

	q.ExecuteOrQueue(context.Background(), SyncOperation{TaskID: uuid.New(), Kind: OpUpdateStatus}, ok)
	assert.Equal(t, 1, executed)
	assert.Equal(t, 0, q.Len())

	// Failed push is queued; the caller sees no error either way
	q.ExecuteOrQueue(context.Background(), SyncOperation{TaskID: uuid.New(), Kind: OpUpdateStatus}, fail)
	assert.Equal(t, 1, q.Len())
}

func TestProcessQueueRetriesThenDrops(t *testing.T) {
	q := NewQueue()
	q.Enqueue(SyncOperation{TaskID: uuid.New(), Kind: OpUpdateBranch})

	fail := func(ctx context.Context, op SyncOperation) error {
		return fmt.Errorf("still offline")
	}

	q.ProcessQueue(context.Background(), fail)
	assert.Equal(t, 1, q.Len(), "first failure re-queues")
	q.ProcessQueue(context.Background(), fail)
	assert.Equal(t, 1, q.Len(), "second failure re-queues")
	q.ProcessQueue(context.Background(), fail)
	assert.Equal(t, 0, q.Len(), "third failure exhausts the retry budget")
}

func TestProcessQueueDrainsInOrder(t *testing.T) {
	q := NewQueue()
	first := uuid.New()
	second := uuid.New()
	q.Enqueue(SyncOperation{TaskID: first, Kind: OpUpdateStatus})
	q.Enqueue(SyncOperation{TaskID: second, Kind: OpUpdateAssignment})

	var order []uuid.UUID
	q.ProcessQueue(context.Background(), func(ctx context.Context, op SyncOperation) error {
		order = append(order, op.TaskID)
		return nil
	})

	require.Equal(t, []uuid.UUID{first, second}, order)
	assert.Equal(t, 0, q.Len())
}

func TestEnqueueEvictsOldestAtCapacity(t *testing.T) {
	q := NewQueue()
	oldest := uuid.New()
	q.Enqueue(SyncOperation{TaskID: oldest, Kind: OpUpdateStatus})
	for i := 0; i < queueCapacity; i++ {
		q.Enqueue(SyncOperation{TaskID: uuid.New(), Kind: OpUpdateStatus})
	}

	assert.Equal(t, queueCapacity, q.Len())
	var seen []uuid.UUID
	q.ProcessQueue(context.Background(), func(ctx context.Context, op SyncOperation) error {
		seen = append(seen, op.TaskID)
		return nil
	})
	assert.NotContains(t, seen, oldest)
}

func TestEnqueueFillsDefaults(t *testing.T) {
	q := NewQueue()
	q.Enqueue(SyncOperation{TaskID: uuid.New(), Kind: OpUpdateStatus})

	q.ProcessQueue(context.Background(), func(ctx context.Context, op SyncOperation) error {
		assert.NotEqual(t, uuid.Nil, op.ID)
		assert.False(t, op.CreatedAt.IsZero())
		return nil
	})
}
