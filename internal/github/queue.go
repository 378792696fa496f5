package github

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OperationKind classifies a queued outbound write.
type OperationKind string

const (
	OpUpdateStatus     OperationKind = "update_status"
	OpUpdateAssignment OperationKind = "update_assignment"
	OpUpdateBranch     OperationKind = "update_branch"
)

// SyncOperation is one pending outbound write.
type SyncOperation struct {
	ID         uuid.UUID     `json:"id"`
	TaskID     uuid.UUID     `json:"task_id"`
	Kind       OperationKind `json:"kind"`
	CreatedAt  time.Time     `json:"created_at"`
	RetryCount int           `json:"retry_count"`
}

const (
	queueCapacity = 100
	maxRetries    = 3
)

// Executor attempts one outbound write.
type Executor func(ctx context.Context, op SyncOperation) error

// Queue buffers outbound writes while the provider is unreachable.
// Enqueueing never fails from the caller's perspective: at capacity the
// oldest entry is evicted, and an operation that keeps failing is
// dropped after its retry budget runs out.
type Queue struct {
	mu  sync.Mutex
	ops []SyncOperation
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Len reports the number of pending operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Enqueue adds an operation, evicting the oldest entry at capacity.
func (q *Queue) Enqueue(op SyncOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueueLocked(op)
}

func (q *Queue) enqueueLocked(op SyncOperation) {
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	if len(q.ops) >= queueCapacity {
		evicted := q.ops[0]
		q.ops = q.ops[1:]
		slog.Warn("sync queue full, evicting oldest operation",
			"evicted_id", evicted.ID, "kind", evicted.Kind, "task_id", evicted.TaskID)
	}
	q.ops = append(q.ops, op)
}

// ExecuteOrQueue attempts the operation immediately and queues it on
// failure. The caller's write is accepted either way.
func (q *Queue) ExecuteOrQueue(ctx context.Context, op SyncOperation, exec Executor) {
	if err := exec(ctx, op); err != nil {
		slog.Debug("sync push failed, queueing", "kind", op.Kind, "task_id", op.TaskID, "error", err)
		q.Enqueue(op)
	}
}

// ProcessQueue drains the queue atomically and retries each operation
// in order. Failures re-enter the queue with their retry count bumped;
// operations past the retry budget are dropped.
func (q *Queue) ProcessQueue(ctx context.Context, exec Executor) {
	q.mu.Lock()
	pending := q.ops
	q.ops = nil
	q.mu.Unlock()

	for _, op := range pending {
		if err := exec(ctx, op); err != nil {
			op.RetryCount++
			if op.RetryCount >= maxRetries {
				slog.Warn("dropping sync operation after retries",
					"id", op.ID, "kind", op.Kind, "task_id", op.TaskID, "retries", op.RetryCount)
				continue
			}
			q.Enqueue(op)
		}
	}
}
