package notify

import "context"

// Event types
const (
	EventTaskFailed = "task_failed"
	EventSyncErrors = "sync_errors"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Notify(ctx context.Context, eventType string, message string) error
}
