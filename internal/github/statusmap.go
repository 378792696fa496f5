package github

import (
	"strings"

	"vibeboard/internal/db"
)

// VibeToGithubState maps a local task status to the remote issue state.
// Only terminal statuses close the issue.
func VibeToGithubState(status db.TaskStatus) string {
	switch status {
	case db.StatusDone, db.StatusCancelled:
		return "CLOSED"
	default:
		return "OPEN"
	}
}

// GithubToVibeStatus maps a project item to a local status: the project
// Status field when present, otherwise the issue's open/closed state.
// Task creation writes todo regardless; this mapping exists for
// initializing mappings and is kept for that path.
func GithubToVibeStatus(item ProjectItem) db.TaskStatus {
	if field, ok := item.StatusField(); ok {
		f := strings.ToLower(field)
		switch {
		case strings.Contains(f, "progress"):
			return db.StatusInProgress
		case strings.Contains(f, "review"):
			return db.StatusInReview
		case strings.Contains(f, "done"):
			return db.StatusDone
		case strings.Contains(f, "cancel"):
			return db.StatusCancelled
		}
	}
	if item.Issue != nil && item.Issue.State == "CLOSED" {
		return db.StatusDone
	}
	return db.StatusTodo
}

// snakeCase normalizes a project field name for property keys:
// "Target Date" -> "target_date".
func snakeCase(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
