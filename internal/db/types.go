package db

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the workflow status of a task.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "inprogress"
	StatusInReview   TaskStatus = "inreview"
	StatusDone       TaskStatus = "done"
	StatusCancelled  TaskStatus = "cancelled"
)

// ParseTaskStatus converts a wire string to a TaskStatus.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch TaskStatus(s) {
	case StatusTodo, StatusInProgress, StatusInReview, StatusDone, StatusCancelled:
		return TaskStatus(s), true
	}
	return "", false
}

// Task is a unit of work inside a project.
type Task struct {
	ID                uuid.UUID  `json:"id"`
	ProjectID         uuid.UUID  `json:"project_id"`
	Title             string     `json:"title"`
	Description       *string    `json:"description,omitempty"`
	Status            TaskStatus `json:"status"`
	ParentWorkspaceID *uuid.UUID `json:"parent_workspace_id,omitempty"`
	SharedTaskID      *uuid.UUID `json:"shared_task_id,omitempty"`
	Position          *int32     `json:"position,omitempty"`
	DagPositionX      *float64   `json:"dag_position_x,omitempty"`
	DagPositionY      *float64   `json:"dag_position_y,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// CreateTask is the payload for inserting a task.
type CreateTask struct {
	ProjectID         uuid.UUID  `json:"project_id"`
	Title             string     `json:"title"`
	Description       *string    `json:"description,omitempty"`
	Status            TaskStatus `json:"status,omitempty"`
	ParentWorkspaceID *uuid.UUID `json:"parent_workspace_id,omitempty"`
	SharedTaskID      *uuid.UUID `json:"shared_task_id,omitempty"`
}

// UpdateTask is the payload for the basic task update. Nil fields keep
// their current value.
type UpdateTask struct {
	Title             *string     `json:"title,omitempty"`
	Description       *string     `json:"description,omitempty"`
	Status            *TaskStatus `json:"status,omitempty"`
	ParentWorkspaceID *uuid.UUID  `json:"parent_workspace_id,omitempty"`
}

// DependencyCreator records who created a dependency edge.
type DependencyCreator string

const (
	CreatorUser DependencyCreator = "user"
	CreatorAI   DependencyCreator = "ai"
)

// TaskDependency is a directed edge: TaskID may not leave todo until
// DependsOnTaskID is done.
type TaskDependency struct {
	ID              uuid.UUID         `json:"id"`
	TaskID          uuid.UUID         `json:"task_id"`
	DependsOnTaskID uuid.UUID         `json:"depends_on_task_id"`
	GenreID         *uuid.UUID        `json:"genre_id,omitempty"`
	CreatedBy       DependencyCreator `json:"created_by"`
	CreatedAt       time.Time         `json:"created_at"`
}

// CreateDependency is the payload for inserting a dependency edge.
type CreateDependency struct {
	TaskID          uuid.UUID         `json:"task_id"`
	DependsOnTaskID uuid.UUID         `json:"depends_on_task_id"`
	CreatedBy       DependencyCreator `json:"created_by,omitempty"`
	GenreID         *uuid.UUID        `json:"genre_id,omitempty"`
}

type genreOp int

const (
	genreOpUnchanged genreOp = iota
	genreOpClear
	genreOpSet
)

// GenreChange is a tri-state update to a dependency's genre:
// unchanged, cleared, or set to a specific genre.
type GenreChange struct {
	op genreOp
	id uuid.UUID
}

// GenreUnchanged leaves the genre as it is.
func GenreUnchanged() GenreChange { return GenreChange{op: genreOpUnchanged} }

// GenreClear removes the genre from the dependency.
func GenreClear() GenreChange { return GenreChange{op: genreOpClear} }

// GenreSet assigns the given genre to the dependency.
func GenreSet(id uuid.UUID) GenreChange { return GenreChange{op: genreOpSet, id: id} }

// Apply resolves the change against the current genre value.
func (c GenreChange) Apply(current *uuid.UUID) *uuid.UUID {
	switch c.op {
	case genreOpClear:
		return nil
	case genreOpSet:
		id := c.id
		return &id
	default:
		return current
	}
}

// DependencyGenre is a user-defined category for dependency edges,
// ordered per project.
type DependencyGenre struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Position  int32     `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultGenreColor is used when a genre is created without a color.
const DefaultGenreColor = "#808080"

// CreateGenre is the payload for inserting a genre. Position defaults
// to max+1 within the project when nil.
type CreateGenre struct {
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	Color     *string   `json:"color,omitempty"`
	Position  *int32    `json:"position,omitempty"`
}

// UpdateGenre is the payload for updating a genre. Nil fields keep
// their current value.
type UpdateGenre struct {
	Name     *string `json:"name,omitempty"`
	Color    *string `json:"color,omitempty"`
	Position *int32  `json:"position,omitempty"`
}

// GitHubProjectLink binds a local project to a GitHub Projects-v2 board.
type GitHubProjectLink struct {
	ID              uuid.UUID  `json:"id"`
	ProjectID       uuid.UUID  `json:"project_id"`
	GitHubProjectID string     `json:"github_project_id"`
	Owner           string     `json:"owner"`
	Repo            *string    `json:"repo,omitempty"`
	Number          *int64     `json:"number,omitempty"`
	SyncEnabled     bool       `json:"sync_enabled"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CreateGitHubProjectLink is the payload for inserting a link.
type CreateGitHubProjectLink struct {
	ProjectID       uuid.UUID `json:"project_id"`
	GitHubProjectID string    `json:"github_project_id"`
	Owner           string    `json:"owner"`
	Repo            *string   `json:"repo,omitempty"`
	Number          *int64    `json:"number,omitempty"`
}

// SyncDirection controls which way changes flow for a mapping.
type SyncDirection string

const (
	SyncBidirectional SyncDirection = "bidirectional"
	SyncGithubToVibe  SyncDirection = "github_to_vibe"
	SyncVibeToGithub  SyncDirection = "vibe_to_github"
)

// GitHubIssueMapping binds a local task to a remote issue. A task has
// at most one mapping, and (link, issue number) is unique.
type GitHubIssueMapping struct {
	ID              uuid.UUID     `json:"id"`
	TaskID          uuid.UUID     `json:"task_id"`
	LinkID          uuid.UUID     `json:"github_project_link_id"`
	IssueNumber     int64         `json:"github_issue_number"`
	IssueID         string        `json:"github_issue_id"`
	IssueURL        string        `json:"github_issue_url"`
	SyncDirection   SyncDirection `json:"sync_direction"`
	LastSyncedAt    *time.Time    `json:"last_synced_at,omitempty"`
	GitHubUpdatedAt *time.Time    `json:"github_updated_at,omitempty"`
	VibeUpdatedAt   *time.Time    `json:"vibe_updated_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// CreateGitHubIssueMapping is the payload for inserting a mapping.
type CreateGitHubIssueMapping struct {
	TaskID        uuid.UUID     `json:"task_id"`
	LinkID        uuid.UUID     `json:"github_project_link_id"`
	IssueNumber   int64         `json:"github_issue_number"`
	IssueID       string        `json:"github_issue_id"`
	IssueURL      string        `json:"github_issue_url"`
	SyncDirection SyncDirection `json:"sync_direction,omitempty"`
}

// PropertySource records which side of the sync wrote a property.
type PropertySource string

const (
	SourceVibe   PropertySource = "vibe"
	SourceGithub PropertySource = "github"
)

// TaskProperty is a named value attached to a task, used to carry
// remote metadata (labels, milestone, project fields) without widening
// the Task row. Upserts are keyed on (task_id, name).
type TaskProperty struct {
	ID        uuid.UUID      `json:"id"`
	TaskID    uuid.UUID      `json:"task_id"`
	Name      string         `json:"name"`
	Value     string         `json:"value"`
	Source    PropertySource `json:"source"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// UpsertTaskProperty is the payload for inserting or updating a property.
type UpsertTaskProperty struct {
	TaskID uuid.UUID      `json:"task_id"`
	Name   string         `json:"name"`
	Value  string         `json:"value"`
	Source PropertySource `json:"source,omitempty"`
}
