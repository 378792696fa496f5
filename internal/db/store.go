package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Errors surfaced by stores. Handlers map these to HTTP statuses.
var (
	ErrNotFound           = errors.New("not found")
	ErrSelfDependency     = errors.New("task cannot depend on itself")
	ErrCrossProjectEdge   = errors.New("tasks belong to different projects")
	ErrDuplicateEdge      = errors.New("dependency already exists")
	ErrCycleDetected      = errors.New("dependency would create a cycle")
	ErrDuplicateGenreName = errors.New("genre name already exists in project")
)

// NotFoundError wraps ErrNotFound with the entity kind and ID.
type NotFoundError struct {
	Entity string
	ID     uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Store is the persistence port consumed by the orchestration core and
// the GitHub sync engine.
type Store interface {
	Close() error

	// Tasks
	FindTask(ctx context.Context, id uuid.UUID) (*Task, error)
	FindTasksByProject(ctx context.Context, projectID uuid.UUID) ([]Task, error)
	CreateTask(ctx context.Context, data CreateTask) (*Task, error)
	UpdateTask(ctx context.Context, id uuid.UUID, data UpdateTask) (*Task, error)
	UpdateTaskPosition(ctx context.Context, id uuid.UUID, position int32) (*Task, error)
	UpdateTaskDAGPosition(ctx context.Context, id uuid.UUID, x, y float64) error
	DeleteTask(ctx context.Context, id uuid.UUID) error

	// Dependencies
	FindDependency(ctx context.Context, id uuid.UUID) (*TaskDependency, error)
	FindDependenciesByTask(ctx context.Context, taskID uuid.UUID) ([]TaskDependency, error)
	FindDependenciesByProject(ctx context.Context, projectID uuid.UUID) ([]TaskDependency, error)
	FindDependents(ctx context.Context, dependsOnTaskID uuid.UUID) ([]TaskDependency, error)
	DependencyExists(ctx context.Context, taskID, dependsOnTaskID uuid.UUID) (bool, error)
	WouldCreateCycle(ctx context.Context, taskID, dependsOnTaskID uuid.UUID) (bool, error)
	CreateDependency(ctx context.Context, data CreateDependency) (*TaskDependency, error)
	UpdateDependency(ctx context.Context, id uuid.UUID, genre GenreChange) (*TaskDependency, error)
	DeleteDependency(ctx context.Context, id uuid.UUID) error
	DeleteDependenciesByTask(ctx context.Context, taskID uuid.UUID) error
	DeleteDependencyBetween(ctx context.Context, taskID, dependsOnTaskID uuid.UUID) error

	// Dependency genres
	FindGenre(ctx context.Context, id uuid.UUID) (*DependencyGenre, error)
	FindGenreByName(ctx context.Context, projectID uuid.UUID, name string) (*DependencyGenre, error)
	FindGenresByProject(ctx context.Context, projectID uuid.UUID) ([]DependencyGenre, error)
	CreateGenre(ctx context.Context, data CreateGenre) (*DependencyGenre, error)
	UpdateGenre(ctx context.Context, id uuid.UUID, data UpdateGenre) (*DependencyGenre, error)
	ReorderGenres(ctx context.Context, genreIDs []uuid.UUID) ([]DependencyGenre, error)
	DeleteGenre(ctx context.Context, id uuid.UUID) error

	// GitHub project links
	FindLink(ctx context.Context, id uuid.UUID) (*GitHubProjectLink, error)
	FindLinksByProject(ctx context.Context, projectID uuid.UUID) ([]GitHubProjectLink, error)
	FindEnabledLinks(ctx context.Context) ([]GitHubProjectLink, error)
	CreateLink(ctx context.Context, data CreateGitHubProjectLink) (*GitHubProjectLink, error)
	SetLinkSyncEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*GitHubProjectLink, error)
	UpdateLinkLastSync(ctx context.Context, id uuid.UUID) error
	DeleteLink(ctx context.Context, id uuid.UUID) error

	// GitHub issue mappings
	FindMappingByIssue(ctx context.Context, linkID uuid.UUID, issueNumber int64) (*GitHubIssueMapping, error)
	FindMappingByTask(ctx context.Context, taskID uuid.UUID) (*GitHubIssueMapping, error)
	FindMappingsByLink(ctx context.Context, linkID uuid.UUID) ([]GitHubIssueMapping, error)
	CreateMapping(ctx context.Context, data CreateGitHubIssueMapping) (*GitHubIssueMapping, error)
	UpdateMappingSyncTimestamps(ctx context.Context, id uuid.UUID, githubUpdatedAt, vibeUpdatedAt *time.Time) error

	// Task properties
	UpsertProperty(ctx context.Context, data UpsertTaskProperty) (*TaskProperty, error)
	FindPropertiesByTask(ctx context.Context, taskID uuid.UUID) ([]TaskProperty, error)
}

// NewStore creates a store from a DSN. Postgres DSNs (postgres:// or
// key=value form) get the Postgres engine, everything else is treated
// as a SQLite path.
func NewStore(dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return NewPostgresStore(dsn)
	}
	return NewSQLiteStore(dsn)
}
