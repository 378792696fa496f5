package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store and applies migrations
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id UUID PRIMARY KEY,
			project_id UUID NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL DEFAULT 'todo',
			parent_workspace_id UUID,
			shared_task_id UUID,
			position INTEGER,
			dag_position_x DOUBLE PRECISION,
			dag_position_y DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);`,
		`CREATE TABLE IF NOT EXISTS task_dependencies (
			id UUID PRIMARY KEY,
			task_id UUID NOT NULL,
			depends_on_task_id UUID NOT NULL,
			genre_id UUID,
			created_by TEXT NOT NULL DEFAULT 'user',
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE(task_id, depends_on_task_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deps_task ON task_dependencies(task_id);`,
		`CREATE INDEX IF NOT EXISTS idx_deps_depends_on ON task_dependencies(depends_on_task_id);`,
		`CREATE TABLE IF NOT EXISTS dependency_genres (
			id UUID PRIMARY KEY,
			project_id UUID NOT NULL,
			name TEXT NOT NULL,
			color TEXT NOT NULL,
			position INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE(project_id, name)
		);`,
		`CREATE TABLE IF NOT EXISTS github_project_links (
			id UUID PRIMARY KEY,
			project_id UUID NOT NULL,
			github_project_id TEXT NOT NULL,
			owner TEXT NOT NULL,
			repo TEXT,
			number BIGINT,
			sync_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			last_sync_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS github_issue_mappings (
			id UUID PRIMARY KEY,
			task_id UUID NOT NULL UNIQUE,
			github_project_link_id UUID NOT NULL,
			github_issue_number BIGINT NOT NULL,
			github_issue_id TEXT NOT NULL,
			github_issue_url TEXT NOT NULL,
			sync_direction TEXT NOT NULL DEFAULT 'bidirectional',
			last_synced_at TIMESTAMPTZ,
			github_updated_at TIMESTAMPTZ,
			vibe_updated_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE(github_project_link_id, github_issue_number)
		);`,
		`CREATE TABLE IF NOT EXISTS task_properties (
			id UUID PRIMARY KEY,
			task_id UUID NOT NULL,
			name TEXT NOT NULL,
			value TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'vibe',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE(task_id, name)
		);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// FindTask retrieves a task by ID
func (s *PostgresStore) FindTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = $1`, id.String())
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "task", ID: id}
	}
	return task, err
}

// FindTasksByProject retrieves all tasks in a project ordered by creation time
func (s *PostgresStore) FindTasksByProject(ctx context.Context, projectID uuid.UUID) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE project_id = $1 ORDER BY created_at ASC, id ASC`, projectID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// CreateTask inserts a new task
func (s *PostgresStore) CreateTask(ctx context.Context, data CreateTask) (*Task, error) {
	status := data.Status
	if status == "" {
		status = StatusTodo
	}
	id := uuid.New()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, project_id, title, description, status, parent_workspace_id, shared_task_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id.String(), data.ProjectID.String(), data.Title, nullStr(data.Description), string(status),
		nullUUID(data.ParentWorkspaceID), nullUUID(data.SharedTaskID), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return s.FindTask(ctx, id)
}

// UpdateTask applies a partial update; nil fields keep their current value
func (s *PostgresStore) UpdateTask(ctx context.Context, id uuid.UUID, data UpdateTask) (*Task, error) {
	current, err := s.FindTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if data.Title != nil {
		current.Title = *data.Title
	}
	if data.Description != nil {
		current.Description = data.Description
	}
	if data.Status != nil {
		current.Status = *data.Status
	}
	if data.ParentWorkspaceID != nil {
		current.ParentWorkspaceID = data.ParentWorkspaceID
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE tasks SET title = $1, description = $2, status = $3, parent_workspace_id = $4, updated_at = $5 WHERE id = $6`,
		current.Title, nullStr(current.Description), string(current.Status), nullUUID(current.ParentWorkspaceID), now, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	current.UpdatedAt = now
	return current, nil
}

// UpdateTaskPosition sets the list position of a task
func (s *PostgresStore) UpdateTaskPosition(ctx context.Context, id uuid.UUID, position int32) (*Task, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET position = $1, updated_at = $2 WHERE id = $3`,
		position, time.Now().UTC(), id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to update task position: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &NotFoundError{Entity: "task", ID: id}
	}
	return s.FindTask(ctx, id)
}

// UpdateTaskDAGPosition sets the canvas coordinates of a task
func (s *PostgresStore) UpdateTaskDAGPosition(ctx context.Context, id uuid.UUID, x, y float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET dag_position_x = $1, dag_position_y = $2, updated_at = $3 WHERE id = $4`,
		x, y, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to update dag position: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "task", ID: id}
	}
	return nil
}

// DeleteTask removes a task
func (s *PostgresStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "task", ID: id}
	}
	return nil
}

// FindDependency retrieves a dependency edge by ID
func (s *PostgresStore) FindDependency(ctx context.Context, id uuid.UUID) (*TaskDependency, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+depCols+` FROM task_dependencies WHERE id = $1`, id.String())
	dep, err := scanDependency(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "dependency", ID: id}
	}
	return dep, err
}

func (s *PostgresStore) queryDependencies(ctx context.Context, query string, args ...any) ([]TaskDependency, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deps []TaskDependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, err
		}
		deps = append(deps, *d)
	}
	return deps, rows.Err()
}

// FindDependenciesByTask retrieves the edges where the given task is the dependent
func (s *PostgresStore) FindDependenciesByTask(ctx context.Context, taskID uuid.UUID) ([]TaskDependency, error) {
	return s.queryDependencies(ctx,
		`SELECT `+depCols+` FROM task_dependencies WHERE task_id = $1 ORDER BY created_at ASC`, taskID.String())
}

// FindDependenciesByProject retrieves all edges between tasks of a project
func (s *PostgresStore) FindDependenciesByProject(ctx context.Context, projectID uuid.UUID) ([]TaskDependency, error) {
	return s.queryDependencies(ctx,
		`SELECT td.id, td.task_id, td.depends_on_task_id, td.genre_id, td.created_by, td.created_at
		 FROM task_dependencies td
		 JOIN tasks t ON t.id = td.task_id
		 WHERE t.project_id = $1
		 ORDER BY td.created_at ASC`, projectID.String())
}

// FindDependents retrieves the edges pointing at the given task
func (s *PostgresStore) FindDependents(ctx context.Context, dependsOnTaskID uuid.UUID) ([]TaskDependency, error) {
	return s.queryDependencies(ctx,
		`SELECT `+depCols+` FROM task_dependencies WHERE depends_on_task_id = $1 ORDER BY created_at ASC`, dependsOnTaskID.String())
}

// DependencyExists reports whether the exact edge already exists
func (s *PostgresStore) DependencyExists(ctx context.Context, taskID, dependsOnTaskID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM task_dependencies WHERE task_id = $1 AND depends_on_task_id = $2)`,
		taskID.String(), dependsOnTaskID.String()).Scan(&exists)
	return exists, err
}

// WouldCreateCycle reports whether adding the edge task -> dependsOn would
// close a cycle, i.e. whether task is already reachable from dependsOn.
func (s *PostgresStore) WouldCreateCycle(ctx context.Context, taskID, dependsOnTaskID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		WITH RECURSIVE reach(id) AS (
			SELECT depends_on_task_id FROM task_dependencies WHERE task_id = $1
			UNION
			SELECT td.depends_on_task_id FROM task_dependencies td JOIN reach r ON td.task_id = r.id
		)
		SELECT EXISTS(SELECT 1 FROM reach WHERE id = $2)`,
		dependsOnTaskID.String(), taskID.String()).Scan(&exists)
	return exists, err
}

// CreateDependency validates and inserts a dependency edge
func (s *PostgresStore) CreateDependency(ctx context.Context, data CreateDependency) (*TaskDependency, error) {
	if data.TaskID == data.DependsOnTaskID {
		return nil, ErrSelfDependency
	}
	task, err := s.FindTask(ctx, data.TaskID)
	if err != nil {
		return nil, err
	}
	dependsOn, err := s.FindTask(ctx, data.DependsOnTaskID)
	if err != nil {
		return nil, err
	}
	if task.ProjectID != dependsOn.ProjectID {
		return nil, ErrCrossProjectEdge
	}
	exists, err := s.DependencyExists(ctx, data.TaskID, data.DependsOnTaskID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateEdge
	}
	cycle, err := s.WouldCreateCycle(ctx, data.TaskID, data.DependsOnTaskID)
	if err != nil {
		return nil, err
	}
	if cycle {
		return nil, ErrCycleDetected
	}

	createdBy := data.CreatedBy
	if createdBy == "" {
		createdBy = CreatorUser
	}
	id := uuid.New()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO task_dependencies (id, task_id, depends_on_task_id, genre_id, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id.String(), data.TaskID.String(), data.DependsOnTaskID.String(),
		nullUUID(data.GenreID), string(createdBy), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create dependency: %w", err)
	}
	return s.FindDependency(ctx, id)
}

// UpdateDependency applies a genre change to an edge
func (s *PostgresStore) UpdateDependency(ctx context.Context, id uuid.UUID, genre GenreChange) (*TaskDependency, error) {
	current, err := s.FindDependency(ctx, id)
	if err != nil {
		return nil, err
	}
	current.GenreID = genre.Apply(current.GenreID)
	_, err = s.db.ExecContext(ctx,
		`UPDATE task_dependencies SET genre_id = $1 WHERE id = $2`,
		nullUUID(current.GenreID), id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to update dependency: %w", err)
	}
	return current, nil
}

// DeleteDependency removes an edge by ID
func (s *PostgresStore) DeleteDependency(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM task_dependencies WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete dependency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "dependency", ID: id}
	}
	return nil
}

// DeleteDependenciesByTask removes every edge touching the given task
func (s *PostgresStore) DeleteDependenciesByTask(ctx context.Context, taskID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM task_dependencies WHERE task_id = $1 OR depends_on_task_id = $1`,
		taskID.String())
	return err
}

// DeleteDependencyBetween removes the edge between two specific tasks
func (s *PostgresStore) DeleteDependencyBetween(ctx context.Context, taskID, dependsOnTaskID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM task_dependencies WHERE task_id = $1 AND depends_on_task_id = $2`,
		taskID.String(), dependsOnTaskID.String())
	if err != nil {
		return fmt.Errorf("failed to delete dependency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dependency %s -> %s: %w", taskID, dependsOnTaskID, ErrNotFound)
	}
	return nil
}

// FindGenre retrieves a genre by ID
func (s *PostgresStore) FindGenre(ctx context.Context, id uuid.UUID) (*DependencyGenre, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+genreCols+` FROM dependency_genres WHERE id = $1`, id.String())
	g, err := scanGenre(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "genre", ID: id}
	}
	return g, err
}

// FindGenreByName retrieves a genre by project and name
func (s *PostgresStore) FindGenreByName(ctx context.Context, projectID uuid.UUID, name string) (*DependencyGenre, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+genreCols+` FROM dependency_genres WHERE project_id = $1 AND name = $2`,
		projectID.String(), name)
	g, err := scanGenre(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("genre %q in project %s: %w", name, projectID, ErrNotFound)
	}
	return g, err
}

// FindGenresByProject retrieves a project's genres ordered by position
func (s *PostgresStore) FindGenresByProject(ctx context.Context, projectID uuid.UUID) ([]DependencyGenre, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+genreCols+` FROM dependency_genres WHERE project_id = $1 ORDER BY position ASC, created_at ASC`,
		projectID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var genres []DependencyGenre
	for rows.Next() {
		g, err := scanGenre(rows)
		if err != nil {
			return nil, err
		}
		genres = append(genres, *g)
	}
	return genres, rows.Err()
}

// CreateGenre inserts a genre; color defaults to the gray fallback and
// position to max+1 within the project
func (s *PostgresStore) CreateGenre(ctx context.Context, data CreateGenre) (*DependencyGenre, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM dependency_genres WHERE project_id = $1 AND name = $2)`,
		data.ProjectID.String(), data.Name).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateGenreName
	}

	color := DefaultGenreColor
	if data.Color != nil {
		color = *data.Color
	}
	var position int32
	if data.Position != nil {
		position = *data.Position
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM dependency_genres WHERE project_id = $1`,
			data.ProjectID.String()).Scan(&position)
		if err != nil {
			return nil, err
		}
	}

	id := uuid.New()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dependency_genres (id, project_id, name, color, position, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id.String(), data.ProjectID.String(), data.Name, color, position, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create genre: %w", err)
	}
	return s.FindGenre(ctx, id)
}

// UpdateGenre applies a partial update; nil fields keep their current value
func (s *PostgresStore) UpdateGenre(ctx context.Context, id uuid.UUID, data UpdateGenre) (*DependencyGenre, error) {
	current, err := s.FindGenre(ctx, id)
	if err != nil {
		return nil, err
	}
	if data.Name != nil && *data.Name != current.Name {
		var exists bool
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM dependency_genres WHERE project_id = $1 AND name = $2 AND id != $3)`,
			current.ProjectID.String(), *data.Name, id.String()).Scan(&exists)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrDuplicateGenreName
		}
		current.Name = *data.Name
	}
	if data.Color != nil {
		current.Color = *data.Color
	}
	if data.Position != nil {
		current.Position = *data.Position
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE dependency_genres SET name = $1, color = $2, position = $3, updated_at = $4 WHERE id = $5`,
		current.Name, current.Color, current.Position, now, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to update genre: %w", err)
	}
	current.UpdatedAt = now
	return current, nil
}

// ReorderGenres assigns dense positions 0..n-1 in the given order, within
// one transaction. All genres must belong to the same project.
func (s *PostgresStore) ReorderGenres(ctx context.Context, genreIDs []uuid.UUID) ([]DependencyGenre, error) {
	if len(genreIDs) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var projectID uuid.UUID
	now := time.Now().UTC()
	for i, id := range genreIDs {
		row := tx.QueryRowContext(ctx, `SELECT `+genreCols+` FROM dependency_genres WHERE id = $1`, id.String())
		g, err := scanGenre(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "genre", ID: id}
		}
		if err != nil {
			return nil, err
		}
		if i == 0 {
			projectID = g.ProjectID
		} else if g.ProjectID != projectID {
			return nil, fmt.Errorf("genre %s belongs to a different project", id)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE dependency_genres SET position = $1, updated_at = $2 WHERE id = $3`,
			int32(i), now, id.String())
		if err != nil {
			return nil, fmt.Errorf("failed to reorder genre %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.FindGenresByProject(ctx, projectID)
}

// DeleteGenre removes a genre and clears it from any edges that carried it
func (s *PostgresStore) DeleteGenre(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE task_dependencies SET genre_id = NULL WHERE genre_id = $1`, id.String()); err != nil {
		return fmt.Errorf("failed to clear genre from dependencies: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM dependency_genres WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete genre: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "genre", ID: id}
	}
	return tx.Commit()
}

// FindLink retrieves a project link by ID
func (s *PostgresStore) FindLink(ctx context.Context, id uuid.UUID) (*GitHubProjectLink, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+linkCols+` FROM github_project_links WHERE id = $1`, id.String())
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "github project link", ID: id}
	}
	return l, err
}

func (s *PostgresStore) queryLinks(ctx context.Context, query string, args ...any) ([]GitHubProjectLink, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []GitHubProjectLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *l)
	}
	return links, rows.Err()
}

// FindLinksByProject retrieves the links attached to a project
func (s *PostgresStore) FindLinksByProject(ctx context.Context, projectID uuid.UUID) ([]GitHubProjectLink, error) {
	return s.queryLinks(ctx,
		`SELECT `+linkCols+` FROM github_project_links WHERE project_id = $1 ORDER BY created_at ASC`, projectID.String())
}

// FindEnabledLinks retrieves sync-enabled links, never-synced first, then
// stalest first
func (s *PostgresStore) FindEnabledLinks(ctx context.Context) ([]GitHubProjectLink, error) {
	return s.queryLinks(ctx,
		`SELECT `+linkCols+` FROM github_project_links WHERE sync_enabled ORDER BY last_sync_at ASC NULLS FIRST`)
}

// CreateLink inserts a project link with sync enabled
func (s *PostgresStore) CreateLink(ctx context.Context, data CreateGitHubProjectLink) (*GitHubProjectLink, error) {
	id := uuid.New()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO github_project_links (id, project_id, github_project_id, owner, repo, number, sync_enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8)`,
		id.String(), data.ProjectID.String(), data.GitHubProjectID, data.Owner,
		nullStr(data.Repo), nullInt64(data.Number), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create github project link: %w", err)
	}
	return s.FindLink(ctx, id)
}

// SetLinkSyncEnabled toggles synchronization for a link
func (s *PostgresStore) SetLinkSyncEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*GitHubProjectLink, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE github_project_links SET sync_enabled = $1, updated_at = $2 WHERE id = $3`,
		enabled, time.Now().UTC(), id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to toggle link sync: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &NotFoundError{Entity: "github project link", ID: id}
	}
	return s.FindLink(ctx, id)
}

// UpdateLinkLastSync stamps the link with the current time
func (s *PostgresStore) UpdateLinkLastSync(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE github_project_links SET last_sync_at = $1, updated_at = $2 WHERE id = $3`,
		now, now, id.String())
	if err != nil {
		return fmt.Errorf("failed to update link sync time: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "github project link", ID: id}
	}
	return nil
}

// DeleteLink removes a project link and its issue mappings
func (s *PostgresStore) DeleteLink(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM github_issue_mappings WHERE github_project_link_id = $1`, id.String()); err != nil {
		return fmt.Errorf("failed to delete issue mappings: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM github_project_links WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete github project link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "github project link", ID: id}
	}
	return tx.Commit()
}

// FindMappingByIssue retrieves the mapping for a (link, issue number) pair
func (s *PostgresStore) FindMappingByIssue(ctx context.Context, linkID uuid.UUID, issueNumber int64) (*GitHubIssueMapping, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mappingCols+` FROM github_issue_mappings WHERE github_project_link_id = $1 AND github_issue_number = $2`,
		linkID.String(), issueNumber)
	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mapping for issue #%d on link %s: %w", issueNumber, linkID, ErrNotFound)
	}
	return m, err
}

// FindMappingByTask retrieves the mapping for a task, if any
func (s *PostgresStore) FindMappingByTask(ctx context.Context, taskID uuid.UUID) (*GitHubIssueMapping, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mappingCols+` FROM github_issue_mappings WHERE task_id = $1`, taskID.String())
	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mapping for task %s: %w", taskID, ErrNotFound)
	}
	return m, err
}

// FindMappingsByLink retrieves every mapping attached to a link
func (s *PostgresStore) FindMappingsByLink(ctx context.Context, linkID uuid.UUID) ([]GitHubIssueMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mappingCols+` FROM github_issue_mappings WHERE github_project_link_id = $1 ORDER BY github_issue_number ASC`,
		linkID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []GitHubIssueMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *m)
	}
	return mappings, rows.Err()
}

// CreateMapping inserts a task/issue mapping
func (s *PostgresStore) CreateMapping(ctx context.Context, data CreateGitHubIssueMapping) (*GitHubIssueMapping, error) {
	direction := data.SyncDirection
	if direction == "" {
		direction = SyncBidirectional
	}
	id := uuid.New()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO github_issue_mappings (id, task_id, github_project_link_id, github_issue_number, github_issue_id, github_issue_url, sync_direction, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id.String(), data.TaskID.String(), data.LinkID.String(), data.IssueNumber,
		data.IssueID, data.IssueURL, string(direction), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue mapping: %w", err)
	}
	return s.findMapping(ctx, id)
}

func (s *PostgresStore) findMapping(ctx context.Context, id uuid.UUID) (*GitHubIssueMapping, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mappingCols+` FROM github_issue_mappings WHERE id = $1`, id.String())
	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "issue mapping", ID: id}
	}
	return m, err
}

// UpdateMappingSyncTimestamps records a completed sync pass on a mapping
func (s *PostgresStore) UpdateMappingSyncTimestamps(ctx context.Context, id uuid.UUID, githubUpdatedAt, vibeUpdatedAt *time.Time) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE github_issue_mappings SET last_synced_at = $1, github_updated_at = COALESCE($2, github_updated_at), vibe_updated_at = COALESCE($3, vibe_updated_at), updated_at = $4 WHERE id = $5`,
		now, nullTime(githubUpdatedAt), nullTime(vibeUpdatedAt), now, id.String())
	if err != nil {
		return fmt.Errorf("failed to update mapping sync timestamps: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "issue mapping", ID: id}
	}
	return nil
}

// UpsertProperty inserts or updates a task property keyed on (task, name)
func (s *PostgresStore) UpsertProperty(ctx context.Context, data UpsertTaskProperty) (*TaskProperty, error) {
	source := data.Source
	if source == "" {
		source = SourceVibe
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_properties (id, task_id, name, value, source, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (task_id, name) DO UPDATE SET value = EXCLUDED.value, source = EXCLUDED.source, updated_at = EXCLUDED.updated_at`,
		uuid.New().String(), data.TaskID.String(), data.Name, data.Value, string(source), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert task property: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+propCols+` FROM task_properties WHERE task_id = $1 AND name = $2`,
		data.TaskID.String(), data.Name)
	return scanProperty(row)
}

// FindPropertiesByTask retrieves every property attached to a task
func (s *PostgresStore) FindPropertiesByTask(ctx context.Context, taskID uuid.UUID) ([]TaskProperty, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+propCols+` FROM task_properties WHERE task_id = $1 ORDER BY name ASC`, taskID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var props []TaskProperty
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		props = append(props, *p)
	}
	return props, rows.Err()
}
