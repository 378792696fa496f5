package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store and applies migrations
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Single writer at a time; concurrent writers otherwise hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'todo',
		parent_workspace_id TEXT,
		shared_task_id TEXT,
		position INTEGER,
		dag_position_x REAL,
		dag_position_y REAL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);

	CREATE TABLE IF NOT EXISTS task_dependencies (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		depends_on_task_id TEXT NOT NULL,
		genre_id TEXT,
		created_by TEXT NOT NULL DEFAULT 'user',
		created_at DATETIME NOT NULL,
		UNIQUE(task_id, depends_on_task_id)
	);
	CREATE INDEX IF NOT EXISTS idx_deps_task ON task_dependencies(task_id);
	CREATE INDEX IF NOT EXISTS idx_deps_depends_on ON task_dependencies(depends_on_task_id);

	CREATE TABLE IF NOT EXISTS dependency_genres (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		color TEXT NOT NULL,
		position INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(project_id, name)
	);

	CREATE TABLE IF NOT EXISTS github_project_links (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		github_project_id TEXT NOT NULL,
		owner TEXT NOT NULL,
		repo TEXT,
		number INTEGER,
		sync_enabled INTEGER NOT NULL DEFAULT 1,
		last_sync_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS github_issue_mappings (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL UNIQUE,
		github_project_link_id TEXT NOT NULL,
		github_issue_number INTEGER NOT NULL,
		github_issue_id TEXT NOT NULL,
		github_issue_url TEXT NOT NULL,
		sync_direction TEXT NOT NULL DEFAULT 'bidirectional',
		last_synced_at DATETIME,
		github_updated_at DATETIME,
		vibe_updated_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(github_project_link_id, github_issue_number)
	);

	CREATE TABLE IF NOT EXISTS task_properties (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'vibe',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(task_id, name)
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullUUID(u *uuid.UUID) any {
	if u == nil {
		return nil
	}
	return u.String()
}

func nullInt64(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func parseNullUUID(ns sql.NullString) (*uuid.UUID, error) {
	if !ns.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

const taskCols = `id, project_id, title, description, status, parent_workspace_id, shared_task_id, position, dag_position_x, dag_position_y, created_at, updated_at`

func scanTask(row rowScanner) (*Task, error) {
	var (
		t          Task
		id, pid    string
		desc       sql.NullString
		parent     sql.NullString
		shared     sql.NullString
		pos        sql.NullInt32
		dagX, dagY sql.NullFloat64
	)
	err := row.Scan(&id, &pid, &t.Title, &desc, &t.Status, &parent, &shared, &pos, &dagX, &dagY, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if t.ProjectID, err = uuid.Parse(pid); err != nil {
		return nil, err
	}
	if desc.Valid {
		t.Description = &desc.String
	}
	if t.ParentWorkspaceID, err = parseNullUUID(parent); err != nil {
		return nil, err
	}
	if t.SharedTaskID, err = parseNullUUID(shared); err != nil {
		return nil, err
	}
	if pos.Valid {
		t.Position = &pos.Int32
	}
	if dagX.Valid {
		t.DagPositionX = &dagX.Float64
	}
	if dagY.Valid {
		t.DagPositionY = &dagY.Float64
	}
	return &t, nil
}

// FindTask retrieves a task by ID
func (s *SQLiteStore) FindTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ?`, id.String())
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "task", ID: id}
	}
	return task, err
}

// FindTasksByProject retrieves all tasks in a project ordered by creation time
func (s *SQLiteStore) FindTasksByProject(ctx context.Context, projectID uuid.UUID) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE project_id = ? ORDER BY created_at ASC, id ASC`, projectID.String())
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
func (s *SQLiteStore) CreateTask(ctx context.Context, data CreateTask) (*Task, error) {
	status := data.Status
	if status == "" {
		status = StatusTodo
	}
	id := uuid.New()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, project_id, title, description, status, parent_workspace_id, shared_task_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), data.ProjectID.String(), data.Title, nullStr(data.Description), string(status),
		nullUUID(data.ParentWorkspaceID), nullUUID(data.SharedTaskID), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return s.FindTask(ctx, id)
}

// UpdateTask applies a partial update; nil fields keep their current value
func (s *SQLiteStore) UpdateTask(ctx context.Context, id uuid.UUID, data UpdateTask) (*Task, error) {
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
		`UPDATE tasks SET title = ?, description = ?, status = ?, parent_workspace_id = ?, updated_at = ? WHERE id = ?`,
		current.Title, nullStr(current.Description), string(current.Status), nullUUID(current.ParentWorkspaceID), now, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	current.UpdatedAt = now
	return current, nil
}

// UpdateTaskPosition sets the list position of a task
func (s *SQLiteStore) UpdateTaskPosition(ctx context.Context, id uuid.UUID, position int32) (*Task, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET position = ?, updated_at = ? WHERE id = ?`,
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
func (s *SQLiteStore) UpdateTaskDAGPosition(ctx context.Context, id uuid.UUID, x, y float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET dag_position_x = ?, dag_position_y = ?, updated_at = ? WHERE id = ?`,
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
func (s *SQLiteStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "task", ID: id}
	}
	return nil
}

const depCols = `id, task_id, depends_on_task_id, genre_id, created_by, created_at`

func scanDependency(row rowScanner) (*TaskDependency, error) {
	var (
		d            TaskDependency
		id, tid, did string
		genre        sql.NullString
	)
	err := row.Scan(&id, &tid, &did, &genre, &d.CreatedBy, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	if d.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if d.TaskID, err = uuid.Parse(tid); err != nil {
		return nil, err
	}
	if d.DependsOnTaskID, err = uuid.Parse(did); err != nil {
		return nil, err
	}
	if d.GenreID, err = parseNullUUID(genre); err != nil {
		return nil, err
	}
	return &d, nil
}

// FindDependency retrieves a dependency edge by ID
func (s *SQLiteStore) FindDependency(ctx context.Context, id uuid.UUID) (*TaskDependency, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+depCols+` FROM task_dependencies WHERE id = ?`, id.String())
	dep, err := scanDependency(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "dependency", ID: id}
	}
	return dep, err
}

func (s *SQLiteStore) queryDependencies(ctx context.Context, query string, args ...any) ([]TaskDependency, error) {
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
func (s *SQLiteStore) FindDependenciesByTask(ctx context.Context, taskID uuid.UUID) ([]TaskDependency, error) {
	return s.queryDependencies(ctx,
		`SELECT `+depCols+` FROM task_dependencies WHERE task_id = ? ORDER BY created_at ASC`, taskID.String())
}

// FindDependenciesByProject retrieves all edges between tasks of a project
func (s *SQLiteStore) FindDependenciesByProject(ctx context.Context, projectID uuid.UUID) ([]TaskDependency, error) {
	return s.queryDependencies(ctx,
		`SELECT td.id, td.task_id, td.depends_on_task_id, td.genre_id, td.created_by, td.created_at
		 FROM task_dependencies td
		 JOIN tasks t ON t.id = td.task_id
		 WHERE t.project_id = ?
		 ORDER BY td.created_at ASC`, projectID.String())
}

// FindDependents retrieves the edges pointing at the given task
func (s *SQLiteStore) FindDependents(ctx context.Context, dependsOnTaskID uuid.UUID) ([]TaskDependency, error) {
	return s.queryDependencies(ctx,
		`SELECT `+depCols+` FROM task_dependencies WHERE depends_on_task_id = ? ORDER BY created_at ASC`, dependsOnTaskID.String())
}

// DependencyExists reports whether the exact edge already exists
func (s *SQLiteStore) DependencyExists(ctx context.Context, taskID, dependsOnTaskID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM task_dependencies WHERE task_id = ? AND depends_on_task_id = ?)`,
		taskID.String(), dependsOnTaskID.String()).Scan(&exists)
	return exists, err
}

// WouldCreateCycle reports whether adding the edge task -> dependsOn would
// close a cycle, i.e. whether task is already reachable from dependsOn.
func (s *SQLiteStore) WouldCreateCycle(ctx context.Context, taskID, dependsOnTaskID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		WITH RECURSIVE reach(id) AS (
			SELECT depends_on_task_id FROM task_dependencies WHERE task_id = ?
			UNION
			SELECT td.depends_on_task_id FROM task_dependencies td JOIN reach r ON td.task_id = r.id
		)
		SELECT EXISTS(SELECT 1 FROM reach WHERE id = ?)`,
		dependsOnTaskID.String(), taskID.String()).Scan(&exists)
	return exists, err
}

// CreateDependency validates and inserts a dependency edge
func (s *SQLiteStore) CreateDependency(ctx context.Context, data CreateDependency) (*TaskDependency, error) {
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
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), data.TaskID.String(), data.DependsOnTaskID.String(),
		nullUUID(data.GenreID), string(createdBy), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create dependency: %w", err)
	}
	return s.FindDependency(ctx, id)
}

// UpdateDependency applies a genre change to an edge
func (s *SQLiteStore) UpdateDependency(ctx context.Context, id uuid.UUID, genre GenreChange) (*TaskDependency, error) {
	current, err := s.FindDependency(ctx, id)
	if err != nil {
		return nil, err
	}
	current.GenreID = genre.Apply(current.GenreID)
	_, err = s.db.ExecContext(ctx,
		`UPDATE task_dependencies SET genre_id = ? WHERE id = ?`,
		nullUUID(current.GenreID), id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to update dependency: %w", err)
	}
	return current, nil
}

// DeleteDependency removes an edge by ID
func (s *SQLiteStore) DeleteDependency(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM task_dependencies WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete dependency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "dependency", ID: id}
	}
	return nil
}

// DeleteDependenciesByTask removes every edge touching the given task
func (s *SQLiteStore) DeleteDependenciesByTask(ctx context.Context, taskID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM task_dependencies WHERE task_id = ? OR depends_on_task_id = ?`,
		taskID.String(), taskID.String())
	return err
}

// DeleteDependencyBetween removes the edge between two specific tasks
func (s *SQLiteStore) DeleteDependencyBetween(ctx context.Context, taskID, dependsOnTaskID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM task_dependencies WHERE task_id = ? AND depends_on_task_id = ?`,
		taskID.String(), dependsOnTaskID.String())
	if err != nil {
		return fmt.Errorf("failed to delete dependency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dependency %s -> %s: %w", taskID, dependsOnTaskID, ErrNotFound)
	}
	return nil
}

const genreCols = `id, project_id, name, color, position, created_at, updated_at`

func scanGenre(row rowScanner) (*DependencyGenre, error) {
	var (
		g       DependencyGenre
		id, pid string
	)
	err := row.Scan(&id, &pid, &g.Name, &g.Color, &g.Position, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if g.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if g.ProjectID, err = uuid.Parse(pid); err != nil {
		return nil, err
	}
	return &g, nil
}

// FindGenre retrieves a genre by ID
func (s *SQLiteStore) FindGenre(ctx context.Context, id uuid.UUID) (*DependencyGenre, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+genreCols+` FROM dependency_genres WHERE id = ?`, id.String())
	g, err := scanGenre(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "genre", ID: id}
	}
	return g, err
}

// FindGenreByName retrieves a genre by project and name
func (s *SQLiteStore) FindGenreByName(ctx context.Context, projectID uuid.UUID, name string) (*DependencyGenre, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+genreCols+` FROM dependency_genres WHERE project_id = ? AND name = ?`,
		projectID.String(), name)
	g, err := scanGenre(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("genre %q in project %s: %w", name, projectID, ErrNotFound)
	}
	return g, err
}

// FindGenresByProject retrieves a project's genres ordered by position
func (s *SQLiteStore) FindGenresByProject(ctx context.Context, projectID uuid.UUID) ([]DependencyGenre, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+genreCols+` FROM dependency_genres WHERE project_id = ? ORDER BY position ASC, created_at ASC`,
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
func (s *SQLiteStore) CreateGenre(ctx context.Context, data CreateGenre) (*DependencyGenre, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM dependency_genres WHERE project_id = ? AND name = ?)`,
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
			`SELECT COALESCE(MAX(position) + 1, 0) FROM dependency_genres WHERE project_id = ?`,
			data.ProjectID.String()).Scan(&position)
		if err != nil {
			return nil, err
		}
	}

	id := uuid.New()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dependency_genres (id, project_id, name, color, position, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), data.ProjectID.String(), data.Name, color, position, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create genre: %w", err)
	}
	return s.FindGenre(ctx, id)
}

// UpdateGenre applies a partial update; nil fields keep their current value
func (s *SQLiteStore) UpdateGenre(ctx context.Context, id uuid.UUID, data UpdateGenre) (*DependencyGenre, error) {
	current, err := s.FindGenre(ctx, id)
	if err != nil {
		return nil, err
	}
	if data.Name != nil && *data.Name != current.Name {
		var exists bool
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM dependency_genres WHERE project_id = ? AND name = ? AND id != ?)`,
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
		`UPDATE dependency_genres SET name = ?, color = ?, position = ?, updated_at = ? WHERE id = ?`,
		current.Name, current.Color, current.Position, now, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to update genre: %w", err)
	}
	current.UpdatedAt = now
	return current, nil
}

// ReorderGenres assigns dense positions 0..n-1 in the given order, within
// one transaction. All genres must belong to the same project.
func (s *SQLiteStore) ReorderGenres(ctx context.Context, genreIDs []uuid.UUID) ([]DependencyGenre, error) {
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
		row := tx.QueryRowContext(ctx, `SELECT `+genreCols+` FROM dependency_genres WHERE id = ?`, id.String())
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
			`UPDATE dependency_genres SET position = ?, updated_at = ? WHERE id = ?`,
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
func (s *SQLiteStore) DeleteGenre(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE task_dependencies SET genre_id = NULL WHERE genre_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to clear genre from dependencies: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM dependency_genres WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete genre: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "genre", ID: id}
	}
	return tx.Commit()
}

const linkCols = `id, project_id, github_project_id, owner, repo, number, sync_enabled, last_sync_at, created_at, updated_at`

func scanLink(row rowScanner) (*GitHubProjectLink, error) {
	var (
		l        GitHubProjectLink
		id, pid  string
		repo     sql.NullString
		number   sql.NullInt64
		lastSync sql.NullTime
	)
	err := row.Scan(&id, &pid, &l.GitHubProjectID, &l.Owner, &repo, &number, &l.SyncEnabled, &lastSync, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if l.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if l.ProjectID, err = uuid.Parse(pid); err != nil {
		return nil, err
	}
	if repo.Valid {
		l.Repo = &repo.String
	}
	if number.Valid {
		l.Number = &number.Int64
	}
	if lastSync.Valid {
		l.LastSyncAt = &lastSync.Time
	}
	return &l, nil
}

// FindLink retrieves a project link by ID
func (s *SQLiteStore) FindLink(ctx context.Context, id uuid.UUID) (*GitHubProjectLink, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+linkCols+` FROM github_project_links WHERE id = ?`, id.String())
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "github project link", ID: id}
	}
	return l, err
}

func (s *SQLiteStore) queryLinks(ctx context.Context, query string, args ...any) ([]GitHubProjectLink, error) {
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
func (s *SQLiteStore) FindLinksByProject(ctx context.Context, projectID uuid.UUID) ([]GitHubProjectLink, error) {
	return s.queryLinks(ctx,
		`SELECT `+linkCols+` FROM github_project_links WHERE project_id = ? ORDER BY created_at ASC`, projectID.String())
}

// FindEnabledLinks retrieves sync-enabled links, never-synced first, then
// stalest first
func (s *SQLiteStore) FindEnabledLinks(ctx context.Context) ([]GitHubProjectLink, error) {
	return s.queryLinks(ctx,
		`SELECT `+linkCols+` FROM github_project_links WHERE sync_enabled = 1 ORDER BY last_sync_at ASC NULLS FIRST`)
}

// CreateLink inserts a project link with sync enabled
func (s *SQLiteStore) CreateLink(ctx context.Context, data CreateGitHubProjectLink) (*GitHubProjectLink, error) {
	id := uuid.New()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO github_project_links (id, project_id, github_project_id, owner, repo, number, sync_enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		id.String(), data.ProjectID.String(), data.GitHubProjectID, data.Owner,
		nullStr(data.Repo), nullInt64(data.Number), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create github project link: %w", err)
	}
	return s.FindLink(ctx, id)
}

// SetLinkSyncEnabled toggles synchronization for a link
func (s *SQLiteStore) SetLinkSyncEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*GitHubProjectLink, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE github_project_links SET sync_enabled = ?, updated_at = ? WHERE id = ?`,
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
func (s *SQLiteStore) UpdateLinkLastSync(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE github_project_links SET last_sync_at = ?, updated_at = ? WHERE id = ?`,
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
func (s *SQLiteStore) DeleteLink(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM github_issue_mappings WHERE github_project_link_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete issue mappings: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM github_project_links WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete github project link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "github project link", ID: id}
	}
	return tx.Commit()
}

const mappingCols = `id, task_id, github_project_link_id, github_issue_number, github_issue_id, github_issue_url, sync_direction, last_synced_at, github_updated_at, vibe_updated_at, created_at, updated_at`

func scanMapping(row rowScanner) (*GitHubIssueMapping, error) {
	var (
		m                    GitHubIssueMapping
		id, tid, lid         string
		lastSynced, ghAt, vAt sql.NullTime
	)
	err := row.Scan(&id, &tid, &lid, &m.IssueNumber, &m.IssueID, &m.IssueURL, &m.SyncDirection, &lastSynced, &ghAt, &vAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if m.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if m.TaskID, err = uuid.Parse(tid); err != nil {
		return nil, err
	}
	if m.LinkID, err = uuid.Parse(lid); err != nil {
		return nil, err
	}
	if lastSynced.Valid {
		m.LastSyncedAt = &lastSynced.Time
	}
	if ghAt.Valid {
		m.GitHubUpdatedAt = &ghAt.Time
	}
	if vAt.Valid {
		m.VibeUpdatedAt = &vAt.Time
	}
	return &m, nil
}

// FindMappingByIssue retrieves the mapping for a (link, issue number) pair
func (s *SQLiteStore) FindMappingByIssue(ctx context.Context, linkID uuid.UUID, issueNumber int64) (*GitHubIssueMapping, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mappingCols+` FROM github_issue_mappings WHERE github_project_link_id = ? AND github_issue_number = ?`,
		linkID.String(), issueNumber)
	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mapping for issue #%d on link %s: %w", issueNumber, linkID, ErrNotFound)
	}
	return m, err
}

// FindMappingByTask retrieves the mapping for a task, if any
func (s *SQLiteStore) FindMappingByTask(ctx context.Context, taskID uuid.UUID) (*GitHubIssueMapping, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mappingCols+` FROM github_issue_mappings WHERE task_id = ?`, taskID.String())
	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mapping for task %s: %w", taskID, ErrNotFound)
	}
	return m, err
}

// FindMappingsByLink retrieves every mapping attached to a link
func (s *SQLiteStore) FindMappingsByLink(ctx context.Context, linkID uuid.UUID) ([]GitHubIssueMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mappingCols+` FROM github_issue_mappings WHERE github_project_link_id = ? ORDER BY github_issue_number ASC`,
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
func (s *SQLiteStore) CreateMapping(ctx context.Context, data CreateGitHubIssueMapping) (*GitHubIssueMapping, error) {
	direction := data.SyncDirection
	if direction == "" {
		direction = SyncBidirectional
	}
	id := uuid.New()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO github_issue_mappings (id, task_id, github_project_link_id, github_issue_number, github_issue_id, github_issue_url, sync_direction, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), data.TaskID.String(), data.LinkID.String(), data.IssueNumber,
		data.IssueID, data.IssueURL, string(direction), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue mapping: %w", err)
	}
	return s.findMapping(ctx, id)
}

func (s *SQLiteStore) findMapping(ctx context.Context, id uuid.UUID) (*GitHubIssueMapping, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mappingCols+` FROM github_issue_mappings WHERE id = ?`, id.String())
	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "issue mapping", ID: id}
	}
	return m, err
}

// UpdateMappingSyncTimestamps records a completed sync pass on a mapping
func (s *SQLiteStore) UpdateMappingSyncTimestamps(ctx context.Context, id uuid.UUID, githubUpdatedAt, vibeUpdatedAt *time.Time) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE github_issue_mappings SET last_synced_at = ?, github_updated_at = COALESCE(?, github_updated_at), vibe_updated_at = COALESCE(?, vibe_updated_at), updated_at = ? WHERE id = ?`,
		now, nullTime(githubUpdatedAt), nullTime(vibeUpdatedAt), now, id.String())
	if err != nil {
		return fmt.Errorf("failed to update mapping sync timestamps: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Entity: "issue mapping", ID: id}
	}
	return nil
}

const propCols = `id, task_id, name, value, source, created_at, updated_at`

func scanProperty(row rowScanner) (*TaskProperty, error) {
	var (
		p       TaskProperty
		id, tid string
	)
	err := row.Scan(&id, &tid, &p.Name, &p.Value, &p.Source, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if p.TaskID, err = uuid.Parse(tid); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProperty inserts or updates a task property keyed on (task, name)
func (s *SQLiteStore) UpsertProperty(ctx context.Context, data UpsertTaskProperty) (*TaskProperty, error) {
	source := data.Source
	if source == "" {
		source = SourceVibe
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_properties (id, task_id, name, value, source, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(task_id, name) DO UPDATE SET value = excluded.value, source = excluded.source, updated_at = excluded.updated_at`,
		uuid.New().String(), data.TaskID.String(), data.Name, data.Value, string(source), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert task property: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+propCols+` FROM task_properties WHERE task_id = ? AND name = ?`,
		data.TaskID.String(), data.Name)
	return scanProperty(row)
}

// FindPropertiesByTask retrieves every property attached to a task
func (s *SQLiteStore) FindPropertiesByTask(ctx context.Context, taskID uuid.UUID) ([]TaskProperty, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+propCols+` FROM task_properties WHERE task_id = ? ORDER BY name ASC`, taskID.String())
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
