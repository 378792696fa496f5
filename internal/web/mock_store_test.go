package web

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vibeboard/internal/db"
)

// mockStore is an in-memory db.Store used by the handler tests.
type mockStore struct {
	mu       sync.Mutex
	tasks    map[uuid.UUID]*db.Task
	deps     map[uuid.UUID]*db.TaskDependency
	genres   map[uuid.UUID]*db.DependencyGenre
	links    map[uuid.UUID]*db.GitHubProjectLink
	mappings map[uuid.UUID]*db.GitHubIssueMapping
	props    map[uuid.UUID]*db.TaskProperty

	seq int // created_at tie-breaker
}

func newMockStore() *mockStore {
	return &mockStore{
		tasks:    make(map[uuid.UUID]*db.Task),
		deps:     make(map[uuid.UUID]*db.TaskDependency),
		genres:   make(map[uuid.UUID]*db.DependencyGenre),
		links:    make(map[uuid.UUID]*db.GitHubProjectLink),
		mappings: make(map[uuid.UUID]*db.GitHubIssueMapping),
		props:    make(map[uuid.UUID]*db.TaskProperty),
	}
}

func (m *mockStore) Close() error { return nil }

func (m *mockStore) nextTime() time.Time {
	m.seq++
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Second)
}

// Tasks

func (m *mockStore) FindTask(ctx context.Context, id uuid.UUID) (*db.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, &db.NotFoundError{Entity: "task", ID: id}
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) FindTasksByProject(ctx context.Context, projectID uuid.UUID) ([]db.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.Task
	for _, t := range m.tasks {
		if t.ProjectID == projectID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockStore) CreateTask(ctx context.Context, data db.CreateTask) (*db.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := data.Status
	if status == "" {
		status = db.StatusTodo
	}
	now := m.nextTime()
	t := &db.Task{
		ID:        uuid.New(),
		ProjectID: data.ProjectID,
		Title:     data.Title,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if data.Description != nil {
		d := *data.Description
		t.Description = &d
	}
	m.tasks[t.ID] = t
	cp := *t
	return &cp, nil
}

func (m *mockStore) UpdateTask(ctx context.Context, id uuid.UUID, data db.UpdateTask) (*db.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, &db.NotFoundError{Entity: "task", ID: id}
	}
	if data.Title != nil {
		t.Title = *data.Title
	}
	if data.Description != nil {
		d := *data.Description
		t.Description = &d
	}
	if data.Status != nil {
		t.Status = *data.Status
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) UpdateTaskPosition(ctx context.Context, id uuid.UUID, position int32) (*db.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, &db.NotFoundError{Entity: "task", ID: id}
	}
	p := position
	t.Position = &p
	cp := *t
	return &cp, nil
}

func (m *mockStore) UpdateTaskDAGPosition(ctx context.Context, id uuid.UUID, x, y float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return &db.NotFoundError{Entity: "task", ID: id}
	}
	xv, yv := x, y
	t.DagPositionX = &xv
	t.DagPositionY = &yv
	return nil
}

func (m *mockStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return &db.NotFoundError{Entity: "task", ID: id}
	}
	delete(m.tasks, id)
	return nil
}

// Dependencies

func (m *mockStore) FindDependency(ctx context.Context, id uuid.UUID) (*db.TaskDependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deps[id]
	if !ok {
		return nil, &db.NotFoundError{Entity: "dependency", ID: id}
	}
	cp := *d
	return &cp, nil
}

func (m *mockStore) FindDependenciesByTask(ctx context.Context, taskID uuid.UUID) ([]db.TaskDependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.TaskDependency
	for _, d := range m.deps {
		if d.TaskID == taskID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *mockStore) FindDependenciesByProject(ctx context.Context, projectID uuid.UUID) ([]db.TaskDependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.TaskDependency
	for _, d := range m.deps {
		if t, ok := m.tasks[d.TaskID]; ok && t.ProjectID == projectID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *mockStore) FindDependents(ctx context.Context, dependsOnTaskID uuid.UUID) ([]db.TaskDependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.TaskDependency
	for _, d := range m.deps {
		if d.DependsOnTaskID == dependsOnTaskID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *mockStore) DependencyExists(ctx context.Context, taskID, dependsOnTaskID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dependencyExistsLocked(taskID, dependsOnTaskID), nil
}

func (m *mockStore) dependencyExistsLocked(taskID, dependsOnTaskID uuid.UUID) bool {
	for _, d := range m.deps {
		if d.TaskID == taskID && d.DependsOnTaskID == dependsOnTaskID {
			return true
		}
	}
	return false
}

func (m *mockStore) WouldCreateCycle(ctx context.Context, taskID, dependsOnTaskID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachesLocked(dependsOnTaskID, taskID), nil
}

// reachesLocked reports whether target is reachable from start along
// depends-on edges.
func (m *mockStore) reachesLocked(start, target uuid.UUID) bool {
	seen := map[uuid.UUID]bool{}
	stack := []uuid.UUID{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, d := range m.deps {
			if d.TaskID == cur {
				stack = append(stack, d.DependsOnTaskID)
			}
		}
	}
	return false
}

func (m *mockStore) CreateDependency(ctx context.Context, data db.CreateDependency) (*db.TaskDependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data.TaskID == data.DependsOnTaskID {
		return nil, db.ErrSelfDependency
	}
	task, ok := m.tasks[data.TaskID]
	if !ok {
		return nil, &db.NotFoundError{Entity: "task", ID: data.TaskID}
	}
	dependsOn, ok := m.tasks[data.DependsOnTaskID]
	if !ok {
		return nil, &db.NotFoundError{Entity: "task", ID: data.DependsOnTaskID}
	}
	if task.ProjectID != dependsOn.ProjectID {
		return nil, db.ErrCrossProjectEdge
	}
	if m.dependencyExistsLocked(data.TaskID, data.DependsOnTaskID) {
		return nil, db.ErrDuplicateEdge
	}
	if m.reachesLocked(data.DependsOnTaskID, data.TaskID) {
		return nil, db.ErrCycleDetected
	}
	createdBy := data.CreatedBy
	if createdBy == "" {
		createdBy = db.CreatorUser
	}
	d := &db.TaskDependency{
		ID:              uuid.New(),
		TaskID:          data.TaskID,
		DependsOnTaskID: data.DependsOnTaskID,
		GenreID:         data.GenreID,
		CreatedBy:       createdBy,
		CreatedAt:       m.nextTime(),
	}
	m.deps[d.ID] = d
	cp := *d
	return &cp, nil
}

func (m *mockStore) UpdateDependency(ctx context.Context, id uuid.UUID, genre db.GenreChange) (*db.TaskDependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deps[id]
	if !ok {
		return nil, &db.NotFoundError{Entity: "dependency", ID: id}
	}
	d.GenreID = genre.Apply(d.GenreID)
	cp := *d
	return &cp, nil
}

func (m *mockStore) DeleteDependency(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deps[id]; !ok {
		return &db.NotFoundError{Entity: "dependency", ID: id}
	}
	delete(m.deps, id)
	return nil
}

func (m *mockStore) DeleteDependenciesByTask(ctx context.Context, taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.deps {
		if d.TaskID == taskID || d.DependsOnTaskID == taskID {
			delete(m.deps, id)
		}
	}
	return nil
}

func (m *mockStore) DeleteDependencyBetween(ctx context.Context, taskID, dependsOnTaskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.deps {
		if d.TaskID == taskID && d.DependsOnTaskID == dependsOnTaskID {
			delete(m.deps, id)
			return nil
		}
	}
	return db.ErrNotFound
}

// Genres

func (m *mockStore) FindGenre(ctx context.Context, id uuid.UUID) (*db.DependencyGenre, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.genres[id]
	if !ok {
		return nil, &db.NotFoundError{Entity: "genre", ID: id}
	}
	cp := *g
	return &cp, nil
}

func (m *mockStore) FindGenreByName(ctx context.Context, projectID uuid.UUID, name string) (*db.DependencyGenre, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.genres {
		if g.ProjectID == projectID && g.Name == name {
			cp := *g
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockStore) FindGenresByProject(ctx context.Context, projectID uuid.UUID) ([]db.DependencyGenre, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.DependencyGenre
	for _, g := range m.genres {
		if g.ProjectID == projectID {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *mockStore) CreateGenre(ctx context.Context, data db.CreateGenre) (*db.DependencyGenre, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var maxPos int32 = -1
	for _, g := range m.genres {
		if g.ProjectID == data.ProjectID {
			if g.Name == data.Name {
				return nil, db.ErrDuplicateGenreName
			}
			if g.Position > maxPos {
				maxPos = g.Position
			}
		}
	}
	color := db.DefaultGenreColor
	if data.Color != nil {
		color = *data.Color
	}
	position := maxPos + 1
	if data.Position != nil {
		position = *data.Position
	}
	now := m.nextTime()
	g := &db.DependencyGenre{
		ID:        uuid.New(),
		ProjectID: data.ProjectID,
		Name:      data.Name,
		Color:     color,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.genres[g.ID] = g
	cp := *g
	return &cp, nil
}

func (m *mockStore) UpdateGenre(ctx context.Context, id uuid.UUID, data db.UpdateGenre) (*db.DependencyGenre, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.genres[id]
	if !ok {
		return nil, &db.NotFoundError{Entity: "genre", ID: id}
	}
	if data.Name != nil {
		g.Name = *data.Name
	}
	if data.Color != nil {
		g.Color = *data.Color
	}
	if data.Position != nil {
		g.Position = *data.Position
	}
	cp := *g
	return &cp, nil
}

func (m *mockStore) ReorderGenres(ctx context.Context, genreIDs []uuid.UUID) ([]db.DependencyGenre, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.DependencyGenre
	for i, id := range genreIDs {
		g, ok := m.genres[id]
		if !ok {
			return nil, &db.NotFoundError{Entity: "genre", ID: id}
		}
		g.Position = int32(i)
		out = append(out, *g)
	}
	return out, nil
}

func (m *mockStore) DeleteGenre(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.genres[id]; !ok {
		return &db.NotFoundError{Entity: "genre", ID: id}
	}
	delete(m.genres, id)
	for _, d := range m.deps {
		if d.GenreID != nil && *d.GenreID == id {
			d.GenreID = nil
		}
	}
	return nil
}

// GitHub links

func (m *mockStore) FindLink(ctx context.Context, id uuid.UUID) (*db.GitHubProjectLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return nil, &db.NotFoundError{Entity: "github link", ID: id}
	}
	cp := *l
	return &cp, nil
}

func (m *mockStore) FindLinksByProject(ctx context.Context, projectID uuid.UUID) ([]db.GitHubProjectLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.GitHubProjectLink
	for _, l := range m.links {
		if l.ProjectID == projectID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *mockStore) FindEnabledLinks(ctx context.Context) ([]db.GitHubProjectLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.GitHubProjectLink
	for _, l := range m.links {
		if l.SyncEnabled {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *mockStore) CreateLink(ctx context.Context, data db.CreateGitHubProjectLink) (*db.GitHubProjectLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nextTime()
	l := &db.GitHubProjectLink{
		ID:              uuid.New(),
		ProjectID:       data.ProjectID,
		GitHubProjectID: data.GitHubProjectID,
		Owner:           data.Owner,
		Repo:            data.Repo,
		Number:          data.Number,
		SyncEnabled:     true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.links[l.ID] = l
	cp := *l
	return &cp, nil
}

func (m *mockStore) SetLinkSyncEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*db.GitHubProjectLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return nil, &db.NotFoundError{Entity: "github link", ID: id}
	}
	l.SyncEnabled = enabled
	cp := *l
	return &cp, nil
}

func (m *mockStore) UpdateLinkLastSync(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return &db.NotFoundError{Entity: "github link", ID: id}
	}
	now := time.Now().UTC()
	l.LastSyncAt = &now
	return nil
}

func (m *mockStore) DeleteLink(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[id]; !ok {
		return &db.NotFoundError{Entity: "github link", ID: id}
	}
	delete(m.links, id)
	for mid, mp := range m.mappings {
		if mp.LinkID == id {
			delete(m.mappings, mid)
		}
	}
	return nil
}

// Mappings

func (m *mockStore) FindMappingByIssue(ctx context.Context, linkID uuid.UUID, issueNumber int64) (*db.GitHubIssueMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mp := range m.mappings {
		if mp.LinkID == linkID && mp.IssueNumber == issueNumber {
			cp := *mp
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockStore) FindMappingByTask(ctx context.Context, taskID uuid.UUID) (*db.GitHubIssueMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mp := range m.mappings {
		if mp.TaskID == taskID {
			cp := *mp
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockStore) FindMappingsByLink(ctx context.Context, linkID uuid.UUID) ([]db.GitHubIssueMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.GitHubIssueMapping
	for _, mp := range m.mappings {
		if mp.LinkID == linkID {
			out = append(out, *mp)
		}
	}
	return out, nil
}

func (m *mockStore) CreateMapping(ctx context.Context, data db.CreateGitHubIssueMapping) (*db.GitHubIssueMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	direction := data.SyncDirection
	if direction == "" {
		direction = db.SyncBidirectional
	}
	now := m.nextTime()
	mp := &db.GitHubIssueMapping{
		ID:            uuid.New(),
		TaskID:        data.TaskID,
		LinkID:        data.LinkID,
		IssueNumber:   data.IssueNumber,
		IssueID:       data.IssueID,
		IssueURL:      data.IssueURL,
		SyncDirection: direction,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.mappings[mp.ID] = mp
	cp := *mp
	return &cp, nil
}

func (m *mockStore) UpdateMappingSyncTimestamps(ctx context.Context, id uuid.UUID, githubUpdatedAt, vibeUpdatedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, ok := m.mappings[id]
	if !ok {
		return &db.NotFoundError{Entity: "mapping", ID: id}
	}
	now := time.Now().UTC()
	mp.LastSyncedAt = &now
	if githubUpdatedAt != nil {
		mp.GitHubUpdatedAt = githubUpdatedAt
	}
	if vibeUpdatedAt != nil {
		mp.VibeUpdatedAt = vibeUpdatedAt
	}
	return nil
}

// Properties

func (m *mockStore) UpsertProperty(ctx context.Context, data db.UpsertTaskProperty) (*db.TaskProperty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.props {
		if p.TaskID == data.TaskID && p.Name == data.Name {
			p.Value = data.Value
			cp := *p
			return &cp, nil
		}
	}
	source := data.Source
	if source == "" {
		source = db.SourceVibe
	}
	now := m.nextTime()
	p := &db.TaskProperty{
		ID:        uuid.New(),
		TaskID:    data.TaskID,
		Name:      data.Name,
		Value:     data.Value,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.props[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *mockStore) FindPropertiesByTask(ctx context.Context, taskID uuid.UUID) ([]db.TaskProperty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.TaskProperty
	for _, p := range m.props {
		if p.TaskID == taskID {
			out = append(out, *p)
		}
	}
	return out, nil
}
