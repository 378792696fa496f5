package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibeboard/internal/db"
	"vibeboard/internal/github"
	"vibeboard/internal/orchestrator"
)

type fakeProvider struct {
	unavailable bool
	items       []github.ProjectItem
	pushes      []string
	pushErr     error
}

func (f *fakeProvider) CheckAvailable(ctx context.Context) error {
	if f.unavailable {
		return github.ErrProviderUnavailable
	}
	return nil
}

func (f *fakeProvider) ProjectItems(ctx context.Context, owner, githubProjectID string) ([]github.ProjectItem, error) {
	if f.unavailable {
		return nil, github.ErrProviderUnavailable
	}
	return f.items, nil
}

func (f *fakeProvider) UpdateIssue(ctx context.Context, issueID, title, body, state string) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushes = append(f.pushes, issueID)
	return nil
}

type testEnv struct {
	store    *mockStore
	provider *fakeProvider
	queue    *github.Queue
	server   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMockStore()
	provider := &fakeProvider{}
	queue := github.NewQueue()
	s := NewServer(store, orchestrator.NewRegistry(3), github.NewSyncer(provider), queue, nil, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{store: store, provider: provider, queue: queue, server: srv}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) addTask(t *testing.T, projectID uuid.UUID, title string, status db.TaskStatus) *db.Task {
	t.Helper()
	task, err := e.store.CreateTask(context.Background(), db.CreateTask{
		ProjectID: projectID,
		Title:     title,
		Status:    status,
	})
	require.NoError(t, err)
	return task
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestOrchestratorLifecycleRoutes(t *testing.T) {
	env := newTestEnv(t)
	projectID := uuid.New()
	env.addTask(t, projectID, "a", db.StatusTodo)
	base := "/projects/" + projectID.String() + "/orchestrator"

	resp := env.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeBody[orchestratorStatus](t, resp)
	assert.Equal(t, orchestrator.StateIdle, status.State)
	require.NotNil(t, status.Plan)
	assert.Equal(t, 1, status.Plan.Stats.TotalTasks)

	resp = env.do(t, http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status = decodeBody[orchestratorStatus](t, resp)
	assert.Equal(t, orchestrator.StateRunning, status.State)

	// Starting twice is an illegal transition
	resp = env.do(t, http.MethodPost, base+"/start", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, base+"/pause", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status = decodeBody[orchestratorStatus](t, resp)
	assert.Equal(t, orchestrator.StatePaused, status.State)

	// Pause only applies to a running orchestrator
	resp = env.do(t, http.MethodPost, base+"/pause", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, base+"/resume", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status = decodeBody[orchestratorStatus](t, resp)
	assert.Equal(t, orchestrator.StateRunning, status.State)

	resp = env.do(t, http.MethodPost, base+"/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status = decodeBody[orchestratorStatus](t, resp)
	assert.Equal(t, orchestrator.StateIdle, status.State)
}

func TestReadyTasksRoute(t *testing.T) {
	env := newTestEnv(t)
	projectID := uuid.New()
	a := env.addTask(t, projectID, "a", db.StatusTodo)
	b := env.addTask(t, projectID, "b", db.StatusTodo)
	base := "/projects/" + projectID.String() + "/orchestrator"

	// Not running yet: empty
	resp := env.do(t, http.MethodGet, base+"/ready-tasks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ready := decodeBody[[]uuid.UUID](t, resp)
	assert.Empty(t, ready)

	resp = env.do(t, http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, base+"/ready-tasks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ready = decodeBody[[]uuid.UUID](t, resp)
	assert.Equal(t, []uuid.UUID{a.ID, b.ID}, ready)
}

func TestValidateTransitionRoute(t *testing.T) {
	env := newTestEnv(t)
	projectID := uuid.New()
	blocker := env.addTask(t, projectID, "blocker", db.StatusTodo)
	blocked := env.addTask(t, projectID, "blocked", db.StatusTodo)
	_, err := env.store.CreateDependency(context.Background(), db.CreateDependency{
		TaskID:          blocked.ID,
		DependsOnTaskID: blocker.ID,
	})
	require.NoError(t, err)

	base := "/projects/" + projectID.String() + "/orchestrator"
	resp := env.do(t, http.MethodPost, base+"/validate-transition", map[string]any{
		"task_id":    blocked.ID,
		"new_status": "inprogress",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	validation := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "requires_confirmation", validation["kind"])

	// Unknown status strings are rejected before hitting the core
	resp = env.do(t, http.MethodPost, base+"/validate-transition", map[string]any{
		"task_id":    blocked.ID,
		"new_status": "nonsense",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestTaskCompletedReturnsUnblocked(t *testing.T) {
	env := newTestEnv(t)
	projectID := uuid.New()
	a := env.addTask(t, projectID, "a", db.StatusTodo)
	b := env.addTask(t, projectID, "b", db.StatusTodo)
	_, err := env.store.CreateDependency(context.Background(), db.CreateDependency{
		TaskID:          b.ID,
		DependsOnTaskID: a.ID,
	})
	require.NoError(t, err)

	base := "/projects/" + projectID.String() + "/orchestrator"
	resp := env.do(t, http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	done := db.StatusDone
	_, err = env.store.UpdateTask(context.Background(), a.ID, db.UpdateTask{Status: &done})
	require.NoError(t, err)

	resp = env.do(t, http.MethodPost, base+"/tasks/"+a.ID.String()+"/completed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string][]uuid.UUID](t, resp)
	assert.Equal(t, []uuid.UUID{b.ID}, body["unblocked_tasks"])
}

func TestTaskFailedRoute(t *testing.T) {
	env := newTestEnv(t)
	projectID := uuid.New()
	a := env.addTask(t, projectID, "a", db.StatusInProgress)
	base := "/projects/" + projectID.String() + "/orchestrator"

	resp := env.do(t, http.MethodPost, base+"/tasks/"+a.ID.String()+"/failed", map[string]string{
		"error": "compile error",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateDependencyTriggersRelayout(t *testing.T) {
	env := newTestEnv(t)
	projectID := uuid.New()
	a := env.addTask(t, projectID, "a", db.StatusTodo)
	b := env.addTask(t, projectID, "b", db.StatusTodo)
	base := "/projects/" + projectID.String() + "/dependencies"

	resp := env.do(t, http.MethodPost, base, map[string]any{
		"task_id":            b.ID,
		"depends_on_task_id": a.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	dep := decodeBody[db.TaskDependency](t, resp)
	assert.Equal(t, b.ID, dep.TaskID)

	// Both tasks got coordinates from the relayout
	aAfter, err := env.store.FindTask(context.Background(), a.ID)
	require.NoError(t, err)
	bAfter, err := env.store.FindTask(context.Background(), b.ID)
	require.NoError(t, err)
	require.NotNil(t, aAfter.DagPositionX)
	require.NotNil(t, bAfter.DagPositionX)
	assert.Equal(t, 0.0, *aAfter.DagPositionX)
	assert.Equal(t, 340.0, *bAfter.DagPositionX)

	// Duplicate edge
	resp = env.do(t, http.MethodPost, base, map[string]any{
		"task_id":            b.ID,
		"depends_on_task_id": a.ID,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Reverse edge closes a cycle
	resp = env.do(t, http.MethodPost, base, map[string]any{
		"task_id":            a.ID,
		"depends_on_task_id": b.ID,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Self dependency
	resp = env.do(t, http.MethodPost, base, map[string]any{
		"task_id":            a.ID,
		"depends_on_task_id": a.ID,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestDeleteDependency(t *testing.T) {
	env := newTestEnv(t)
	projectID := uuid.New()
	a := env.addTask(t, projectID, "a", db.StatusTodo)
	b := env.addTask(t, projectID, "b", db.StatusTodo)
	dep, err := env.store.CreateDependency(context.Background(), db.CreateDependency{
		TaskID:          b.ID,
		DependsOnTaskID: a.ID,
	})
	require.NoError(t, err)

	resp := env.do(t, http.MethodDelete, "/dependencies/"+dep.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	_, err = env.store.FindDependency(context.Background(), dep.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	resp = env.do(t, http.MethodDelete, "/dependencies/"+dep.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestUpdateDependencyGenreTriState(t *testing.T) {
	env := newTestEnv(t)
	projectID := uuid.New()
	a := env.addTask(t, projectID, "a", db.StatusTodo)
	b := env.addTask(t, projectID, "b", db.StatusTodo)
	dep, err := env.store.CreateDependency(context.Background(), db.CreateDependency{
		TaskID:          b.ID,
		DependsOnTaskID: a.ID,
	})
	require.NoError(t, err)
	genre, err := env.store.CreateGenre(context.Background(), db.CreateGenre{ProjectID: projectID, Name: "infra"})
	require.NoError(t, err)

	path := "/dependencies/" + dep.ID.String()

	resp := env.do(t, http.MethodPut, path, map[string]any{"genre_id": genre.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[db.TaskDependency](t, resp)
	require.NotNil(t, updated.GenreID)
	assert.Equal(t, genre.ID, *updated.GenreID)

	// Explicit null clears the genre
	resp = env.do(t, http.MethodPut, path, json.RawMessage(`{"genre_id": null}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated = decodeBody[db.TaskDependency](t, resp)
	assert.Nil(t, updated.GenreID)

	// Absent field keeps the current value
	resp = env.do(t, http.MethodPut, path, map[string]any{"genre_id": genre.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = env.do(t, http.MethodPut, path, json.RawMessage(`{}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated = decodeBody[db.TaskDependency](t, resp)
	require.NotNil(t, updated.GenreID)
	assert.Equal(t, genre.ID, *updated.GenreID)
}

func TestUpdateTaskPosition(t *testing.T) {
	env := newTestEnv(t)
	projectID := uuid.New()
	a := env.addTask(t, projectID, "a", db.StatusTodo)
	path := "/tasks/" + a.ID.String() + "/position"

	resp := env.do(t, http.MethodPut, path, map[string]any{"position": 4})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	task := decodeBody[db.Task](t, resp)
	require.NotNil(t, task.Position)
	assert.Equal(t, int32(4), *task.Position)

	resp = env.do(t, http.MethodPut, path, map[string]any{"x": 340.0, "y": 120.0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	task = decodeBody[db.Task](t, resp)
	require.NotNil(t, task.DagPositionX)
	assert.Equal(t, 340.0, *task.DagPositionX)

	resp = env.do(t, http.MethodPut, path, json.RawMessage(`{}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGenreRoutes(t *testing.T) {
	env := newTestEnv(t)
	projectID := uuid.New()
	base := "/projects/" + projectID.String() + "/dependency-genres"

	resp := env.do(t, http.MethodPost, base, map[string]any{"name": "infra"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	infra := decodeBody[db.DependencyGenre](t, resp)
	assert.Equal(t, db.DefaultGenreColor, infra.Color)

	resp = env.do(t, http.MethodPost, base, map[string]any{"name": "infra"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, base, map[string]any{"name": "api", "color": "#ff0000"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	api := decodeBody[db.DependencyGenre](t, resp)
	assert.Equal(t, "#ff0000", api.Color)

	resp = env.do(t, http.MethodPut, base+"/reorder", map[string]any{
		"genre_ids": []uuid.UUID{api.ID, infra.ID},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reordered := decodeBody[[]db.DependencyGenre](t, resp)
	require.Len(t, reordered, 2)
	assert.Equal(t, api.ID, reordered[0].ID)
	assert.Equal(t, int32(0), reordered[0].Position)

	newName := "infrastructure"
	resp = env.do(t, http.MethodPut, "/dependency-genres/"+infra.ID.String(), map[string]any{"name": newName})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	renamed := decodeBody[db.DependencyGenre](t, resp)
	assert.Equal(t, newName, renamed.Name)

	resp = env.do(t, http.MethodDelete, "/dependency-genres/"+infra.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	remaining := decodeBody[[]db.DependencyGenre](t, resp)
	require.Len(t, remaining, 1)
	assert.Equal(t, api.ID, remaining[0].ID)
}

func TestGithubLinkRoutes(t *testing.T) {
	env := newTestEnv(t)
	projectID := uuid.New()
	base := "/projects/" + projectID.String() + "/github-links"

	resp := env.do(t, http.MethodPost, base, map[string]any{
		"github_project_id": "PVT_1",
		"owner":             "octocat",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	link := decodeBody[db.GitHubProjectLink](t, resp)
	assert.True(t, link.SyncEnabled)

	resp = env.do(t, http.MethodPost, "/github-links/"+link.ID.String()+"/toggle-sync", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	toggled := decodeBody[db.GitHubProjectLink](t, resp)
	assert.False(t, toggled.SyncEnabled)

	env.provider.items = []github.ProjectItem{{
		ID: "I_1",
		Issue: &github.Issue{
			ID: "I_1", Number: 7, Title: "imported", State: "OPEN",
			URL: "https://github.com/octocat/repo/issues/7", UpdatedAt: time.Now().UTC(),
		},
	}}

	resp = env.do(t, http.MethodPost, "/github-links/"+link.ID.String()+"/sync", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeBody[github.SyncResult](t, resp)
	assert.Equal(t, 1, result.ItemsSynced)
	assert.Equal(t, 1, result.ItemsCreated)

	resp = env.do(t, http.MethodGet, "/github-links/"+link.ID.String()+"/mappings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	mappings := decodeBody[[]db.GitHubIssueMapping](t, resp)
	require.Len(t, mappings, 1)
	assert.Equal(t, int64(7), mappings[0].IssueNumber)

	resp = env.do(t, http.MethodDelete, "/github-links/"+link.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

func TestGithubProviderUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.provider.unavailable = true
	projectID := uuid.New()

	resp := env.do(t, http.MethodPost, "/projects/"+projectID.String()+"/github-links", map[string]any{
		"github_project_id": "PVT_1",
		"owner":             "octocat",
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestTaskCompletedPushesMappedIssue(t *testing.T) {
	env := newTestEnv(t)
	projectID := uuid.New()
	a := env.addTask(t, projectID, "a", db.StatusDone)

	link, err := env.store.CreateLink(context.Background(), db.CreateGitHubProjectLink{
		ProjectID: projectID, GitHubProjectID: "PVT_1", Owner: "octocat",
	})
	require.NoError(t, err)
	_, err = env.store.CreateMapping(context.Background(), db.CreateGitHubIssueMapping{
		TaskID: a.ID, LinkID: link.ID, IssueNumber: 7, IssueID: "I_7",
		IssueURL: "https://github.com/octocat/repo/issues/7",
	})
	require.NoError(t, err)

	base := "/projects/" + projectID.String() + "/orchestrator"
	resp := env.do(t, http.MethodPost, base+"/tasks/"+a.ID.String()+"/completed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, []string{"I_7"}, env.provider.pushes)
	assert.Equal(t, 0, env.queue.Len())
}

func TestFailedPushIsQueued(t *testing.T) {
	env := newTestEnv(t)
	env.provider.pushErr = fmt.Errorf("network down")
	projectID := uuid.New()
	a := env.addTask(t, projectID, "a", db.StatusDone)

	link, err := env.store.CreateLink(context.Background(), db.CreateGitHubProjectLink{
		ProjectID: projectID, GitHubProjectID: "PVT_1", Owner: "octocat",
	})
	require.NoError(t, err)
	_, err = env.store.CreateMapping(context.Background(), db.CreateGitHubIssueMapping{
		TaskID: a.ID, LinkID: link.ID, IssueNumber: 7, IssueID: "I_7",
		IssueURL: "https://github.com/octocat/repo/issues/7",
	})
	require.NoError(t, err)

	base := "/projects/" + projectID.String() + "/orchestrator"
	resp := env.do(t, http.MethodPost, base+"/tasks/"+a.ID.String()+"/completed", nil)
	// The local write is accepted even though the push failed
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 1, env.queue.Len())
}

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

func TestOrchestratorWebSocketStream(t *testing.T) {
	env := newTestEnv(t)
	projectID := uuid.New()
	env.addTask(t, projectID, "a", db.StatusTodo)
	base := "/projects/" + projectID.String() + "/orchestrator"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.server.URL, base+"/stream/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()

	resp := env.do(t, http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first orchestrator.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, orchestrator.EventStateChanged, first.Type)

	var second orchestrator.Event
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, orchestrator.EventPlanUpdated, second.Type)
}

func TestDependencyWebSocketStream(t *testing.T) {
	env := newTestEnv(t)
	projectID := uuid.New()
	a := env.addTask(t, projectID, "a", db.StatusTodo)
	b := env.addTask(t, projectID, "b", db.StatusTodo)

	conn, _, err := websocket.DefaultDialer.Dial(
		wsURL(env.server.URL, "/projects/"+projectID.String()+"/dependencies/stream/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()

	resp := env.do(t, http.MethodPost, "/projects/"+projectID.String()+"/dependencies", map[string]any{
		"task_id":            b.ID,
		"depends_on_task_id": a.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev orchestrator.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, eventDependencyCreated, ev.Type)
}

func TestInvalidProjectID(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{
		"/projects/not-a-uuid/orchestrator",
		"/projects/not-a-uuid/dependencies",
		"/projects/not-a-uuid/dependency-genres",
		"/projects/not-a-uuid/github-links",
	} {
		resp := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, fmt.Sprintf("path %s", path))
		resp.Body.Close()
	}
}
