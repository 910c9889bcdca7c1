package task_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/gantt/internal/project"
	projectrepo "github.com/kazz187/gantt/internal/project/repositoryimpl"
	"github.com/kazz187/gantt/internal/task"
	"github.com/kazz187/gantt/internal/task/repositoryimpl"
	"github.com/kazz187/gantt/pkg/cerr"
	"github.com/kazz187/gantt/pkg/storage"
)

type apiError struct {
	Code    string           `json:"code"`
	Message string           `json:"message"`
	Details []map[string]any `json:"details"`
}

type apiTask struct {
	ID           string   `json:"id"`
	ProjectID    string   `json:"project_id"`
	Name         string   `json:"name"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	Status       string   `json:"status"`
	Dependencies []string `json:"dependencies"`
	ParentID     string   `json:"parent_id"`
	Priority     string   `json:"priority"`
}

type apiMutation struct {
	Task                apiTask  `json:"task"`
	DroppedDependencies []string `json:"dropped_dependencies"`
}

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	projects := projectrepo.NewYAMLRepository(store)
	require.NoError(t, projects.Create(context.Background(), &project.Project{ID: "p1", Name: "Test", CreatedAt: testNow}))

	svc := task.NewService(repositoryimpl.NewYAMLRepository(store), nil, task.WithClock(func() time.Time { return testNow }))
	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	task.NewServer(svc, projects).Register(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, ts *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func createTask(t *testing.T, ts *httptest.Server, path string, body map[string]any) apiMutation {
	t.Helper()
	if _, ok := body["start_date"]; !ok {
		body["start_date"] = "2026-03-20"
		body["end_date"] = "2026-03-22"
	}
	var m apiMutation
	require.Equal(t, http.StatusCreated, call(t, ts, http.MethodPost, path, body, &m))
	return m
}

func TestServer_CreateAndGetTask(t *testing.T) {
	ts := newTestAPI(t)

	a := createTask(t, ts, "/projects/p1/tasks", map[string]any{"name": "A"})
	assert.Equal(t, "p1", a.Task.ProjectID)
	assert.Equal(t, "2026-03-20", a.Task.StartDate)
	assert.Equal(t, "not_started", a.Task.Status)
	assert.Equal(t, "medium", a.Task.Priority)
	assert.Equal(t, []string{}, a.DroppedDependencies)

	b := createTask(t, ts, "/projects/p1/tasks", map[string]any{
		"name":         "B",
		"dependencies": []string{a.Task.ID, "ghost"},
	})
	assert.Equal(t, []string{a.Task.ID}, b.Task.Dependencies)
	assert.Equal(t, []string{"ghost"}, b.DroppedDependencies)

	var got apiTask
	assert.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/tasks/"+b.Task.ID, nil, &got))
	assert.Equal(t, "B", got.Name)

	var list []apiTask
	assert.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/projects/p1/tasks", nil, &list))
	assert.Len(t, list, 2)
}

func TestServer_ErrorMapping(t *testing.T) {
	ts := newTestAPI(t)
	root := createTask(t, ts, "/projects/p1/tasks", map[string]any{"name": "Root"})
	milestone := createTask(t, ts, "/projects/p1/tasks", map[string]any{"name": "Launch", "is_milestone": true})

	t.Run("unknown task is 404", func(t *testing.T) {
		var e apiError
		assert.Equal(t, http.StatusNotFound, call(t, ts, http.MethodGet, "/tasks/missing", nil, &e))
		assert.Equal(t, "not_found", e.Code)
	})
	t.Run("unknown project is 404", func(t *testing.T) {
		var e apiError
		assert.Equal(t, http.StatusNotFound, call(t, ts, http.MethodGet, "/projects/nope/critical-path", nil, &e))
		assert.Equal(t, "not_found", e.Code)
	})
	t.Run("promoting a root task is 412 naming the rule", func(t *testing.T) {
		var e apiError
		assert.Equal(t, http.StatusPreconditionFailed, call(t, ts, http.MethodPost, "/tasks/"+root.Task.ID+"/promote", nil, &e))
		assert.Equal(t, "failed_precondition", e.Code)
		require.Len(t, e.Details, 1)
		assert.Equal(t, task.RulePromoteRoot, e.Details[0]["ruleId"])
		assert.Contains(t, e.Details[0]["message"], root.Task.ID)
	})
	t.Run("subtask under milestone is 412", func(t *testing.T) {
		var e apiError
		status := call(t, ts, http.MethodPost, "/tasks/"+milestone.Task.ID+"/subtasks",
			map[string]any{"name": "x", "start_date": "2026-03-20"}, &e)
		assert.Equal(t, http.StatusPreconditionFailed, status)
		require.Len(t, e.Details, 1)
		assert.Equal(t, task.RuleMilestoneParent, e.Details[0]["ruleId"])
	})
	t.Run("bad date is 400", func(t *testing.T) {
		var e apiError
		status := call(t, ts, http.MethodPost, "/projects/p1/tasks", map[string]any{"name": "x", "start_date": "20/03/2026"}, &e)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "invalid_argument", e.Code)
	})
	t.Run("unknown field is 400", func(t *testing.T) {
		var e apiError
		status := call(t, ts, http.MethodPatch, "/tasks/"+root.Task.ID, map[string]any{"colour": "red"}, &e)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestServer_HierarchyFlow(t *testing.T) {
	ts := newTestAPI(t)
	parent := createTask(t, ts, "/projects/p1/tasks", map[string]any{"name": "Parent"})
	x := createTask(t, ts, "/tasks/"+parent.Task.ID+"/subtasks", map[string]any{"name": "X"})
	y := createTask(t, ts, "/projects/p1/tasks", map[string]any{"name": "Y", "parent_id": parent.Task.ID})
	q := createTask(t, ts, "/projects/p1/tasks", map[string]any{"name": "Q", "dependencies": []string{x.Task.ID}})
	assert.Equal(t, parent.Task.ID, x.Task.ParentID)
	assert.Equal(t, parent.Task.ID, y.Task.ParentID)

	var subs []apiTask
	assert.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/tasks/"+parent.Task.ID+"/subtasks", nil, &subs))
	assert.Len(t, subs, 2)

	var promoted apiTask
	assert.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/tasks/"+y.Task.ID+"/promote", nil, &promoted))
	assert.Empty(t, promoted.ParentID)

	var del struct {
		DeletedIDs []string `json:"deleted_ids"`
		UpdatedIDs []string `json:"updated_ids"`
	}
	assert.Equal(t, http.StatusOK, call(t, ts, http.MethodDelete, "/tasks/"+parent.Task.ID, nil, &del))
	assert.Equal(t, []string{parent.Task.ID, x.Task.ID}, del.DeletedIDs)
	assert.Equal(t, []string{q.Task.ID}, del.UpdatedIDs)

	var got apiTask
	assert.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/tasks/"+q.Task.ID, nil, &got))
	assert.Empty(t, got.Dependencies)
}

func TestServer_CriticalPathAndValidate(t *testing.T) {
	ts := newTestAPI(t)

	var cp struct {
		CriticalPath []string `json:"critical_path"`
		Length       int      `json:"length"`
	}
	assert.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/projects/p1/critical-path", nil, &cp))
	assert.Equal(t, []string{}, cp.CriticalPath)

	a := createTask(t, ts, "/projects/p1/tasks", map[string]any{"name": "A"})
	b := createTask(t, ts, "/projects/p1/tasks", map[string]any{"name": "B", "dependencies": []string{a.Task.ID}})
	c := createTask(t, ts, "/projects/p1/tasks", map[string]any{"name": "C", "dependencies": []string{b.Task.ID}})

	assert.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/projects/p1/critical-path", nil, &cp))
	assert.Equal(t, []string{c.Task.ID, b.Task.ID, a.Task.ID}, cp.CriticalPath)
	assert.Equal(t, 3, cp.Length)

	var v struct {
		Valid   []string `json:"valid_dependencies"`
		Dropped []string `json:"dropped_dependencies"`
	}
	status := call(t, ts, http.MethodPost, "/projects/p1/dependencies/validate", map[string]any{
		"task_id":      a.Task.ID,
		"dependencies": []string{c.Task.ID, a.Task.ID, "ghost"},
	}, &v)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{}, v.Valid)
	assert.Equal(t, []string{c.Task.ID, a.Task.ID, "ghost"}, v.Dropped)

	var st task.Stats
	assert.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/projects/p1/stats", nil, &st))
	assert.Equal(t, 3, st.TotalTasks)
	assert.Equal(t, 3, st.CriticalPathLength)
}
