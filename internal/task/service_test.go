package task_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/gantt/internal/project"
	projectrepo "github.com/kazz187/gantt/internal/project/repositoryimpl"
	"github.com/kazz187/gantt/internal/task"
	"github.com/kazz187/gantt/internal/task/repositoryimpl"
	"github.com/kazz187/gantt/pkg/cerr"
	"github.com/kazz187/gantt/pkg/storage"
)

var (
	testNow   = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	testStart = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
)

type recordingSink struct {
	mu     sync.Mutex
	events []task.Event
	err    error
}

func (s *recordingSink) Record(_ context.Context, e task.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) last() task.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func newYAMLRepo(t *testing.T) *repositoryimpl.YAMLRepository {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return repositoryimpl.NewYAMLRepository(store)
}

func newService(t *testing.T, repo task.Repository) (*task.Service, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	return task.NewService(repo, sink, task.WithClock(func() time.Time { return testNow })), sink
}

func create(t *testing.T, svc *task.Service, name string, mod func(*task.CreateInput)) *task.Task {
	t.Helper()
	in := task.CreateInput{
		ProjectID: "p1",
		Name:      name,
		StartDate: testStart,
		EndDate:   testStart.AddDate(0, 0, 2),
	}
	if mod != nil {
		mod(&in)
	}
	res, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	return res.Task
}

func deps(ids ...string) func(*task.CreateInput) {
	return func(in *task.CreateInput) { in.Dependencies = ids }
}

func under(parentID string) func(*task.CreateInput) {
	return func(in *task.CreateInput) { in.ParentID = parentID }
}

func ids(tasks []*task.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestService_CreateAppliesDefaults(t *testing.T) {
	svc, sink := newService(t, newYAMLRepo(t))
	ctx := context.Background()

	res, err := svc.Create(ctx, task.CreateInput{ProjectID: "p1", Name: "  Kickoff  ", StartDate: testStart, IsMilestone: true, EndDate: testStart.AddDate(0, 0, 3)})
	require.NoError(t, err)
	got := res.Task
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "Kickoff", got.Name)
	assert.Equal(t, got.StartDate, got.EndDate)
	assert.Equal(t, task.DefaultColor, got.Color)
	assert.Equal(t, task.PriorityMedium, got.Priority)
	assert.Equal(t, []string{}, got.Dependencies)
	assert.Equal(t, testNow, got.CreatedAt)

	stored, err := svc.Get(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Name, stored.Name)

	e := sink.last()
	assert.Equal(t, task.ActionCreate, e.Action)
	assert.Equal(t, got.ID, e.TaskID)
	assert.Equal(t, "Kickoff", e.TaskName)
	assert.Equal(t, "p1", e.ProjectID)
}

func TestService_CreateRejectsMalformedInput(t *testing.T) {
	svc, _ := newService(t, newYAMLRepo(t))
	tests := []struct {
		name string
		in   task.CreateInput
	}{
		{"empty name", task.CreateInput{ProjectID: "p1", StartDate: testStart}},
		{"progress above 100", task.CreateInput{ProjectID: "p1", Name: "x", StartDate: testStart, Progress: 101}},
		{"negative progress", task.CreateInput{ProjectID: "p1", Name: "x", StartDate: testStart, Progress: -1}},
		{"missing start", task.CreateInput{ProjectID: "p1", Name: "x"}},
		{"end before start", task.CreateInput{ProjectID: "p1", Name: "x", StartDate: testStart, EndDate: testStart.AddDate(0, 0, -1)}},
		{"unknown priority", task.CreateInput{ProjectID: "p1", Name: "x", StartDate: testStart, Priority: "urgent"}},
		{"missing project", task.CreateInput{Name: "x", StartDate: testStart}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			require.Error(t, err)
			assert.True(t, cerr.IsCode(err, cerr.InvalidArgument), err.Error())
		})
	}
}

func TestService_DependenciesAreFilteredNotRejected(t *testing.T) {
	svc, sink := newService(t, newYAMLRepo(t))
	ctx := context.Background()

	a := create(t, svc, "A", nil)
	b := create(t, svc, "B", deps(a.ID, a.ID, "ghost"))
	assert.Equal(t, []string{a.ID}, b.Dependencies)

	want := []string{b.ID, "ghost", a.ID}
	res, err := svc.Update(ctx, a.ID, task.UpdateInput{Dependencies: &want})
	require.NoError(t, err)
	assert.Equal(t, []string{}, res.Task.Dependencies)
	assert.Equal(t, []string{b.ID, "ghost", a.ID}, res.DroppedDependencies)

	e := sink.last()
	assert.Equal(t, task.ActionUpdate, e.Action)
	assert.Equal(t, []string{b.ID, "ghost", a.ID}, e.Details["dropped_dependencies"])
}

func TestService_CreateSubtask(t *testing.T) {
	svc, _ := newService(t, newYAMLRepo(t))
	ctx := context.Background()

	parent := create(t, svc, "Parent", nil)
	milestone := create(t, svc, "Launch", func(in *task.CreateInput) { in.IsMilestone = true })

	sub := create(t, svc, "Child", under(parent.ID))
	assert.Equal(t, parent.ID, sub.ParentID)
	assert.Equal(t, "p1", sub.ProjectID)

	children, err := svc.Subtasks(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{sub.ID}, ids(children))

	_, err = svc.CreateSubtask(ctx, milestone.ID, task.CreateInput{Name: "nope", StartDate: testStart})
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))

	_, err = svc.CreateSubtask(ctx, "missing", task.CreateInput{Name: "nope", StartDate: testStart})
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	_, err = svc.CreateSubtask(ctx, parent.ID, task.CreateInput{ProjectID: "p2", Name: "nope", StartDate: testStart})
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
}

func TestService_Promote(t *testing.T) {
	svc, sink := newService(t, newYAMLRepo(t))
	ctx := context.Background()

	parent := create(t, svc, "Parent", nil)
	sub := create(t, svc, "Child", under(parent.ID))

	got, err := svc.Promote(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRoot())
	stored, err := svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ParentID)
	assert.Equal(t, task.ActionPromote, sink.last().Action)
	assert.Equal(t, parent.ID, sink.last().Details["former_parent_id"])

	_, err = svc.Promote(ctx, sub.ID)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
	_, err = svc.Promote(ctx, "missing")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestService_UpdateGuardsHierarchy(t *testing.T) {
	svc, _ := newService(t, newYAMLRepo(t))
	ctx := context.Background()

	parent := create(t, svc, "Parent", nil)
	sub := create(t, svc, "Child", under(parent.ID))
	other := create(t, svc, "Other", nil)

	_, err := svc.Update(ctx, parent.ID, task.UpdateInput{ParentID: &sub.ID})
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))

	yes := true
	_, err = svc.Update(ctx, parent.ID, task.UpdateInput{IsMilestone: &yes})
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))

	res, err := svc.Update(ctx, sub.ID, task.UpdateInput{ParentID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, other.ID, res.Task.ParentID)

	res, err = svc.Update(ctx, parent.ID, task.UpdateInput{IsMilestone: &yes})
	require.NoError(t, err)
	assert.True(t, res.Task.IsMilestone)
	assert.Equal(t, res.Task.StartDate, res.Task.EndDate)

	_, err = svc.Update(ctx, "missing", task.UpdateInput{})
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestService_DeleteCascade(t *testing.T) {
	repo := newYAMLRepo(t)
	svc, sink := newService(t, repo)
	ctx := context.Background()

	p := create(t, svc, "Parent", nil)
	x := create(t, svc, "X", under(p.ID))
	y := create(t, svc, "Y", func(in *task.CreateInput) { in.ParentID = p.ID; in.Dependencies = []string{x.ID} })
	r := create(t, svc, "R", nil)
	q := create(t, svc, "Q", deps(p.ID, x.ID, r.ID))

	plan, err := svc.Delete(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, plan.Deleted())
	assert.Equal(t, []string{p.ID, x.ID, y.ID}, plan.Removed)

	remaining, err := svc.List(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{r.ID, q.ID}, ids(remaining))
	stored, err := svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{r.ID}, stored.Dependencies)

	e := sink.last()
	assert.Equal(t, task.ActionDelete, e.Action)
	assert.Equal(t, p.ID, e.TaskID)
	assert.Equal(t, []string{p.ID, x.ID, y.ID}, e.Details["removed_ids"])
	assert.Equal(t, []string{q.ID}, e.Details["updated_ids"])

	plan, err = svc.Delete(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, plan.Deleted())
}

// flakyRepo fails Delete for one id to exercise the compensating rollback.
type flakyRepo struct {
	task.Repository
	failDelete string
}

func (r *flakyRepo) Delete(ctx context.Context, id string) error {
	if id == r.failDelete {
		return cerr.NewError(cerr.Unavailable, "storage unavailable", errors.New("disk on fire"))
	}
	return r.Repository.Delete(ctx, id)
}

func TestService_DeleteRollsBackOnFailure(t *testing.T) {
	repo := &flakyRepo{Repository: newYAMLRepo(t)}
	svc, sink := newService(t, repo)
	ctx := context.Background()

	p := create(t, svc, "Parent", nil)
	x := create(t, svc, "X", under(p.ID))
	y := create(t, svc, "Y", under(p.ID))
	q := create(t, svc, "Q", deps(p.ID, y.ID))
	before, err := svc.List(ctx, "p1")
	require.NoError(t, err)
	events := len(sink.events)

	// Y goes first (deepest last in the plan), then X fails.
	repo.failDelete = x.ID
	_, err = svc.Delete(ctx, p.ID)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.Unavailable))

	after, err := svc.List(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, ids(before), ids(after))
	stored, err := svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{p.ID, y.ID}, stored.Dependencies)
	assert.Len(t, sink.events, events, "a failed delete is not recorded")
}

// txRepo records ApplyDelete calls and applies them through the wrapped repo.
type txRepo struct {
	task.Repository
	applied []*task.DeletePlan
}

func (r *txRepo) ApplyDelete(ctx context.Context, plan *task.DeletePlan) error {
	r.applied = append(r.applied, plan)
	for _, t := range plan.Updated {
		if err := r.Update(ctx, t); err != nil {
			return err
		}
	}
	for _, id := range slices.Backward(plan.Removed) {
		if err := r.Repository.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) Delete(context.Context, string) error {
	return errors.New("single deletes must not be used when transactions are available")
}

func TestService_DeleteUsesTransactionWhenAvailable(t *testing.T) {
	repo := &txRepo{Repository: newYAMLRepo(t)}
	svc, _ := newService(t, repo)
	ctx := context.Background()

	p := create(t, svc, "Parent", nil)
	create(t, svc, "X", under(p.ID))
	other := create(t, svc, "Other", deps(p.ID))

	plan, err := svc.Delete(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, repo.applied, 1)
	assert.Same(t, plan, repo.applied[0])
	for _, u := range plan.Updated {
		assert.Equal(t, testNow, u.UpdatedAt)
	}

	remaining, err := svc.List(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{other.ID}, ids(remaining))
	assert.Empty(t, remaining[0].Dependencies)
}

func TestService_CriticalPathAndStats(t *testing.T) {
	svc, _ := newService(t, newYAMLRepo(t))
	ctx := context.Background()

	path, err := svc.CriticalPath(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, path)

	a := create(t, svc, "A", nil)
	b := create(t, svc, "B", deps(a.ID))
	c := create(t, svc, "C", deps(a.ID))
	d := create(t, svc, "D", deps(b.ID, c.ID))
	create(t, svc, "elsewhere", func(in *task.CreateInput) { in.ProjectID = "p2" })

	path, err = svc.CriticalPath(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{d.ID, b.ID, a.ID}, ids(path))

	st, err := svc.Stats(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalTasks)
	assert.Equal(t, 3, st.CriticalPathLength)
	// every task ended on 2026-03-04, before testNow
	assert.Equal(t, 4, st.OverdueTasks)
}

func TestService_ValidateDependenciesDoesNotWrite(t *testing.T) {
	svc, sink := newService(t, newYAMLRepo(t))
	ctx := context.Background()

	a := create(t, svc, "A", nil)
	b := create(t, svc, "B", deps(a.ID))
	n := len(sink.events)

	got, err := svc.ValidateDependencies(ctx, "p1", a.ID, []string{b.ID, a.ID, "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)

	stored, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Dependencies)
	assert.Len(t, sink.events, n)
}

func TestService_SinkFailureDoesNotFailOperation(t *testing.T) {
	svc, sink := newService(t, newYAMLRepo(t))
	sink.err = errors.New("audit log down")

	res, err := svc.Create(context.Background(), task.CreateInput{ProjectID: "p1", Name: "A", StartDate: testStart})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Task.ID)
}

func TestService_DeleteProject(t *testing.T) {
	svc, _ := newService(t, newYAMLRepo(t))
	ctx := context.Background()

	p := create(t, svc, "Parent", nil)
	create(t, svc, "Child", under(p.ID))
	keep := create(t, svc, "Keep", func(in *task.CreateInput) { in.ProjectID = "p2" })

	var finalized []string
	n, err := svc.DeleteProject(ctx, "p1", func(context.Context) error {
		left, err := svc.List(ctx, "p1")
		require.NoError(t, err)
		assert.Empty(t, left)
		finalized = append(finalized, "p1")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"p1"}, finalized)

	left, err := svc.List(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, left)
	_, err = svc.Get(ctx, keep.ID)
	assert.NoError(t, err)
}

func TestService_DeleteProjectFinalizeError(t *testing.T) {
	svc, _ := newService(t, newYAMLRepo(t))
	create(t, svc, "A", nil)

	_, err := svc.DeleteProject(context.Background(), "p1", func(context.Context) error {
		return cerr.NewError(cerr.Unavailable, "project store down", nil)
	})
	assert.True(t, cerr.IsCode(err, cerr.Unavailable))
}

func TestService_WithProjectsGuardsCreate(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	projects := projectrepo.NewYAMLRepository(store)
	require.NoError(t, projects.Create(ctx, &project.Project{ID: "p1", Name: "P1", CreatedAt: testNow}))

	svc := task.NewService(repositoryimpl.NewYAMLRepository(store), nil,
		task.WithClock(func() time.Time { return testNow }),
		task.WithProjects(projects),
	)
	parent := create(t, svc, "Parent", nil)

	_, err = svc.Create(ctx, task.CreateInput{ProjectID: "missing", Name: "X", StartDate: testStart})
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	_, err = svc.DeleteProject(ctx, "p1", func(ctx context.Context) error {
		return projects.Delete(ctx, "p1")
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, task.CreateInput{ProjectID: "p1", Name: "Late", StartDate: testStart})
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
	_, err = svc.CreateSubtask(ctx, parent.ID, task.CreateInput{Name: "Late child", StartDate: testStart})
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
	left, err := svc.List(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestService_ConcurrentUpdatesNeverCloseACycle(t *testing.T) {
	svc, _ := newService(t, newYAMLRepo(t))
	ctx := context.Background()

	a := create(t, svc, "A", nil)
	b := create(t, svc, "B", nil)

	// A->B and B->A raced: the per-project lock lets only one of them through.
	var wg sync.WaitGroup
	for _, pair := range [][2]*task.Task{{a, b}, {b, a}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := []string{pair[1].ID}
			_, err := svc.Update(ctx, pair[0].ID, task.UpdateInput{Dependencies: &d})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	tasks, err := svc.List(ctx, "p1")
	require.NoError(t, err)
	total := 0
	for _, tk := range tasks {
		total += len(tk.Dependencies)
	}
	assert.Equal(t, 1, total)
}
