package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/gantt/internal/project"
	"github.com/kazz187/gantt/pkg/cerr"
	"github.com/kazz187/gantt/pkg/clog"
)

// Service is the CRUD layer around the graph functions. Every call reads a
// fresh snapshot of the project from the repository, lets the pure functions
// decide, and writes the outcome back.
//
// Mutations of one project are serialized inside a single Service value.
// Several processes sharing one store get no such guarantee; that is up to
// the store's own transactions. One mutex is kept per project ever touched
// and never released, so the lock table grows with the number of project ids.
//
// With WithProjects, task creation re-checks the project under the lock, and
// DeleteProject removes the project row before releasing it, so a create
// racing a project delete either lands before the delete or fails.
type Service struct {
	repo     Repository
	projects project.Repository
	sink     EventSink
	now      func() time.Time
	locks    sync.Map // project id -> *sync.Mutex
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithProjects makes the service refuse to create tasks in projects that do
// not exist.
func WithProjects(projects project.Repository) ServiceOption {
	return func(s *Service) {
		s.projects = projects
	}
}

func NewService(repo Repository, sink EventSink, opts ...ServiceOption) *Service {
	if sink == nil {
		sink = nopSink{}
	}
	s := &Service{
		repo: repo,
		sink: sink,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateInput struct {
	ProjectID    string
	ParentID     string
	Name         string
	Description  string
	StartDate    time.Time
	EndDate      time.Time
	Progress     float64
	Color        string
	Dependencies []string
	IsMilestone  bool
	AssignedTo   string
	Priority     Priority
}

// UpdateInput carries the fields to change; nil means unchanged. An empty
// ParentID promotes the task to a root task.
type UpdateInput struct {
	Name         *string
	Description  *string
	StartDate    *time.Time
	EndDate      *time.Time
	Progress     *float64
	Color        *string
	Dependencies *[]string
	IsMilestone  *bool
	ParentID     *string
	AssignedTo   *string
	Priority     *Priority
}

// Result is a stored task plus the requested dependencies that were not
// stored because they were unknown or would have closed a cycle.
type Result struct {
	Task                *Task
	DroppedDependencies []string
}

func (s *Service) lock(projectID string) func() {
	v, _ := s.locks.LoadOrStore(projectID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) requireProject(ctx context.Context, projectID string) error {
	if s.projects == nil {
		return nil
	}
	_, err := s.projects.Get(ctx, projectID)
	return err
}

func (s *Service) snapshot(ctx context.Context, projectID string) (*Snapshot, error) {
	tasks, err := s.repo.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(tasks), nil
}

func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			return nil, errTaskNotFound(id)
		}
		return nil, err
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, projectID string) ([]*Task, error) {
	return s.repo.List(ctx, projectID)
}

// Subtasks returns the direct subtasks of parentID.
func (s *Service) Subtasks(ctx context.Context, parentID string) ([]*Task, error) {
	parent, err := s.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, parent.ProjectID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(snap.Children(parentID)), nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Result, error) {
	if in.ParentID != "" {
		return s.CreateSubtask(ctx, in.ParentID, in)
	}
	if in.ProjectID == "" {
		return nil, errInvalidField("project_id", "project_id is required")
	}
	defer s.lock(in.ProjectID)()

	if err := s.requireProject(ctx, in.ProjectID); err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	t := s.newTask(in)
	requested := dedupe(in.Dependencies)
	t.Dependencies = ValidateDependencies(snap, t.ID, requested)
	return s.insert(ctx, t, requested)
}

// CreateSubtask creates a task under parentID in the parent's project.
func (s *Service) CreateSubtask(ctx context.Context, parentID string, in CreateInput) (*Result, error) {
	parent, err := s.repo.Get(ctx, parentID)
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			return nil, errParentNotFound(parentID)
		}
		return nil, err
	}
	if in.ProjectID != "" && in.ProjectID != parent.ProjectID {
		return nil, errInvalidState(
			"parent belongs to another project",
			fmt.Sprintf("parent task %q is in project %q, not %q", parent.ID, parent.ProjectID, in.ProjectID),
			RuleParentProject,
		)
	}
	defer s.lock(parent.ProjectID)()

	if err := s.requireProject(ctx, parent.ProjectID); err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, parent.ProjectID)
	if err != nil {
		return nil, err
	}
	t := s.newTask(in)
	requested := dedupe(in.Dependencies)
	t.Dependencies = requested
	t, err = PrepareSubtask(snap, parentID, t)
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, t, requested)
}

func (s *Service) newTask(in CreateInput) *Task {
	now := s.now()
	return &Task{
		ID:          ulid.Make().String(),
		ProjectID:   in.ProjectID,
		ParentID:    in.ParentID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Progress:    in.Progress,
		Color:       in.Color,
		IsMilestone: in.IsMilestone,
		AssignedTo:  in.AssignedTo,
		Priority:    in.Priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *Service) insert(ctx context.Context, t *Task, requested []string) (*Result, error) {
	if err := normalize(t); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	dropped := DroppedDependencies(requested, t.Dependencies)
	clog.AddTask(ctx, t.ProjectID, t.ID)
	s.record(ctx, Event{
		Action:    ActionCreate,
		ProjectID: t.ProjectID,
		TaskID:    t.ID,
		TaskName:  t.Name,
		Details:   withDropped(map[string]any{"parent_id": t.ParentID, "dependencies": t.Dependencies}, dropped),
	})
	return &Result{Task: t, DroppedDependencies: dropped}, nil
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Result, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	defer s.lock(current.ProjectID)()

	snap, err := s.snapshot(ctx, current.ProjectID)
	if err != nil {
		return nil, err
	}
	orig, ok := snap.Get(id)
	if !ok {
		return nil, errTaskNotFound(id)
	}

	t := orig.Clone()
	changes := map[string]any{}
	if in.Name != nil {
		t.Name = strings.TrimSpace(*in.Name)
		changes["name"] = t.Name
	}
	if in.Description != nil {
		t.Description = *in.Description
		changes["description"] = t.Description
	}
	if in.StartDate != nil {
		t.StartDate = *in.StartDate
		changes["start_date"] = t.StartDate.Format(DateLayout)
	}
	if in.EndDate != nil {
		t.EndDate = *in.EndDate
		changes["end_date"] = t.EndDate.Format(DateLayout)
	}
	if in.Progress != nil {
		t.Progress = *in.Progress
		changes["progress"] = t.Progress
	}
	if in.Color != nil {
		t.Color = *in.Color
		changes["color"] = t.Color
	}
	if in.AssignedTo != nil {
		t.AssignedTo = *in.AssignedTo
		changes["assigned_to"] = t.AssignedTo
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
		changes["priority"] = t.Priority
	}
	if in.IsMilestone != nil {
		if *in.IsMilestone && !orig.IsMilestone {
			if err := ValidateMilestone(snap, id); err != nil {
				return nil, err
			}
		}
		t.IsMilestone = *in.IsMilestone
		changes["is_milestone"] = t.IsMilestone
	}
	if in.ParentID != nil && *in.ParentID != orig.ParentID {
		if err := ValidateParent(snap, id, *in.ParentID); err != nil {
			return nil, err
		}
		t.ParentID = *in.ParentID
		changes["parent_id"] = t.ParentID
	}

	var dropped []string
	if in.Dependencies != nil {
		requested := dedupe(*in.Dependencies)
		t.Dependencies = ValidateDependencies(snap, id, requested)
		dropped = DroppedDependencies(requested, t.Dependencies)
		changes["dependencies"] = t.Dependencies
	}

	if err := normalize(t); err != nil {
		return nil, err
	}
	t.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	clog.AddTask(ctx, t.ProjectID, t.ID)
	s.record(ctx, Event{
		Action:    ActionUpdate,
		ProjectID: t.ProjectID,
		TaskID:    t.ID,
		TaskName:  t.Name,
		Details:   withDropped(changes, dropped),
	})
	return &Result{Task: t, DroppedDependencies: dropped}, nil
}

// Promote turns a subtask into a root task.
func (s *Service) Promote(ctx context.Context, id string) (*Task, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	defer s.lock(current.ProjectID)()

	snap, err := s.snapshot(ctx, current.ProjectID)
	if err != nil {
		return nil, err
	}
	t, err := Promote(snap, id)
	if err != nil {
		return nil, err
	}
	formerParent := current.ParentID
	t.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	clog.AddTask(ctx, t.ProjectID, t.ID)
	s.record(ctx, Event{
		Action:    ActionPromote,
		ProjectID: t.ProjectID,
		TaskID:    t.ID,
		TaskName:  t.Name,
		Details:   map[string]any{"former_parent_id": formerParent},
	})
	return t, nil
}

// Delete removes id with all of its subtasks and scrubs the removed ids from
// the dependencies of every other task in the project. Deleting an unknown
// task is not an error; the returned plan is simply empty.
func (s *Service) Delete(ctx context.Context, id string) (*DeletePlan, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			return &DeletePlan{Removed: []string{}}, nil
		}
		return nil, err
	}
	defer s.lock(current.ProjectID)()

	snap, err := s.snapshot(ctx, current.ProjectID)
	if err != nil {
		return nil, err
	}
	plan := PlanDelete(snap, id)
	if !plan.Deleted() {
		return plan, nil
	}
	if err := s.applyDelete(ctx, snap, plan); err != nil {
		return nil, err
	}

	updated := make([]string, len(plan.Updated))
	for i, t := range plan.Updated {
		updated[i] = t.ID
	}
	clog.AddTask(ctx, current.ProjectID, id)
	s.record(ctx, Event{
		Action:    ActionDelete,
		ProjectID: current.ProjectID,
		TaskID:    current.ID,
		TaskName:  current.Name,
		Details:   map[string]any{"removed_ids": plan.Removed, "updated_ids": updated},
	})
	return plan, nil
}

// applyDelete writes plan to the repository. Without repository transactions
// the rows already touched are restored when a later write fails.
func (s *Service) applyDelete(ctx context.Context, snap *Snapshot, plan *DeletePlan) error {
	now := s.now()
	for _, t := range plan.Updated {
		t.UpdatedAt = now
	}
	if tx, ok := s.repo.(TransactionalRepository); ok {
		return tx.ApplyDelete(ctx, plan)
	}

	var touched, removed []*Task
	rollback := func(cause error) error {
		var errs []error
		for _, t := range removed {
			if err := s.repo.Create(ctx, t); err != nil {
				errs = append(errs, fmt.Errorf("restore task %s: %w", t.ID, err))
			}
		}
		for _, t := range touched {
			if err := s.repo.Update(ctx, t); err != nil {
				errs = append(errs, fmt.Errorf("restore dependencies of %s: %w", t.ID, err))
			}
		}
		if len(errs) > 0 {
			slog.ErrorContext(ctx, "cascade delete rollback incomplete", "error", errors.Join(errs...))
		}
		return cause
	}

	for _, t := range plan.Updated {
		if err := s.repo.Update(ctx, t); err != nil {
			return rollback(err)
		}
		orig, _ := snap.Get(t.ID)
		touched = append(touched, orig)
	}
	// Deepest subtasks go first so an interrupted delete never leaves orphans.
	for _, id := range slices.Backward(plan.Removed) {
		if err := s.repo.Delete(ctx, id); err != nil {
			if cerr.IsCode(err, cerr.NotFound) {
				continue
			}
			return rollback(err)
		}
		orig, _ := snap.Get(id)
		removed = append(removed, orig)
	}
	return nil
}

// DeleteProject removes every task of projectID. The graph is dropped as a
// whole, so no dependency scrubbing is needed. finalize, when not nil, runs
// after the tasks are gone and before the project lock is released; it is
// where the caller removes the project itself.
func (s *Service) DeleteProject(ctx context.Context, projectID string, finalize func(context.Context) error) (int, error) {
	defer s.lock(projectID)()

	snap, err := s.snapshot(ctx, projectID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range slices.Backward(snap.Tasks()) {
		if err := s.repo.Delete(ctx, t.ID); err != nil && !cerr.IsCode(err, cerr.NotFound) {
			return n, err
		}
		n++
	}
	if finalize != nil {
		if err := finalize(ctx); err != nil {
			return n, err
		}
	}
	return n, nil
}

// ValidateDependencies filters candidates for taskID against the current
// state of projectID. Nothing is written.
func (s *Service) ValidateDependencies(ctx context.Context, projectID, taskID string, candidates []string) ([]string, error) {
	snap, err := s.snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return ValidateDependencies(snap, taskID, candidates), nil
}

// CriticalPath returns the tasks of the project's critical path, from the
// last task back to the first.
func (s *Service) CriticalPath(ctx context.Context, projectID string) ([]*Task, error) {
	snap, err := s.snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ids := CriticalPath(snap)
	path := make([]*Task, 0, len(ids))
	for _, id := range ids {
		t, _ := snap.Get(id)
		path = append(path, t)
	}
	return path, nil
}

func (s *Service) Stats(ctx context.Context, projectID string) (*Stats, error) {
	snap, err := s.snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return Summarize(snap, s.now()), nil
}

func (s *Service) record(ctx context.Context, e Event) {
	if err := s.sink.Record(ctx, e); err != nil {
		slog.WarnContext(ctx, "failed to record task event", "action", e.Action, "task_id", e.TaskID, "error", err)
	}
}

// normalize applies defaults and rejects malformed field values.
func normalize(t *Task) error {
	if t.Name == "" {
		return errInvalidField("name", "task name must not be empty")
	}
	if t.Progress < 0 || t.Progress > 100 {
		return errInvalidField("progress", fmt.Sprintf("progress %v is outside 0-100", t.Progress))
	}
	if t.StartDate.IsZero() {
		return errInvalidField("start_date", "start_date is required")
	}
	if t.IsMilestone || t.EndDate.IsZero() {
		t.EndDate = t.StartDate
	}
	if t.EndDate.Before(t.StartDate) {
		return errInvalidField("end_date", fmt.Sprintf("end_date %s is before start_date %s",
			t.EndDate.Format(DateLayout), t.StartDate.Format(DateLayout)))
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if !t.Priority.Valid() {
		return errInvalidField("priority", fmt.Sprintf("unknown priority %q", t.Priority))
	}
	if t.Color == "" {
		t.Color = DefaultColor
	}
	if t.Dependencies == nil {
		t.Dependencies = []string{}
	}
	return nil
}

// dedupe keeps the first occurrence of every id.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func withDropped(details map[string]any, dropped []string) map[string]any {
	if len(dropped) > 0 {
		details["dropped_dependencies"] = dropped
	}
	return details
}
