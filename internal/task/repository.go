package task

import (
	"context"
	"sort"
)

type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	// List returns the tasks of one project ordered by creation time, then id.
	List(ctx context.Context, projectID string) ([]*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
}

// TransactionalRepository is implemented by stores that can apply a whole
// cascade delete in one transaction.
type TransactionalRepository interface {
	Repository
	ApplyDelete(ctx context.Context, plan *DeletePlan) error
}

// SortTasks orders tasks the way Repository.List promises.
func SortTasks(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}
