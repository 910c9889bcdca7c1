package project

import (
	"context"
	"log/slog"
	"time"
)

// EnsureDefault creates the default project when the store holds none, so a
// fresh installation has somewhere to put its first tasks.
func EnsureDefault(ctx context.Context, repo Repository, now time.Time) (*Project, error) {
	projects, total, err := repo.List(ctx, 1, 0)
	if err != nil {
		return nil, err
	}
	if total > 0 {
		return projects[0], nil
	}
	y, m, d := now.Date()
	p := &Project{
		ID:          DefaultID,
		Name:        DefaultName,
		Description: "Sample project",
		StartDate:   time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Color:       DefaultColor,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Create(ctx, p); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "created default project", "project_id", p.ID)
	return p, nil
}
