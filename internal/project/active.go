package project

import (
	"context"
	"time"

	"github.com/kazz187/gantt/pkg/cerr"
)

// ActiveProject returns the active project, the first in creation order if
// the store somehow holds several. NotFound when none is active.
func ActiveProject(ctx context.Context, repo Repository) (*Project, error) {
	projects, _, err := repo.List(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		if p.IsActive {
			return p, nil
		}
	}
	return nil, cerr.NewError(cerr.NotFound, "no active project", nil).
		AddDetailMessageWithCode("no project is marked active", "project.active.none")
}

// Activate marks id as the only active project.
func Activate(ctx context.Context, repo Repository, id string, now time.Time) (*Project, error) {
	p, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := deactivateOthers(ctx, repo, id, now); err != nil {
		return nil, err
	}
	if !p.IsActive {
		p.IsActive = true
		p.UpdatedAt = now
		if err := repo.Update(ctx, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func deactivateOthers(ctx context.Context, repo Repository, keepID string, now time.Time) error {
	projects, _, err := repo.List(ctx, 0, 0)
	if err != nil {
		return err
	}
	for _, p := range projects {
		if p.ID == keepID || !p.IsActive {
			continue
		}
		p.IsActive = false
		p.UpdatedAt = now
		if err := repo.Update(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
