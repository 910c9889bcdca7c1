package note

import (
	"context"
	"time"
)

type Repository interface {
	Get(ctx context.Context, projectID string, date time.Time) (*Note, error)
	// List returns the notes of projectID, newest date first.
	List(ctx context.Context, projectID string) ([]*Note, error)
	// Put stores n as the note of its project and date, replacing any note
	// already there.
	Put(ctx context.Context, n *Note) error
	Delete(ctx context.Context, projectID string, date time.Time) error
	DeleteByProject(ctx context.Context, projectID string) (int, error)
}
