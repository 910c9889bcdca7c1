package actionlog

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	// List returns the newest limit entries matching f, oldest first. A limit
	// of zero returns all of them.
	List(ctx context.Context, f Filter, limit int) ([]*Entry, error)
	// DeleteBefore removes entries older than cutoff and reports how many.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}
