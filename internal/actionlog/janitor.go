package actionlog

import (
	"context"
	"log/slog"
	"time"
)

// Janitor prunes entries older than the retention window.
type Janitor struct {
	repo      Repository
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

func NewJanitor(repo Repository, retention, interval time.Duration) *Janitor {
	return &Janitor{repo: repo, retention: retention, interval: interval, now: time.Now}
}

// Prune deletes everything older than the retention window once.
func (j *Janitor) Prune(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.retention)
	n, err := j.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return n, err
	}
	if n > 0 {
		slog.InfoContext(ctx, "pruned action logs", "deleted", n, "cutoff", cutoff)
	}
	return n, nil
}

// Run prunes immediately and then on every interval until ctx is done.
// A failed pass is logged and retried on the next tick.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		if _, err := j.Prune(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to prune action logs", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
