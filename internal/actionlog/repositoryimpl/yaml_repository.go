package repositoryimpl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/gantt/internal/actionlog"
	"github.com/kazz187/gantt/pkg/cerr"
	"github.com/kazz187/gantt/pkg/storage"
)

const actionLogsPrefix = "action_logs"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", actionLogsPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, e *actionlog.Entry) error {
	exists, err := r.storage.Exists(ctx, path(e.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("action_log", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "action log already exists", nil)
	}
	data, err := yaml.Marshal(e)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal action log: %w", err))
	}
	if err := r.storage.Write(ctx, path(e.ID), data); err != nil {
		return cerr.WrapStorageWriteError("action_log", err)
	}
	return nil
}

func (r *YAMLRepository) List(ctx context.Context, f actionlog.Filter, limit int) ([]*actionlog.Entry, error) {
	all, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}
	entries := []*actionlog.Entry{}
	for _, e := range all {
		if f.Match(e) {
			entries = append(entries, e)
		}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (r *YAMLRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	all, err := r.readAll(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range all {
		if !e.Timestamp.Before(cutoff) {
			continue
		}
		if err := r.storage.Delete(ctx, path(e.ID)); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return n, cerr.WrapStorageDeleteError("action_log", err)
		}
		n++
	}
	return n, nil
}

// readAll returns every readable entry ordered by timestamp, then id.
func (r *YAMLRepository) readAll(ctx context.Context) ([]*actionlog.Entry, error) {
	paths, err := r.storage.List(ctx, actionLogsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("action_logs", err)
	}
	var all []*actionlog.Entry
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable action log file", "path", p, "error", err)
			continue
		}
		var e actionlog.Entry
		if err := yaml.Unmarshal(data, &e); err != nil {
			slog.WarnContext(ctx, "skipping malformed action log file", "path", p, "error", err)
			continue
		}
		all = append(all, &e)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].Timestamp.Before(all[j].Timestamp)
		}
		return all[i].ID < all[j].ID
	})
	return all, nil
}
