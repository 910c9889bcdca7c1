package repositoryimpl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/gantt/internal/note"
	"github.com/kazz187/gantt/pkg/cerr"
	"github.com/kazz187/gantt/pkg/storage"
)

const notesPrefix = "notes"

// YAMLRepository stores notes at notes/{project}/{date}.yaml, so the path
// itself keeps one note per project and day.
type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func projectDir(projectID string) string {
	return fmt.Sprintf("%s/%s", notesPrefix, projectID)
}

func path(projectID string, date time.Time) string {
	return fmt.Sprintf("%s/%s.yaml", projectDir(projectID), date.Format(note.DateLayout))
}

func (r *YAMLRepository) Get(ctx context.Context, projectID string, date time.Time) (*note.Note, error) {
	data, err := r.storage.Read(ctx, path(projectID, date))
	if err != nil {
		return nil, cerr.WrapStorageReadError("note", err)
	}
	var n note.Note
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal note: %w", err))
	}
	return &n, nil
}

func (r *YAMLRepository) List(ctx context.Context, projectID string) ([]*note.Note, error) {
	paths, err := r.storage.List(ctx, projectDir(projectID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("notes", err)
	}
	notes := []*note.Note{}
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable note file", "path", p, "error", err)
			continue
		}
		var n note.Note
		if err := yaml.Unmarshal(data, &n); err != nil {
			slog.WarnContext(ctx, "skipping malformed note file", "path", p, "error", err)
			continue
		}
		notes = append(notes, &n)
	}
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].Date.After(notes[j].Date)
	})
	return notes, nil
}

func (r *YAMLRepository) Put(ctx context.Context, n *note.Note) error {
	data, err := yaml.Marshal(n)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal note: %w", err))
	}
	if err := r.storage.Write(ctx, path(n.ProjectID, n.Date), data); err != nil {
		return cerr.WrapStorageWriteError("note", err)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context, projectID string, date time.Time) error {
	if err := r.storage.Delete(ctx, path(projectID, date)); err != nil {
		return cerr.WrapStorageDeleteError("note", err)
	}
	return nil
}

// DeleteByProject removes every note of projectID and reports how many went.
func (r *YAMLRepository) DeleteByProject(ctx context.Context, projectID string) (int, error) {
	paths, err := r.storage.List(ctx, projectDir(projectID))
	if err != nil {
		return 0, cerr.WrapStorageReadError("notes", err)
	}
	n := 0
	for _, p := range paths {
		if err := r.storage.Delete(ctx, p); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return n, cerr.WrapStorageDeleteError("note", err)
		}
		n++
	}
	return n, nil
}
