package actionlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/gantt/internal/eventbus"
	"github.com/kazz187/gantt/internal/task"
)

// Recorder stores task events as log entries and republishes them on the
// event bus for live subscribers.
type Recorder struct {
	repo Repository
	bus  *eventbus.Bus
	now  func() time.Time
}

var _ task.EventSink = (*Recorder)(nil)

func NewRecorder(repo Repository, bus *eventbus.Bus) *Recorder {
	return &Recorder{repo: repo, bus: bus, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, e task.Event) error {
	entry := &Entry{
		ID:        ulid.Make().String(),
		ProjectID: e.ProjectID,
		Action:    e.Action,
		TaskID:    e.TaskID,
		TaskName:  e.TaskName,
		Timestamp: r.now(),
		Details:   e.Details,
		User:      DefaultUser,
	}
	err := r.repo.Create(ctx, entry)
	if r.bus != nil {
		r.publish(ctx, entry)
	}
	return err
}

func (r *Recorder) publish(ctx context.Context, entry *Entry) {
	payload, err := json.Marshal(entry.Details)
	if err != nil {
		slog.WarnContext(ctx, "failed to encode event payload", "task_id", entry.TaskID, "error", err)
		payload = nil
	}
	r.bus.PublishNew(eventType(entry.Action), entry.TaskID, string(payload), map[string]string{
		"project_id": entry.ProjectID,
		"task_name":  entry.TaskName,
		"log_id":     entry.ID,
	})
}

func eventType(a task.Action) eventbus.Type {
	switch a {
	case task.ActionCreate:
		return eventbus.TypeTaskCreated
	case task.ActionDelete:
		return eventbus.TypeTaskDeleted
	case task.ActionPromote:
		return eventbus.TypeTaskPromoted
	default:
		return eventbus.TypeTaskUpdated
	}
}
