package task

import "time"

var day0 = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// mk builds a minimal task; the position in the slice passed to NewSnapshot
// decides tie-breaks.
func mk(id string, deps ...string) *Task {
	return &Task{
		ID:           id,
		ProjectID:    "p1",
		Name:         "task " + id,
		StartDate:    day0,
		EndDate:      day0.AddDate(0, 0, 1),
		Dependencies: deps,
		Priority:     PriorityMedium,
	}
}

func child(id, parent string, deps ...string) *Task {
	t := mk(id, deps...)
	t.ParentID = parent
	return t
}

func snapshotOf(tasks ...*Task) *Snapshot {
	return NewSnapshot(tasks)
}
