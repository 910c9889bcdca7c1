package task

import "context"

type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionPromote Action = "promote"
)

// Event is the audit record produced for every task mutation. The service
// only produces it; formatting and storage belong to the EventSink.
type Event struct {
	Action    Action
	ProjectID string
	TaskID    string
	TaskName  string
	Details   map[string]any
}

type EventSink interface {
	Record(ctx context.Context, e Event) error
}

type nopSink struct{}

func (nopSink) Record(context.Context, Event) error { return nil }
