package actionlog

import (
	"time"

	"github.com/kazz187/gantt/internal/task"
)

const DefaultUser = "system"

// Entry is one line of a project's audit trail.
type Entry struct {
	ID        string         `yaml:"id"`
	ProjectID string         `yaml:"project_id"`
	Action    task.Action    `yaml:"action"`
	TaskID    string         `yaml:"task_id"`
	TaskName  string         `yaml:"task_name"`
	Timestamp time.Time      `yaml:"timestamp"`
	Details   map[string]any `yaml:"details,omitempty"`
	User      string         `yaml:"user"`
}

type Filter struct {
	ProjectID string
	TaskID    string
}

// Match reports whether e passes the filter. Empty fields match anything.
func (f Filter) Match(e *Entry) bool {
	if f.ProjectID != "" && e.ProjectID != f.ProjectID {
		return false
	}
	if f.TaskID != "" && e.TaskID != f.TaskID {
		return false
	}
	return true
}

