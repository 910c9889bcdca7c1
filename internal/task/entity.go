package task

import (
	"slices"
	"time"
)

const DateLayout = "2006-01-02"

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

const DefaultColor = "#4285f4"

type Task struct {
	ID           string    `yaml:"id"`
	ProjectID    string    `yaml:"project_id"`
	Name         string    `yaml:"name"`
	Description  string    `yaml:"description"`
	StartDate    time.Time `yaml:"start_date"`
	EndDate      time.Time `yaml:"end_date"`
	Progress     float64   `yaml:"progress"`
	Color        string    `yaml:"color"`
	Dependencies []string  `yaml:"dependencies"`
	IsMilestone  bool      `yaml:"is_milestone"`
	ParentID     string    `yaml:"parent_id"`
	AssignedTo   string    `yaml:"assigned_to"`
	Priority     Priority  `yaml:"priority"`
	CreatedAt    time.Time `yaml:"created_at"`
	UpdatedAt    time.Time `yaml:"updated_at"`
}

// Clone returns a copy that shares no slices with t.
func (t *Task) Clone() *Task {
	c := *t
	c.Dependencies = slices.Clone(t.Dependencies)
	return &c
}

func (t *Task) IsRoot() bool {
	return t.ParentID == ""
}

// Duration is the inclusive length of the task in days; milestones are 0.
func (t *Task) Duration() int {
	if t.IsMilestone {
		return 0
	}
	return int(t.EndDate.Sub(t.StartDate).Hours()/24) + 1
}

// Status is derived from progress and dates on every read and never stored.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusOverdue    Status = "overdue"
)

func (t *Task) Status(now time.Time) Status {
	switch {
	case t.Progress >= 100:
		return StatusCompleted
	case t.EndDate.Before(truncateDay(now)):
		return StatusOverdue
	case t.Progress > 0:
		return StatusInProgress
	default:
		return StatusNotStarted
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
