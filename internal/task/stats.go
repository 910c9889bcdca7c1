package task

import "time"

type Stats struct {
	TotalTasks         int              `json:"total_tasks"`
	CompletedTasks     int              `json:"completed_tasks"`
	InProgressTasks    int              `json:"in_progress_tasks"`
	OverdueTasks       int              `json:"overdue_tasks"`
	NotStartedTasks    int              `json:"not_started_tasks"`
	CompletionRate     float64          `json:"completion_rate"`
	AverageProgress    float64          `json:"average_progress"`
	TotalDuration      int              `json:"total_duration_days"`
	ProjectDuration    int              `json:"project_duration_days"`
	StartDate          string           `json:"start_date,omitempty"`
	EndDate            string           `json:"end_date,omitempty"`
	RegularTasks       int              `json:"regular_tasks"`
	Milestones         int              `json:"milestones"`
	Priorities         map[Priority]int `json:"priorities"`
	CriticalPathLength int              `json:"critical_path_length"`
}

// Summarize computes the project statistics shown on the dashboard.
func Summarize(snap *Snapshot, now time.Time) *Stats {
	st := &Stats{Priorities: map[Priority]int{}}
	tasks := snap.Tasks()
	if len(tasks) == 0 {
		return st
	}

	var start, end time.Time
	var progress float64
	for i, t := range tasks {
		switch t.Status(now) {
		case StatusCompleted:
			st.CompletedTasks++
		case StatusInProgress:
			st.InProgressTasks++
		case StatusOverdue:
			st.OverdueTasks++
		default:
			st.NotStartedTasks++
		}
		if t.IsMilestone {
			st.Milestones++
		} else {
			st.RegularTasks++
		}
		st.Priorities[t.Priority]++
		st.TotalDuration += t.Duration()
		progress += t.Progress

		if i == 0 || t.StartDate.Before(start) {
			start = t.StartDate
		}
		if i == 0 || t.EndDate.After(end) {
			end = t.EndDate
		}
	}

	st.TotalTasks = len(tasks)
	st.CompletionRate = float64(st.CompletedTasks) / float64(st.TotalTasks) * 100
	st.AverageProgress = progress / float64(st.TotalTasks)
	st.StartDate = start.Format(DateLayout)
	st.EndDate = end.Format(DateLayout)
	st.ProjectDuration = int(end.Sub(start).Hours() / 24)
	st.CriticalPathLength = len(CriticalPath(snap))
	return st
}
