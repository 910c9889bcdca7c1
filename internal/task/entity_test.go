package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		progress float64
		end      time.Time
		want     Status
	}{
		{"completed even when late", 100, now.AddDate(0, 0, -5), StatusCompleted},
		{"overdue", 50, now.AddDate(0, 0, -1), StatusOverdue},
		{"ending today is not overdue", 0, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), StatusNotStarted},
		{"in progress", 10, now.AddDate(0, 0, 3), StatusInProgress},
		{"not started", 0, now.AddDate(0, 0, 3), StatusNotStarted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{Progress: tt.progress, StartDate: tt.end.AddDate(0, 0, -1), EndDate: tt.end}
			assert.Equal(t, tt.want, task.Status(now))
		})
	}
}

func TestTaskDuration(t *testing.T) {
	task := &Task{StartDate: day0, EndDate: day0.AddDate(0, 0, 4)}
	assert.Equal(t, 5, task.Duration())
	task.IsMilestone = true
	assert.Equal(t, 0, task.Duration())
}

func TestTaskClone(t *testing.T) {
	orig := mk("A", "B", "C")
	c := orig.Clone()
	c.Dependencies[0] = "Z"
	c.Name = "changed"
	assert.Equal(t, []string{"B", "C"}, orig.Dependencies)
	assert.Equal(t, "task A", orig.Name)
}

func TestNewSnapshot(t *testing.T) {
	first := mk("A")
	dup := mk("A")
	dup.Name = "duplicate"
	snap := NewSnapshot([]*Task{first, nil, child("B", "A"), dup, child("C", "A")})

	assert.Equal(t, 3, snap.Len())
	got, ok := snap.Get("A")
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.False(t, snap.Has("nope"))

	var children []string
	for _, c := range snap.Children("A") {
		children = append(children, c.ID)
	}
	assert.Equal(t, []string{"B", "C"}, children)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, day0, d)

	_, err = ParseDate("03/02/2026")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	done := mk("A")
	done.Progress = 100
	late := mk("B", "A")
	late.Progress = 40
	running := mk("C", "B")
	running.Progress = 20
	running.EndDate = now.AddDate(0, 0, 5)
	running.Priority = PriorityHigh
	ms := mk("M", "C")
	ms.IsMilestone = true
	ms.StartDate = now.AddDate(0, 0, 6)
	ms.EndDate = ms.StartDate

	st := Summarize(snapshotOf(done, late, running, ms), now)
	assert.Equal(t, 4, st.TotalTasks)
	assert.Equal(t, 1, st.CompletedTasks)
	assert.Equal(t, 1, st.OverdueTasks)
	assert.Equal(t, 1, st.InProgressTasks)
	assert.Equal(t, 1, st.NotStartedTasks)
	assert.Equal(t, 1, st.Milestones)
	assert.Equal(t, 3, st.RegularTasks)
	assert.InDelta(t, 25.0, st.CompletionRate, 0.001)
	assert.InDelta(t, 40.0, st.AverageProgress, 0.001)
	assert.Equal(t, 3, st.Priorities[PriorityMedium])
	assert.Equal(t, 1, st.Priorities[PriorityHigh])
	assert.Equal(t, "2026-03-02", st.StartDate)
	assert.Equal(t, "2026-03-16", st.EndDate)
	assert.Equal(t, 4, st.CriticalPathLength)

	empty := Summarize(snapshotOf(), now)
	assert.Equal(t, 0, empty.TotalTasks)
	assert.Equal(t, 0, empty.CriticalPathLength)
}
