package main

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/kazz187/gantt/internal/task"
)

// dependencyDiff renders the change to one task's dependency list as a
// unified diff, one id per line.
func dependencyDiff(before, after *task.Task) (string, error) {
	var a []string
	if before != nil {
		a = before.Dependencies
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        lines(a),
		B:        lines(after.Dependencies),
		FromFile: "a/" + after.ID + " (" + after.Name + ")",
		ToFile:   "b/" + after.ID + " (" + after.Name + ")",
		Context:  len(a) + len(after.Dependencies),
	})
}

func lines(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id + "\n"
	}
	return out
}

func colorDiff(diff string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			b.WriteString(bold(line))
		case strings.HasPrefix(line, "-"):
			b.WriteString(red(line))
		case strings.HasPrefix(line, "+"):
			b.WriteString(green(line))
		default:
			b.WriteString(line)
		}
	}
	return b.String()
}
