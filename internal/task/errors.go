package task

import (
	"fmt"

	"github.com/kazz187/gantt/pkg/cerr"
)

// Rule ids attached to error details so clients can tell failures apart
// without parsing messages.
const (
	RuleTaskNotFound       = "task.not_found"
	RuleParentNotFound     = "task.parent.not_found"
	RulePromoteRoot        = "task.promote.root"
	RuleMilestoneParent    = "task.parent.milestone"
	RuleParentCycle        = "task.parent.cycle"
	RuleParentProject      = "task.parent.project"
	RuleMilestoneWithChild = "task.milestone.has_subtasks"
	RuleInvalidField       = "task.field.invalid"
)

func errTaskNotFound(id string) error {
	return cerr.NewError(cerr.NotFound, "task not found", nil).
		AddDetailMessageWithCode(fmt.Sprintf("task %q does not exist", id), RuleTaskNotFound)
}

func errParentNotFound(id string) error {
	return cerr.NewError(cerr.NotFound, "parent task not found", nil).
		AddDetailMessageWithCode(fmt.Sprintf("parent task %q does not exist", id), RuleParentNotFound)
}

// errInvalidState covers operations that are well formed but not allowed for
// the task in its current state.
func errInvalidState(msg, detail, rule string) error {
	return cerr.NewError(cerr.FailedPrecondition, msg, nil).AddDetailMessageWithCode(detail, rule)
}

func errInvalidField(field, detail string) error {
	return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid %s", field), nil).
		AddDetailMessageWithCode(detail, RuleInvalidField)
}
