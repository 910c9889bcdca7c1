package task

import (
	"fmt"
	"slices"
)

// DeletePlan is the pure half of a cascade delete: what has to be removed and
// which surviving tasks need new dependency lists. Applying it is up to the
// caller and has to happen in one storage transaction to be atomic.
type DeletePlan struct {
	// Removed holds the deleted task followed by all of its transitive
	// subtasks, depth first in snapshot order. Empty when the task is unknown.
	Removed []string
	// Updated holds every surviving task that referenced a removed task,
	// already carrying its scrubbed dependency list.
	Updated []*Task
}

func (p *DeletePlan) Deleted() bool {
	return len(p.Removed) > 0
}

// PlanDelete computes the cascade for deleting taskID from snap.
func PlanDelete(snap *Snapshot, taskID string) *DeletePlan {
	plan := &DeletePlan{Removed: []string{}}
	if !snap.Has(taskID) {
		return plan
	}

	plan.Removed = subtree(snap, taskID)
	removed := make(map[string]struct{}, len(plan.Removed))
	for _, id := range plan.Removed {
		removed[id] = struct{}{}
	}

	for _, t := range snap.Tasks() {
		if _, gone := removed[t.ID]; gone {
			continue
		}
		kept := slices.DeleteFunc(slices.Clone(t.Dependencies), func(dep string) bool {
			_, gone := removed[dep]
			return gone
		})
		if len(kept) == len(t.Dependencies) {
			continue
		}
		updated := t.Clone()
		updated.Dependencies = kept
		plan.Updated = append(plan.Updated, updated)
	}
	return plan
}

// Descendants returns every transitive subtask of taskID in snapshot order,
// depth first. taskID itself is not included.
func Descendants(snap *Snapshot, taskID string) []string {
	if !snap.Has(taskID) {
		return nil
	}
	return subtree(snap, taskID)[1:]
}

// subtree returns taskID followed by its transitive subtasks. A parent_id
// loop is walked once.
func subtree(snap *Snapshot, taskID string) []string {
	var ids []string
	seen := make(map[string]struct{})
	var collect func(id string)
	collect = func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		for _, child := range snap.Children(id) {
			collect(child.ID)
		}
	}
	collect(taskID)
	return ids
}

// Promote detaches taskID from its parent, turning it into a root task. The
// returned task is a copy; snap is left untouched.
func Promote(snap *Snapshot, taskID string) (*Task, error) {
	t, ok := snap.Get(taskID)
	if !ok {
		return nil, errTaskNotFound(taskID)
	}
	if t.IsRoot() {
		return nil, errInvalidState(
			"task is already a root task",
			fmt.Sprintf("task %q (%s) has no parent to be promoted from", t.ID, t.Name),
			RulePromoteRoot,
		)
	}
	promoted := t.Clone()
	promoted.ParentID = ""
	return promoted, nil
}

// PrepareSubtask places t under parentID: it checks the parent, copies the
// parent's project onto t and filters t's dependencies. t must already carry
// its id. The returned task is a copy.
func PrepareSubtask(snap *Snapshot, parentID string, t *Task) (*Task, error) {
	parent, ok := snap.Get(parentID)
	if !ok {
		return nil, errParentNotFound(parentID)
	}
	if parent.IsMilestone {
		return nil, errInvalidState(
			"milestones cannot have subtasks",
			fmt.Sprintf("parent task %q (%s) is a milestone", parent.ID, parent.Name),
			RuleMilestoneParent,
		)
	}
	sub := t.Clone()
	sub.ParentID = parent.ID
	sub.ProjectID = parent.ProjectID
	sub.Dependencies = ValidateDependencies(snap, sub.ID, sub.Dependencies)
	return sub, nil
}

// ValidateParent checks that taskID may be moved under parentID. An empty
// parentID (making taskID a root) is always allowed.
func ValidateParent(snap *Snapshot, taskID, parentID string) error {
	if parentID == "" {
		return nil
	}
	parent, ok := snap.Get(parentID)
	if !ok {
		return errParentNotFound(parentID)
	}
	if parent.IsMilestone {
		return errInvalidState(
			"milestones cannot have subtasks",
			fmt.Sprintf("parent task %q (%s) is a milestone", parent.ID, parent.Name),
			RuleMilestoneParent,
		)
	}
	if t, ok := snap.Get(taskID); ok && t.ProjectID != parent.ProjectID {
		return errInvalidState(
			"parent belongs to another project",
			fmt.Sprintf("parent task %q is in project %q, task %q is in %q", parent.ID, parent.ProjectID, t.ID, t.ProjectID),
			RuleParentProject,
		)
	}
	if parentID == taskID || slices.Contains(Descendants(snap, taskID), parentID) {
		return errInvalidState(
			"task cannot be moved under itself",
			fmt.Sprintf("task %q is %q or one of its subtasks", parentID, taskID),
			RuleParentCycle,
		)
	}
	return nil
}

// ValidateMilestone rejects turning a task that owns subtasks into a
// milestone.
func ValidateMilestone(snap *Snapshot, taskID string) error {
	if children := snap.Children(taskID); len(children) > 0 {
		return errInvalidState(
			"milestones cannot have subtasks",
			fmt.Sprintf("task %q has %d subtasks", taskID, len(children)),
			RuleMilestoneWithChild,
		)
	}
	return nil
}
