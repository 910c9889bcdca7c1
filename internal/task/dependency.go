package task

// ValidateDependencies returns the candidates that are safe to store as the
// predecessors of taskID: ids that exist in snap and from which no chain of
// existing dependencies leads back to taskID. Input order is preserved,
// unknown ids are dropped, and duplicates are judged (and kept) one by one.
//
// taskID does not have to be in snap yet, so it can be used while creating a
// task. The check runs against the committed graph only: accepting one
// candidate never influences the verdict on the next.
func ValidateDependencies(snap *Snapshot, taskID string, candidates []string) []string {
	valid := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if !snap.Has(id) {
			continue
		}
		if leadsBackTo(snap, id, taskID) {
			continue
		}
		valid = append(valid, id)
	}
	return valid
}

// DroppedDependencies lists, in order, the candidates ValidateDependencies
// did not accept. Duplicates are matched occurrence by occurrence.
func DroppedDependencies(candidates, accepted []string) []string {
	remaining := make(map[string]int, len(accepted))
	for _, id := range accepted {
		remaining[id]++
	}
	var dropped []string
	for _, id := range candidates {
		if remaining[id] > 0 {
			remaining[id]--
			continue
		}
		dropped = append(dropped, id)
	}
	return dropped
}

// leadsBackTo walks the dependency edges depth first from start and reports
// whether the walk reaches target or loops onto a task already on the current
// path. A loop in the existing graph is treated as unsafe even when it does
// not involve target.
//
// The on-path set belongs to one branch of the walk: it is extended on the way
// down and restored on the way back, so two branches that meet at a shared
// predecessor (a diamond) are not mistaken for a loop. cleared remembers the
// tasks whose whole predecessor graph was already walked without finding
// anything; walking them again from another branch cannot change the answer.
func leadsBackTo(snap *Snapshot, start, target string) bool {
	onPath := make(map[string]struct{})
	cleared := make(map[string]struct{})

	var walk func(id string) bool
	walk = func(id string) bool {
		if id == target {
			return true
		}
		if _, loop := onPath[id]; loop {
			return true
		}
		if _, done := cleared[id]; done {
			return false
		}
		t, ok := snap.Get(id)
		if !ok {
			// Dangling edge: nothing beyond it.
			return false
		}
		onPath[id] = struct{}{}
		for _, dep := range t.Dependencies {
			if walk(dep) {
				return true
			}
		}
		delete(onPath, id)
		cleared[id] = struct{}{}
		return false
	}
	return walk(start)
}
