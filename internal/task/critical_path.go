package task

// CriticalPath returns the longest chain of predecessors in snap, measured in
// tasks, ordered from the task that ends the chain back to the task with no
// predecessors that starts it. An empty snapshot yields an empty path.
//
// Ties are broken by position: the first task in snapshot order with the
// greatest chain length ends the path, and at each step the first predecessor
// in the task's own dependency list with the greatest chain length is
// followed.
func CriticalPath(snap *Snapshot) []string {
	if snap.Len() == 0 {
		return []string{}
	}
	lengths := newChainLengths(snap)

	var last *Task
	best := -1
	for _, t := range snap.Tasks() {
		if l := lengths.of(t.ID); l > best {
			best, last = l, t
		}
	}

	path := []string{last.ID}
	onPath := map[string]struct{}{last.ID: {}}
	for cur := last; ; {
		var next *Task
		nextLen := -1
		for _, dep := range cur.Dependencies {
			if _, seen := onPath[dep]; seen {
				continue
			}
			t, ok := snap.Get(dep)
			if !ok {
				continue
			}
			if l := lengths.of(dep); l > nextLen {
				next, nextLen = t, l
			}
		}
		if next == nil {
			return path
		}
		path = append(path, next.ID)
		onPath[next.ID] = struct{}{}
		cur = next
	}
}

// ChainLength is the number of tasks on the longest predecessor chain ending
// at id: 1 for a task without dependencies, 0 for an unknown id.
func ChainLength(snap *Snapshot, id string) int {
	return newChainLengths(snap).of(id)
}

// chainLengths memoizes chain lengths for one snapshot. A predecessor that is
// already on the recursion path counts 0, so a loop ends the chain instead of
// recursing forever. Lengths computed through such a cut depend on where the
// walk entered the loop and are therefore not memoized.
type chainLengths struct {
	snap   *Snapshot
	memo   map[string]int
	onPath map[string]struct{}
}

func newChainLengths(snap *Snapshot) *chainLengths {
	return &chainLengths{
		snap:   snap,
		memo:   make(map[string]int, snap.Len()),
		onPath: make(map[string]struct{}),
	}
}

func (c *chainLengths) of(id string) int {
	l, _ := c.compute(id)
	return l
}

func (c *chainLengths) compute(id string) (length int, cut bool) {
	if l, ok := c.memo[id]; ok {
		return l, false
	}
	if _, loop := c.onPath[id]; loop {
		return 0, true
	}
	t, ok := c.snap.Get(id)
	if !ok {
		return 0, false
	}

	c.onPath[id] = struct{}{}
	longest := 0
	for _, dep := range t.Dependencies {
		l, depCut := c.compute(dep)
		cut = cut || depCut
		longest = max(longest, l)
	}
	delete(c.onPath, id)

	length = 1 + longest
	if !cut {
		c.memo[id] = length
	}
	return length, cut
}
