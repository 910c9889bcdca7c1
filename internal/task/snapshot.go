package task

// Snapshot is the read-only view of one project's tasks that every graph
// operation in this package works on. It is built fresh for each call and
// never mutated; the order of the slice it was built from is the iteration
// order used for every tie-break.
type Snapshot struct {
	order    []*Task
	byID     map[string]*Task
	children map[string][]*Task
}

// NewSnapshot indexes tasks. When an id repeats, the first occurrence wins.
func NewSnapshot(tasks []*Task) *Snapshot {
	s := &Snapshot{
		order:    make([]*Task, 0, len(tasks)),
		byID:     make(map[string]*Task, len(tasks)),
		children: make(map[string][]*Task),
	}
	for _, t := range tasks {
		if t == nil {
			continue
		}
		if _, dup := s.byID[t.ID]; dup {
			continue
		}
		s.order = append(s.order, t)
		s.byID[t.ID] = t
		if t.ParentID != "" {
			s.children[t.ParentID] = append(s.children[t.ParentID], t)
		}
	}
	return s
}

func (s *Snapshot) Len() int {
	return len(s.order)
}

func (s *Snapshot) Get(id string) (*Task, bool) {
	t, ok := s.byID[id]
	return t, ok
}

func (s *Snapshot) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Tasks returns the tasks in snapshot order. The slice must not be modified.
func (s *Snapshot) Tasks() []*Task {
	return s.order
}

// Children returns the direct subtasks of parentID in snapshot order.
func (s *Snapshot) Children(parentID string) []*Task {
	return s.children[parentID]
}
