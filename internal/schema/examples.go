package schema

// ExampleSet is an insertion-ordered set of strings with a fixed capacity.
// Adds beyond the capacity are ignored.
type ExampleSet struct {
	limit  int
	values []string
	index  map[string]struct{}
}

func NewExampleSet(limit int) *ExampleSet {
	if limit < 0 {
		limit = 0
	}
	return &ExampleSet{
		limit:  limit,
		values: make([]string, 0, limit),
		index:  make(map[string]struct{}, limit),
	}
}

// Add inserts v unless it is already present or the set is full.
// It reports whether v was inserted.
func (s *ExampleSet) Add(v string) bool {
	if len(s.values) >= s.limit {
		return false
	}
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.values = append(s.values, v)
	return true
}

func (s *ExampleSet) Len() int { return len(s.values) }

func (s *ExampleSet) Full() bool { return len(s.values) >= s.limit }

// Values returns a copy of the members in first-seen order.
func (s *ExampleSet) Values() []string {
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}
