package heap

import "sort"

// Statistic is a node in the heap's memory-breakdown tree: a named group
// (a Space, or a Map family within a space) accumulating object counts and
// byte totals, with child nodes for finer breakdown. This mirrors
// golang.org/x/debug/internal/gocore's groupStat/leafStat tree built by
// process.go to report "bytes by type" summaries over a live process; here
// the same shape reports bytes by space and by map family over the
// collector's own simulated heap.
type Statistic struct {
	Name  string
	Count int64
	Bytes int64

	children map[string]*Statistic
	order    []string
}

// NewStatistic returns an empty, named root node.
func NewStatistic(name string) *Statistic {
	return &Statistic{Name: name, children: make(map[string]*Statistic)}
}

// Add records one object of the given byte size under this node, and
// recurses into (creating if needed) the named child path, so callers can
// do stats.Add(3*8, "old-pointer", "js-object") in one call.
func (s *Statistic) Add(bytes int64, path ...string) {
	s.Count++
	s.Bytes += bytes
	if len(path) == 0 {
		return
	}
	head, rest := path[0], path[1:]
	c, ok := s.children[head]
	if !ok {
		c = NewStatistic(head)
		s.children[head] = c
		s.order = append(s.order, head)
	}
	c.Add(bytes, rest...)
}

// Children returns this node's direct children sorted by descending byte
// total (ties broken by name), the same presentation order the teacher's
// CLI used for its breakdown report.
func (s *Statistic) Children() []*Statistic {
	out := make([]*Statistic, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.children[name])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bytes != out[j].Bytes {
			return out[i].Bytes > out[j].Bytes
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Child looks up a direct child by name without creating it.
func (s *Statistic) Child(name string) (*Statistic, bool) {
	c, ok := s.children[name]
	return c, ok
}
