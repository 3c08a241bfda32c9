package explorer

import "sort"

// Selection is a set of record ids picked by the user. The zero value is
// an empty selection ready to use.
type Selection struct {
	ids map[string]struct{}
}

// Toggle flips the membership of id and reports whether it is now selected.
func (s *Selection) Toggle(id string) bool {
	if s.Has(id) {
		delete(s.ids, id)
		return false
	}
	s.Add(id)
	return true
}

// Add selects the given ids.
func (s *Selection) Add(ids ...string) {
	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

// Remove deselects the given ids.
func (s *Selection) Remove(ids ...string) {
	for _, id := range ids {
		delete(s.ids, id)
	}
}

// Has reports whether id is selected.
func (s *Selection) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of selected ids.
func (s *Selection) Len() int {
	return len(s.ids)
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.ids = nil
}

// IDs returns the selected ids in sorted order.
func (s *Selection) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Pick returns the records of items whose id is selected, in input order.
func Pick[T any](s *Selection, items []T, id func(T) string) []T {
	var out []T
	for _, it := range items {
		if s.Has(id(it)) {
			out = append(out, it)
		}
	}
	return out
}
