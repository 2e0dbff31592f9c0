package reach

import "slices"

// WatchSet holds the identities still being searched for.
type WatchSet struct {
	ids map[ID]struct{}
}

// NewWatchSet creates an empty watch set.
func NewWatchSet() *WatchSet {
	return &WatchSet{ids: make(map[ID]struct{})}
}

// Add starts watching id. Adding an identity twice is harmless.
func (s *WatchSet) Add(id ID) {
	s.ids[id] = struct{}{}
}

// Has reports whether id is still pending.
func (s *WatchSet) Has(id ID) bool {
	_, ok := s.ids[id]
	return ok
}

// Remove stops watching id and reports whether it was pending.
func (s *WatchSet) Remove(id ID) bool {
	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	return true
}

// Len returns the number of pending identities.
func (s *WatchSet) Len() int {
	return len(s.ids)
}

// Pending returns the pending identities in ascending order.
func (s *WatchSet) Pending() []ID {
	out := make([]ID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Clear forgets every identity.
func (s *WatchSet) Clear() {
	clear(s.ids)
}
