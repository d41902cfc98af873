package tabstate

// Store maps tab identifiers to their navigation state. Entries are created
// lazily and deleted when the owning tab closes. The store carries no lock of
// its own: all mutation is serialized by the engine that owns it.
type Store struct {
	tabs map[string]*TabState
}

func NewStore() *Store {
	return &Store{tabs: make(map[string]*TabState)}
}

// Get returns the state for a tab, lazily creating a zeroed entry.
func (s *Store) Get(tabID string) *TabState {
	st, ok := s.tabs[tabID]
	if !ok {
		st = &TabState{}
		s.tabs[tabID] = st
	}
	return st
}

// Lookup returns the state for a tab without creating one.
func (s *Store) Lookup(tabID string) (*TabState, bool) {
	st, ok := s.tabs[tabID]
	return st, ok
}

// Remove deletes a tab's entry.
func (s *Store) Remove(tabID string) {
	delete(s.tabs, tabID)
}

// TabIDs returns the identifiers of all tracked tabs.
func (s *Store) TabIDs() []string {
	ids := make([]string, 0, len(s.tabs))
	for id := range s.tabs {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of tracked tabs.
func (s *Store) Count() int {
	return len(s.tabs)
}
