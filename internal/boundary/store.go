package boundary

// Store holds the per-dataset ordered boundary lists. List order is match
// priority: the first boundary containing a point wins. The store itself is
// not goroutine-safe; the engine serializes all mutations.
type Store struct {
	sets  map[int64][]Boundary
	multi bool
}

// NewStore returns an empty store. Multi-boundary mode starts disabled, so
// each newly built boundary replaces the dataset's set.
func NewStore() *Store {
	return &Store{sets: make(map[int64][]Boundary)}
}

// SetMulti enables or disables multi-boundary mode.
func (s *Store) SetMulti(enabled bool) { s.multi = enabled }

// Multi reports whether multi-boundary mode is enabled.
func (s *Store) Multi() bool { return s.multi }

// Add inserts a boundary for its dataset. With multi mode disabled the new
// boundary replaces the whole set; enabled, it appends at lowest priority.
func (s *Store) Add(b Boundary) {
	if s.multi {
		s.sets[b.DatasetID] = append(s.sets[b.DatasetID], b)
		return
	}
	s.sets[b.DatasetID] = []Boundary{b}
}

// RemoveByID deletes the boundary with the given id from the dataset's set.
// It reports whether a boundary was removed.
func (s *Store) RemoveByID(datasetID int64, id string) bool {
	list := s.sets[datasetID]
	for i, b := range list {
		if b.ID == id {
			s.sets[datasetID] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes every boundary for the dataset.
func (s *Store) Clear(datasetID int64) {
	delete(s.sets, datasetID)
}

// List returns the ordered boundary list for the dataset. The returned slice
// is a copy; mutating it does not affect the store.
func (s *Store) List(datasetID int64) []Boundary {
	return append([]Boundary(nil), s.sets[datasetID]...)
}

// All returns every boundary across datasets, dataset by dataset, preserving
// per-dataset priority order. Used when persisting the preference snapshot.
func (s *Store) All() []Boundary {
	var out []Boundary
	for _, list := range s.sets {
		out = append(out, list...)
	}
	return out
}

// Replace swaps in a full boundary list, regrouping by dataset and keeping
// the list order within each dataset. Used when adopting a remote snapshot.
func (s *Store) Replace(boundaries []Boundary) {
	s.sets = make(map[int64][]Boundary)
	for _, b := range boundaries {
		s.sets[b.DatasetID] = append(s.sets[b.DatasetID], b)
	}
}
