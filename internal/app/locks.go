package app

import "sync"

// sectionLocks hands out one mutex per (project, section) pair so that
// concurrent chat and draft writes for the same section are serialized
// while unrelated sections proceed in parallel. Entries are never pruned:
// the map is bounded by the number of sections written to in this process
// (a few dozen bytes each). TODO: switch to reference-counted release if
// section counts ever make this matter.
type sectionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSectionLocks() *sectionLocks {
	return &sectionLocks{locks: make(map[string]*sync.Mutex)}
}

func (s *sectionLocks) lock(projectID, sectionID string) *sync.Mutex {
	key := projectID + "/" + sectionID
	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m
}
