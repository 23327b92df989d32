package ingest

import "sync"

// ProcessedSet holds the filenames handled successfully during this run.
// It only grows.
type ProcessedSet struct {
	mu    sync.RWMutex
	names map[string]struct{}
	order []string
}

// NewProcessedSet returns an empty set.
func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{names: make(map[string]struct{})}
}

func (s *ProcessedSet) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.names[name]
	return ok
}

// Add records name, returning false when it was already present.
func (s *ProcessedSet) Add(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.names[name]; ok {
		return false
	}
	s.names[name] = struct{}{}
	s.order = append(s.order, name)
	return true
}

func (s *ProcessedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// Names returns the members in insertion order.
func (s *ProcessedSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}
