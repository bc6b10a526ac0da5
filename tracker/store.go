package tracker

import (
	"sync"

	"github.com/terrawatch/landsat-tracker/common"
)

// LatestStore holds the most recent ready map. Polling chains write, the
// display surface reads; no history is kept. The generation counter increases
// on every write so readers can tell replacements apart. Last write wins:
// when two chains race, the final value is whichever READY response was
// processed last, not necessarily the most recent acquisition.
type LatestStore struct {
	mu         sync.Mutex
	latest     common.PublishedMap
	generation uint64
	set        bool
}

// Set stores m and returns the generation assigned to it.
func (s *LatestStore) Set(m common.PublishedMap) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.latest = m
	s.set = true
	return s.generation
}

// Latest returns the stored map and its generation. ok is false while no map
// has been published yet.
func (s *LatestStore) Latest() (m common.PublishedMap, generation uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.generation, s.set
}
