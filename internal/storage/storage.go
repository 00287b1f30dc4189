package storage

import (
	"sort"
	"sync"

	"github.com/arcticwatch/arcticwatch/internal/models"
)

// RunStore keeps recent run summaries in memory for the status API.
type RunStore struct {
	runs  map[string]models.RunSummary
	order []string
	limit int
	mu    sync.RWMutex
}

// New returns a store that keeps at most limit runs (0 keeps everything).
func New(limit int) *RunStore {
	return &RunStore{
		runs:  make(map[string]models.RunSummary),
		limit: limit,
	}
}

// Record stores a run, evicting the oldest when the limit is reached.
func (s *RunStore) Record(run models.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = run

	for s.limit > 0 && len(s.order) > s.limit {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

func (s *RunStore) Get(runID string) (models.RunSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, exists := s.runs[runID]
	return run, exists
}

// All returns the stored runs, newest first.
func (s *RunStore) All() []models.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.RunSummary, 0, len(s.runs))
	for _, id := range s.order {
		result = append(result, s.runs[id])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	return result
}

func (s *RunStore) Latest() (models.RunSummary, bool) {
	all := s.All()
	if len(all) == 0 {
		return models.RunSummary{}, false
	}
	return all[0], true
}

func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
