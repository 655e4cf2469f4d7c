package pipeline

import (
	"sync"

	"metrika-etl/internal/domain"
)

// RunStore keeps the most recent run reports in memory for the status API.
// It is a bounded ring: the oldest report is evicted once capacity is
// reached. The pipeline itself stays stateless across restarts.
type RunStore struct {
	mu       sync.RWMutex
	capacity int
	reports  []domain.RunReport // newest first
}

// NewRunStore creates a store keeping up to capacity reports.
func NewRunStore(capacity int) *RunStore {
	if capacity < 1 {
		capacity = 1
	}
	return &RunStore{capacity: capacity}
}

// Add records a finished run.
func (s *RunStore) Add(report domain.RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append([]domain.RunReport{report}, s.reports...)
	if len(s.reports) > s.capacity {
		s.reports = s.reports[:s.capacity]
	}
}

// List returns all kept reports, newest first.
func (s *RunStore) List() []domain.RunReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RunReport(nil), s.reports...)
}

// Latest returns the most recent report, if any.
func (s *RunStore) Latest() (domain.RunReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.reports) == 0 {
		return domain.RunReport{}, false
	}
	return s.reports[0], true
}
