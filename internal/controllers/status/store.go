package status

import (
	"sync"
	"time"

	"github.com/chrissnell/fluxprep/internal/pipeline"
)

// RunStatus is the latest run as served by /runs/latest
type RunStatus struct {
	Report    *pipeline.Report `json:"report,omitempty"`
	Error     string           `json:"error,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store holds the latest run and the last known summary of every day
type Store struct {
	mu     sync.RWMutex
	latest *RunStatus
	days   map[string]pipeline.DaySummary
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{days: make(map[string]pipeline.DaySummary)}
}

// Update records the outcome of a run. Day summaries are only replaced by
// successful runs.
func (s *Store) Update(rep *pipeline.Report, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &RunStatus{Report: rep, UpdatedAt: time.Now()}
	if runErr != nil {
		st.Error = runErr.Error()
	}
	s.latest = st

	if runErr == nil && rep != nil {
		for _, d := range rep.Days {
			s.days[d.Date] = d
		}
	}
}

// Latest returns the latest run, or nil before the first run finished
func (s *Store) Latest() *RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Day returns the last known summary for a YYYY-MM-DD date
func (s *Store) Day(date string) (pipeline.DaySummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.days[date]
	return d, ok
}
