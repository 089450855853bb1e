package server

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStore remembers recent runs by id.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*RunInfo
}

// NewRunStore creates an empty run store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*RunInfo)}
}

// Start records a new run and returns its id.
func (s *RunStore) Start(hash string) *RunInfo {
	info := &RunInfo{
		RunID:   uuid.NewString(),
		Hash:    hash,
		Started: time.Now(),
	}
	s.mu.Lock()
	s.runs[info.RunID] = info
	s.mu.Unlock()
	return info
}

// Finish completes a run record.
func (s *RunStore) Finish(id string, steps uint64, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.runs[id]
	if !ok {
		return
	}
	info.Steps = steps
	info.Success = runErr == nil
	if runErr != nil {
		info.Error = runErr.Error()
	}
	info.Finished = time.Now()
}

// Get returns a copy of the run record.
func (s *RunStore) Get(id string) (RunInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.runs[id]
	if !ok {
		return RunInfo{}, false
	}
	return *info, true
}

// List returns all run records, oldest first.
func (s *RunStore) List() []RunInfo {
	s.mu.RLock()
	out := make([]RunInfo, 0, len(s.runs))
	for _, info := range s.runs {
		out = append(out, *info)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

// Sweep removes finished runs older than ttl.
func (s *RunStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, info := range s.runs {
		if !info.Finished.IsZero() && info.Finished.Before(cutoff) {
			delete(s.runs, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *RunStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
