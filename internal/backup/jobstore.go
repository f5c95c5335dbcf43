// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package backup

import (
	"sort"
	"sync"
)

// JobStore holds active jobs and the history of terminal ones. Callers
// only ever receive copies.
type JobStore struct {
	mu      sync.RWMutex
	active  map[string]*Job
	history []Job
	limit   int
}

// NewJobStore creates a store keeping at most historyLimit terminal jobs.
// Zero keeps everything.
func NewJobStore(historyLimit int) *JobStore {
	return &JobStore{active: make(map[string]*Job), limit: historyLimit}
}

// Add registers a new job.
func (s *JobStore) Add(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := job.clone()
	s.active[job.ID] = &j
}

// Update applies fn to an active job and returns the updated copy. When
// the update makes the job terminal it is also appended to history.
// Updating a terminal job is a no-op.
func (s *JobStore) Update(id string, fn func(*Job)) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.active[id]
	if !ok {
		return Job{}, false
	}
	if j.Status.IsTerminal() {
		return j.clone(), false
	}
	fn(j)
	if j.Status.IsTerminal() {
		s.history = append(s.history, j.clone())
		if s.limit > 0 && len(s.history) > s.limit {
			s.history = append([]Job(nil), s.history[len(s.history)-s.limit:]...)
		}
	}
	return j.clone(), true
}

// Remove drops a job from the active set.
func (s *JobStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

// Get returns an active job.
func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.active[id]
	if !ok {
		return Job{}, false
	}
	return j.clone(), true
}

// Active returns the active set, oldest first.
func (s *JobStore) Active() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]Job, 0, len(s.active))
	for _, j := range s.active {
		jobs = append(jobs, j.clone())
	}
	sort.Slice(jobs, func(a, b int) bool {
		if jobs[a].StartedAt.Equal(jobs[b].StartedAt) {
			return jobs[a].ID < jobs[b].ID
		}
		return jobs[a].StartedAt.Before(jobs[b].StartedAt)
	})
	return jobs
}

// Running reports whether any job is running or uploading.
func (s *JobStore) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.active {
		if j.Status == StatusPending || j.Status.IsActive() {
			return true
		}
	}
	return false
}

// History returns terminal jobs in completion order.
func (s *JobStore) History() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, len(s.history))
	for i := range s.history {
		out[i] = s.history[i].clone()
	}
	return out
}
