// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

// JobStore is an in-memory archiver.JobStore.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]archiver.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]archiver.Job)}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job archiver.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (archiver.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return archiver.Job{}, archiver.ErrNotFound
	}
	return job, nil
}

// ListJobs returns jobs newest first, optionally filtered by status.
func (s *JobStore) ListJobs(_ context.Context, status *archiver.JobStatus, limit, offset int) ([]archiver.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var jobs []archiver.Job
	for _, job := range s.jobs {
		if status != nil && job.Status != *status {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if offset >= len(jobs) {
		return nil, nil
	}
	jobs = jobs[offset:]
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// ClaimNextJob transitions the oldest queued job to running unless some job
// is already running. The whole decision happens under one lock, so two
// schedulers sharing the store cannot both claim.
func (s *JobStore) ClaimNextJob(_ context.Context, now time.Time) (archiver.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *archiver.Job
	for id := range s.jobs {
		job := s.jobs[id]
		if job.Status == archiver.JobStatusRunning {
			return archiver.Job{}, false, nil
		}
		if job.Status != archiver.JobStatusQueued {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			copied := job
			oldest = &copied
		}
	}
	if oldest == nil {
		return archiver.Job{}, false, nil
	}
	started := now
	oldest.Status = archiver.JobStatusRunning
	oldest.StartedAt = &started
	oldest.ErrorMessage = ""
	s.jobs[oldest.ID] = *oldest
	return *oldest, true, nil
}

// CompleteJob writes the terminal status and counters.
func (s *JobStore) CompleteJob(_ context.Context, jobID string, status archiver.JobStatus, errText string, resultCount, sheetSynced int, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return archiver.ErrNotFound
	}
	job.Status = status
	job.ErrorMessage = errText
	job.ResultCount = resultCount
	job.SheetSynced = sheetSynced
	done := completedAt
	job.CompletedAt = &done
	s.jobs[jobID] = job
	return nil
}

// RequestCancel flips the cooperative cancellation flag.
func (s *JobStore) RequestCancel(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return archiver.ErrNotFound
	}
	job.CancelRequested = true
	s.jobs[jobID] = job
	return nil
}

// CancelRequested reads the cancellation flag.
func (s *JobStore) CancelRequested(_ context.Context, jobID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return false, archiver.ErrNotFound
	}
	return job.CancelRequested, nil
}
