package memory

import (
	"context"
	"sync"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

// ProgressStore is an in-memory archiver.ProgressStore.
type ProgressStore struct {
	mu   sync.RWMutex
	docs map[string]archiver.ProgressDocument
}

// NewProgressStore constructs a ProgressStore.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{docs: make(map[string]archiver.ProgressDocument)}
}

// SaveProgress overwrites the document for its job.
func (s *ProgressStore) SaveProgress(_ context.Context, doc archiver.ProgressDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.JobID] = doc
	return nil
}

// GetProgress returns the latest document for a job.
func (s *ProgressStore) GetProgress(_ context.Context, jobID string) (archiver.ProgressDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[jobID]
	if !ok {
		return archiver.ProgressDocument{}, archiver.ErrNotFound
	}
	return doc, nil
}
