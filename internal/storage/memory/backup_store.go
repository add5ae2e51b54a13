package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

// BackupStore keeps job backups in memory and returns pseudo URIs.
type BackupStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBackupStore constructs a BackupStore.
func NewBackupStore() *BackupStore {
	return &BackupStore{data: make(map[string][]byte)}
}

// Save serializes the batch and returns a memory:// URI.
func (s *BackupStore) Save(_ context.Context, jobID string, posts []archiver.Post) (string, error) {
	payload, err := json.Marshal(posts)
	if err != nil {
		return "", fmt.Errorf("marshal backup: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[jobID] = payload
	return fmt.Sprintf("memory://backups/%s.json", jobID), nil
}

// Load returns the stored backup for a job (test helper).
func (s *BackupStore) Load(jobID string) ([]archiver.Post, bool, error) {
	s.mu.RLock()
	payload, ok := s.data[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	var posts []archiver.Post
	if err := json.Unmarshal(payload, &posts); err != nil {
		return nil, true, fmt.Errorf("unmarshal backup: %w", err)
	}
	return posts, true, nil
}
