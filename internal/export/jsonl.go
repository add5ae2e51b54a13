// Package export writes the non-authoritative flat-file backup of a job's
// final batch.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

// JSONLConfig captures the parameters for the local filesystem backup.
type JSONLConfig struct {
	// BaseDir is the root directory where backup files are written.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// JSONLStore writes one JSON Lines file per job under BaseDir.
type JSONLStore struct {
	baseDir string
	clock   archiver.Clock
}

// NewJSONLStore creates a filesystem-backed backup store.
func NewJSONLStore(cfg JSONLConfig, clock archiver.Clock) (*JSONLStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("backup base directory is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat backup directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create backup directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("backup path is not a directory")
	}
	return &JSONLStore{baseDir: cfg.BaseDir, clock: clock}, nil
}

// Save writes the batch as one JSON object per line and returns a file:// URI.
// The filename carries a timestamp so reruns never clobber an older backup.
func (s *JSONLStore) Save(ctx context.Context, jobID string, posts []archiver.Post) (string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", fmt.Errorf("job id is required")
	}
	payload, err := encodeJSONL(posts)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s.jsonl", jobID, s.now().UTC().Format("20060102T150405Z"))
	fullPath := filepath.Join(s.baseDir, name)
	if err := os.WriteFile(fullPath, payload, 0o600); err != nil {
		return "", fmt.Errorf("write backup file: %w", err)
	}
	return "file://" + fullPath, nil
}

func (s *JSONLStore) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now()
}

func encodeJSONL(posts []archiver.Post) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, post := range posts {
		if err := enc.Encode(post); err != nil {
			return nil, fmt.Errorf("encode post %s: %w", post.ID, err)
		}
	}
	return buf.Bytes(), nil
}
