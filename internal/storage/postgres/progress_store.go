package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

// ProgressStore keeps one progress document per job as a JSONB column,
// overwritten whole on every save. Documents are never deleted, so the
// final snapshot of a finished job stays readable.
type ProgressStore struct {
	pool pgxPool
}

// NewProgressStore constructs a ProgressStore from an existing pool.
func NewProgressStore(pool pgxPool) (*ProgressStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ProgressStore{pool: pool}, nil
}

// SaveProgress upserts the document for its job.
func (s *ProgressStore) SaveProgress(ctx context.Context, doc archiver.ProgressDocument) error {
	if doc.JobID == "" {
		return fmt.Errorf("progress job id is required")
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	query := `
		INSERT INTO job_progress (job_id, doc, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO UPDATE
		SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at;
	`
	if _, err := s.pool.Exec(ctx, query, doc.JobID, payload, doc.UpdatedAt); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// GetProgress reads the latest document for a job.
func (s *ProgressStore) GetProgress(ctx context.Context, jobID string) (archiver.ProgressDocument, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM job_progress WHERE job_id = $1;`, jobID).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return archiver.ProgressDocument{}, archiver.ErrNotFound
		}
		return archiver.ProgressDocument{}, fmt.Errorf("get progress: %w", err)
	}
	var doc archiver.ProgressDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return archiver.ProgressDocument{}, fmt.Errorf("unmarshal progress: %w", err)
	}
	return doc, nil
}
