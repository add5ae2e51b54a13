// Package progress maintains the per-job progress document polled by the
// dashboard. The document is overwritten whole on each update; only the
// latest state matters to consumers.
package progress

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

// DefaultPagesTarget is the search pagination cap surfaced in every cell.
const DefaultPagesTarget = 4

// Reporter builds and persists the progress document for one job. All
// methods are idempotent with respect to the stored document: repeating an
// update with the same values leaves the same state behind. Store write
// failures are logged and swallowed, progress is bookkeeping and must never
// fail the job itself.
type Reporter struct {
	store  archiver.ProgressStore
	clock  archiver.Clock
	logger *zap.Logger

	mu  sync.Mutex
	doc archiver.ProgressDocument
}

// NewReporter creates a Reporter with a fresh document for jobID.
func NewReporter(store archiver.ProgressStore, clock archiver.Clock, logger *zap.Logger, jobID string) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		store:  store,
		clock:  clock,
		logger: logger,
		doc: archiver.ProgressDocument{
			JobID: jobID,
			Stage: archiver.StageSearching,
			Cells: make(map[string]archiver.ProgressCell),
		},
	}
}

// SetStage records the coarse execution phase.
func (r *Reporter) SetStage(ctx context.Context, stage archiver.JobStage) {
	r.mu.Lock()
	r.doc.Stage = stage
	r.persistLocked(ctx)
	r.mu.Unlock()
}

// SetCursor records the (cafe, keyword) currently being processed.
func (r *Reporter) SetCursor(ctx context.Context, cafeID, keyword string) {
	r.mu.Lock()
	r.doc.CurrentCafeID = cafeID
	r.doc.CurrentKeyword = keyword
	r.persistLocked(ctx)
	r.mu.Unlock()
}

// UpdateCell mutates the cell keyed by the normalized (cafeID, keyword)
// pair and persists the document. Absent cells start in the searching state
// with the default pages target.
func (r *Reporter) UpdateCell(ctx context.Context, cafeID, keyword string, mutate func(*archiver.ProgressCell)) {
	key := archiver.CellKey(cafeID, keyword)
	r.mu.Lock()
	cell, ok := r.doc.Cells[key]
	if !ok {
		cell = archiver.ProgressCell{
			Status:      archiver.CellSearching,
			PagesTarget: DefaultPagesTarget,
		}
	}
	mutate(&cell)
	cell.UpdatedAt = r.clock.Now()
	r.doc.Cells[key] = cell
	r.persistLocked(ctx)
	r.mu.Unlock()
}

// SetCounters overwrites the aggregate counters.
func (r *Reporter) SetCounters(ctx context.Context, collected, dbSynced, sheetSynced int) {
	r.mu.Lock()
	r.doc.Collected = collected
	r.doc.DBSynced = dbSynced
	r.doc.SheetSynced = sheetSynced
	r.persistLocked(ctx)
	r.mu.Unlock()
}

// Document returns a copy of the current document.
func (r *Reporter) Document() archiver.ProgressDocument {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

func (r *Reporter) copyLocked() archiver.ProgressDocument {
	doc := r.doc
	doc.Cells = make(map[string]archiver.ProgressCell, len(r.doc.Cells))
	for k, v := range r.doc.Cells {
		doc.Cells[k] = v
	}
	return doc
}

func (r *Reporter) persistLocked(ctx context.Context) {
	r.doc.UpdatedAt = r.clock.Now()
	if err := r.store.SaveProgress(ctx, r.copyLocked()); err != nil {
		r.logger.Warn("progress save failed",
			zap.String("job_id", r.doc.JobID),
			zap.Error(err),
		)
	}
}
