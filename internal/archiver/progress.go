package archiver

import (
	"fmt"
	"strings"
	"time"
)

// JobStage labels the coarse phase recorded in the progress document.
type JobStage string

// Stages written by the executor as it advances.
const (
	StageSearching JobStage = "searching"
	StageFiltering JobStage = "filtering"
	StageCommit    JobStage = "commit"
	StageExport    JobStage = "export"
	StageSheetSync JobStage = "sheet_sync"
	StageDone      JobStage = "done"
)

// CellStatus is the state of one (cafe, keyword) progress cell.
type CellStatus string

// Cell statuses surfaced to polling consumers.
const (
	CellSearching CellStatus = "searching"
	CellParsing   CellStatus = "parsing"
	CellDone      CellStatus = "done"
	CellFailed    CellStatus = "failed"
	CellSkipped   CellStatus = "skipped"
)

// ProgressCell is the per (cafe, keyword) bookkeeping record.
type ProgressCell struct {
	Status       CellStatus `json:"status"`
	PagesScanned int        `json:"pages_scanned"`
	PagesTarget  int        `json:"pages_target"`
	FetchedRows  int        `json:"fetched_rows"`
	TotalResults int        `json:"total_results"`
	Collected    int        `json:"collected"`
	Skipped      int        `json:"skipped"`
	FilteredOut  int        `json:"filtered_out"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ProgressDocument is the single mutable progress record for one job.
// It is overwritten whole on each update; consumers poll the latest state.
// A cell older than ~90s while the job is running may be treated as a
// stall by the reader, the pipeline does not enforce that itself.
type ProgressDocument struct {
	JobID          string                  `json:"job_id"`
	Stage          JobStage                `json:"stage"`
	CurrentCafeID  string                  `json:"current_cafe_id,omitempty"`
	CurrentKeyword string                  `json:"current_keyword,omitempty"`
	Collected      int                     `json:"collected"`
	DBSynced       int                     `json:"db_synced"`
	SheetSynced    int                     `json:"sheet_synced"`
	UpdatedAt      time.Time               `json:"updated_at"`
	Cells          map[string]ProgressCell `json:"cells"`
}

// CellKey normalizes a (cafeID, keyword) pair into the matrix key.
func CellKey(cafeID, keyword string) string {
	return fmt.Sprintf("%s::%s", strings.TrimSpace(cafeID), strings.TrimSpace(keyword))
}
