package archiver

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrSessionExpired signals that the authenticated browsing session is no
// longer valid. It is fatal to the whole job: every subsequent candidate
// would fail the same way.
var ErrSessionExpired = errors.New("browsing session expired")

// ErrUnparseable classifies a detail page whose main content could not be
// located. The candidate is skipped and counted, not treated as a failure.
var ErrUnparseable = errors.New("content not parseable")

// JobStore persists job rows and the per-job cancellation flag.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context, status *JobStatus, limit, offset int) ([]Job, error)
	// ClaimNextJob atomically transitions the oldest queued job to running,
	// stamping startedAt and clearing errorMessage, but only when no job is
	// currently running. The second return is false when nothing was claimed.
	ClaimNextJob(ctx context.Context, now time.Time) (Job, bool, error)
	// CompleteJob writes the terminal status and completion counters.
	CompleteJob(ctx context.Context, jobID string, status JobStatus, errText string, resultCount, sheetSynced int, completedAt time.Time) error
	RequestCancel(ctx context.Context, jobID string) error
	CancelRequested(ctx context.Context, jobID string) (bool, error)
}

// PostStore persists archived posts with a global unique constraint on
// content hash. CreatePost is an atomic insert-if-absent: it reports false
// when a post with the same hash already exists anywhere in the store.
type PostStore interface {
	CreatePost(ctx context.Context, post Post) (id string, inserted bool, err error)
	CreateComments(ctx context.Context, postID string, comments []Comment) error
	CountPosts(ctx context.Context, jobID string) (int, error)
}

// ProgressStore holds one mutable progress document per job, overwritten on
// every update and left in place after completion.
type ProgressStore interface {
	SaveProgress(ctx context.Context, doc ProgressDocument) error
	GetProgress(ctx context.Context, jobID string) (ProgressDocument, error)
}

// Browser is an authenticated page-rendering client.
type Browser interface {
	Navigate(ctx context.Context, url string) (PageSnapshot, error)
}

// SearchClient fetches one page of keyword search results for a cafe.
type SearchClient interface {
	Search(ctx context.Context, req SearchRequest) (SearchResult, error)
}

// SheetSink pushes persisted rows to the external spreadsheet webhook.
// It returns the number of rows acknowledged before any failure.
type SheetSink interface {
	Push(ctx context.Context, job Job, posts []Post) (int, error)
}

// BackupStore writes the non-authoritative flat-file backup of a job's
// final batch and returns its location.
type BackupStore interface {
	Save(ctx context.Context, jobID string, posts []Post) (string, error)
}

// Publisher pushes job completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for content-addressed deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and post IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
