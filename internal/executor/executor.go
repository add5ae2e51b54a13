// Package executor drives one archive job end-to-end: candidate discovery,
// content extraction, filtering, dedup-aware commit, backup export, and
// spreadsheet sync.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mkweon/cafe-archiver/internal/archiver"
	"github.com/mkweon/cafe-archiver/internal/metrics"
	"github.com/mkweon/cafe-archiver/internal/progress"
	"github.com/mkweon/cafe-archiver/internal/search"
)

// CandidateSearcher yields candidates for one (cafe, keyword) pair.
type CandidateSearcher interface {
	Collect(ctx context.Context, cafe archiver.Cafe, keyword string, report search.PageReport) ([]archiver.Candidate, error)
}

// ContentExtractor fetches and parses one candidate detail page.
type ContentExtractor interface {
	Extract(ctx context.Context, cand archiver.Candidate) (archiver.Extraction, error)
}

// Config controls executor behavior.
type Config struct {
	// Topic names the completion-event destination; empty disables publishing.
	Topic string
}

// Executor runs one job at a time, strictly sequentially across cafes,
// keywords, and candidates. It owns the job state machine and always writes
// its own terminal status, including on panic.
type Executor struct {
	jobs          archiver.JobStore
	posts         archiver.PostStore
	progressStore archiver.ProgressStore
	searcher      CandidateSearcher
	extractor     ContentExtractor
	sheet         archiver.SheetSink
	backup        archiver.BackupStore
	publisher     archiver.Publisher
	hasher        archiver.Hasher
	clock         archiver.Clock
	ids           archiver.IDGenerator
	pause         archiver.PauseController
	cfg           Config
	logger        *zap.Logger
}

// New constructs an Executor.
func New(
	jobs archiver.JobStore,
	posts archiver.PostStore,
	progressStore archiver.ProgressStore,
	searcher CandidateSearcher,
	extractor ContentExtractor,
	sheet archiver.SheetSink,
	backup archiver.BackupStore,
	publisher archiver.Publisher,
	hasher archiver.Hasher,
	clock archiver.Clock,
	ids archiver.IDGenerator,
	pause archiver.PauseController,
	cfg Config,
	logger *zap.Logger,
) *Executor {
	if pause == nil {
		pause = archiver.NewJitterPause(0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		jobs:          jobs,
		posts:         posts,
		progressStore: progressStore,
		searcher:      searcher,
		extractor:     extractor,
		sheet:         sheet,
		backup:        backup,
		publisher:     publisher,
		hasher:        hasher,
		clock:         clock,
		ids:           ids,
		pause:         pause,
		cfg:           cfg,
		logger:        logger,
	}
}

// collectedPost keeps the (cafe, keyword) provenance of each in-memory
// post so commit-phase bookkeeping lands in the right progress cell.
type collectedPost struct {
	post    archiver.Post
	cafeID  string
	keyword string
}

// outcome is the terminal result of one run.
type outcome struct {
	status      archiver.JobStatus
	errText     string
	resultCount int
	sheetSynced int
}

// errCancelled signals a cooperative stop observed mid-run.
var errCancelled = errors.New("cancellation requested")

// Execute runs the job to completion and writes its terminal status. The
// job must already be in the running state (claimed by the scheduler).
// A panic is recorded as FAILED before being re-raised.
func (e *Executor) Execute(ctx context.Context, job archiver.Job) {
	reporter := progress.NewReporter(e.progressStore, e.clock, e.logger, job.ID)

	defer func() {
		if r := recover(); r != nil {
			e.complete(ctx, job.ID, outcome{
				status:  archiver.JobStatusFailed,
				errText: fmt.Sprintf("panic: %v", r),
			})
			panic(r)
		}
	}()

	e.logger.Info("job started",
		zap.String("job_id", job.ID),
		zap.Int("cafes", len(job.Cafes)),
		zap.Int("keywords", len(job.Keywords)),
	)

	out := e.run(ctx, job, reporter)
	if out.status != archiver.JobStatusFailed {
		reporter.SetStage(ctx, archiver.StageDone)
	}
	e.complete(ctx, job.ID, out)
	e.publishCompletion(ctx, job.ID, out)

	e.logger.Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(out.status)),
		zap.Int("result_count", out.resultCount),
		zap.Int("sheet_synced", out.sheetSynced),
	)
}

func (e *Executor) run(ctx context.Context, job archiver.Job, reporter *progress.Reporter) outcome {
	collected, err := e.collect(ctx, job, reporter)
	cancelled := errors.Is(err, errCancelled)
	if err != nil && !cancelled {
		return outcome{status: archiver.JobStatusFailed, errText: err.Error()}
	}

	// Post-loop filtering: adaptive thresholds fill in wherever an explicit
	// minimum was not supplied, then the hard cap applies.
	reporter.SetStage(ctx, archiver.StageFiltering)
	final := e.applyThresholds(job, collected)
	if job.MaxPosts > 0 && len(final) > job.MaxPosts {
		final = final[:job.MaxPosts]
	}

	reporter.SetStage(ctx, archiver.StageCommit)
	persisted, err := e.commit(ctx, job, final, reporter)
	if err != nil {
		return outcome{status: archiver.JobStatusFailed, errText: err.Error(), resultCount: len(persisted)}
	}

	reporter.SetStage(ctx, archiver.StageExport)
	e.export(ctx, job.ID, persisted)

	// A cancelled job keeps everything committed so far but does not push
	// to the external sheet.
	synced := 0
	if !cancelled {
		reporter.SetStage(ctx, archiver.StageSheetSync)
		synced = e.syncSheet(ctx, job, persisted)
	}
	reporter.SetCounters(ctx, len(collected), len(persisted), synced)

	status := archiver.JobStatusSuccess
	if cancelled {
		status = archiver.JobStatusCancelled
	}
	return outcome{status: status, resultCount: len(persisted), sheetSynced: synced}
}

// collect walks cafes and keywords in the order supplied, gathering the
// in-memory batch. It returns errCancelled when the cooperative flag was
// observed and a bare error only for fatal conditions.
func (e *Executor) collect(ctx context.Context, job archiver.Job, reporter *progress.Reporter) ([]collectedPost, error) {
	var collected []collectedPost

	for _, cafe := range job.Cafes {
		for _, keyword := range job.Keywords {
			if e.cancelRequested(ctx, job.ID) {
				return collected, errCancelled
			}
			reporter.SetCursor(ctx, cafe.ID, keyword)

			candidates, err := e.searcher.Collect(ctx, cafe, keyword, func(scanned, fetched, total int) {
				reporter.UpdateCell(ctx, cafe.ID, keyword, func(c *archiver.ProgressCell) {
					c.Status = archiver.CellSearching
					c.PagesScanned = scanned
					c.PagesTarget = search.MaxPages
					c.FetchedRows = fetched
					c.TotalResults = total
				})
			})
			if err != nil {
				// A broken search isolates the keyword, not the job.
				e.logger.Warn("candidate search failed",
					zap.String("job_id", job.ID),
					zap.String("cafe_id", cafe.ID),
					zap.String("keyword", keyword),
					zap.Error(err),
				)
				reporter.UpdateCell(ctx, cafe.ID, keyword, func(c *archiver.ProgressCell) {
					c.Status = archiver.CellFailed
				})
				continue
			}

			reporter.UpdateCell(ctx, cafe.ID, keyword, func(c *archiver.ProgressCell) {
				c.Status = archiver.CellParsing
			})

			grown, err := e.processCandidates(ctx, job, cafe, keyword, candidates, collected, reporter)
			collected = grown
			if err != nil {
				return collected, err
			}

			reporter.UpdateCell(ctx, cafe.ID, keyword, func(c *archiver.ProgressCell) {
				c.Status = archiver.CellDone
			})
			reporter.SetCounters(ctx, len(collected), 0, 0)

			if job.MaxPosts > 0 && len(collected) >= job.MaxPosts {
				return collected, nil
			}
		}
	}
	return collected, nil
}

func (e *Executor) processCandidates(
	ctx context.Context,
	job archiver.Job,
	cafe archiver.Cafe,
	keyword string,
	candidates []archiver.Candidate,
	collected []collectedPost,
	reporter *progress.Reporter,
) ([]collectedPost, error) {
	rules := archiver.FilterRules{
		IncludeWords: job.IncludeWords,
		ExcludeWords: job.ExcludeWords,
		FromDate:     job.FromDate,
		ToDate:       job.ToDate,
	}

	for _, cand := range candidates {
		if job.MaxPosts > 0 && len(collected) >= job.MaxPosts {
			break
		}
		if e.cancelRequested(ctx, job.ID) {
			return collected, errCancelled
		}

		start := e.clock.Now()
		ext, err := e.extractor.Extract(ctx, cand)
		metrics.ObserveExtraction(e.clock.Now().Sub(start))

		switch {
		case errors.Is(err, archiver.ErrSessionExpired):
			return collected, fmt.Errorf("authenticated session lost: %w", err)
		case errors.Is(err, archiver.ErrUnparseable):
			metrics.CandidateSkipped("unparseable")
			reporter.UpdateCell(ctx, cafe.ID, keyword, func(c *archiver.ProgressCell) { c.Skipped++ })
		case err != nil:
			// Navigation timeouts and extraction anomalies are
			// single-candidate failures; the job continues.
			metrics.CandidateSkipped("error")
			e.logger.Warn("candidate extraction failed",
				zap.String("job_id", job.ID),
				zap.Int64("article_id", cand.ArticleID),
				zap.Error(err),
			)
			reporter.UpdateCell(ctx, cafe.ID, keyword, func(c *archiver.ProgressCell) { c.Skipped++ })
		default:
			post := buildPost(job.ID, cand, ext)
			if archiver.PassesFilter(post.Title, post.Content, post.PublishedAt, rules) {
				collected = append(collected, collectedPost{post: post, cafeID: cafe.ID, keyword: keyword})
				reporter.UpdateCell(ctx, cafe.ID, keyword, func(c *archiver.ProgressCell) { c.Collected++ })
				reporter.SetCounters(ctx, len(collected), 0, 0)
			} else {
				reporter.UpdateCell(ctx, cafe.ID, keyword, func(c *archiver.ProgressCell) { c.FilteredOut++ })
			}
		}

		// Politeness: pause after every attempt regardless of outcome.
		e.pause.Pause(ctx)
	}
	return collected, nil
}

// buildPost merges extracted content with the lighter search metadata,
// preferring the detail page wherever it produced a value.
func buildPost(jobID string, cand archiver.Candidate, ext archiver.Extraction) archiver.Post {
	post := archiver.Post{
		JobID:        jobID,
		SourceURL:    cand.URL,
		CafeID:       cand.CafeID,
		CafeName:     cand.CafeName,
		CafeURL:      cand.CafeURL,
		Title:        ext.Title,
		AuthorName:   ext.AuthorName,
		PublishedAt:  ext.PublishedAt,
		ViewCount:    ext.ViewCount,
		LikeCount:    ext.LikeCount,
		CommentCount: ext.CommentCount,
		Content:      ext.Content,
		Comments:     ext.Comments,
	}
	if post.Title == "" {
		post.Title = cand.Title
	}
	if post.PublishedAt == nil {
		post.PublishedAt = cand.PublishedAt
	}
	if post.ViewCount == 0 {
		post.ViewCount = cand.ViewCount
	}
	if post.LikeCount == 0 {
		post.LikeCount = cand.LikeCount
	}
	if post.CommentCount == 0 {
		post.CommentCount = cand.CommentCount
	}
	return post
}

func (e *Executor) applyThresholds(job archiver.Job, collected []collectedPost) []collectedPost {
	batch := make([]archiver.Post, len(collected))
	for i, c := range collected {
		batch[i] = c.post
	}
	minView, minComment := archiver.EffectiveThresholds(job, batch)
	if minView == 0 && minComment == 0 {
		return collected
	}

	final := collected[:0:0]
	for _, c := range collected {
		if archiver.PassesThresholds(c.post, minView, minComment) {
			final = append(final, c)
		}
	}
	e.logger.Debug("thresholds applied",
		zap.String("job_id", job.ID),
		zap.Int("min_view", minView),
		zap.Int("min_comment", minComment),
		zap.Int("before", len(collected)),
		zap.Int("after", len(final)),
	)
	return final
}

// commit persists each surviving post through the atomic insert-if-absent
// dedup primitive. Posts whose content hash already exists anywhere in the
// store are silently skipped and counted, never re-persisted.
func (e *Executor) commit(ctx context.Context, job archiver.Job, final []collectedPost, reporter *progress.Reporter) ([]archiver.Post, error) {
	var persisted []archiver.Post

	for _, c := range final {
		post := c.post
		hash, err := e.hasher.Hash([]byte(post.Content))
		if err != nil {
			return persisted, fmt.Errorf("hash content: %w", err)
		}
		post.ContentHash = hash

		id, err := e.ids.NewID()
		if err != nil {
			return persisted, fmt.Errorf("generate post id: %w", err)
		}
		post.ID = id

		storedID, inserted, err := e.posts.CreatePost(ctx, post)
		if err != nil {
			return persisted, fmt.Errorf("persist post %s: %w", post.SourceURL, err)
		}
		if !inserted {
			metrics.PostDeduped()
			reporter.UpdateCell(ctx, c.cafeID, c.keyword, func(cell *archiver.ProgressCell) { cell.Skipped++ })
			continue
		}
		post.ID = storedID

		if len(post.Comments) > 0 {
			if err := e.posts.CreateComments(ctx, storedID, post.Comments); err != nil {
				return persisted, fmt.Errorf("persist comments for %s: %w", post.SourceURL, err)
			}
		}
		metrics.PostPersisted()
		persisted = append(persisted, post)
		reporter.SetCounters(ctx, len(final), len(persisted), 0)
	}
	return persisted, nil
}

// export writes the non-authoritative local backup; failures are logged
// only, the store already holds the full record.
func (e *Executor) export(ctx context.Context, jobID string, persisted []archiver.Post) {
	if e.backup == nil || len(persisted) == 0 {
		return
	}
	location, err := e.backup.Save(ctx, jobID, persisted)
	if err != nil {
		e.logger.Warn("backup export failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	e.logger.Debug("backup written", zap.String("job_id", jobID), zap.String("location", location))
}

// syncSheet pushes persisted rows to the spreadsheet sink. A sink failure
// is caught and logged; the returned count reflects whatever partial
// success occurred before the failure.
func (e *Executor) syncSheet(ctx context.Context, job archiver.Job, persisted []archiver.Post) int {
	if e.sheet == nil || len(persisted) == 0 {
		return 0
	}
	synced, err := e.sheet.Push(ctx, job, persisted)
	if err != nil {
		metrics.SheetSyncFailed()
		e.logger.Warn("sheet sync failed",
			zap.String("job_id", job.ID),
			zap.Int("synced_before_failure", synced),
			zap.Error(err),
		)
	}
	return synced
}

func (e *Executor) cancelRequested(ctx context.Context, jobID string) bool {
	requested, err := e.jobs.CancelRequested(ctx, jobID)
	if err != nil {
		e.logger.Warn("cancellation poll failed", zap.String("job_id", jobID), zap.Error(err))
		return false
	}
	return requested
}

func (e *Executor) complete(ctx context.Context, jobID string, out outcome) {
	metrics.JobCompleted(string(out.status))
	err := e.jobs.CompleteJob(ctx, jobID, out.status, out.errText, out.resultCount, out.sheetSynced, e.clock.Now())
	if err != nil {
		e.logger.Error("terminal status write failed",
			zap.String("job_id", jobID),
			zap.String("status", string(out.status)),
			zap.Error(err),
		)
	}
}

func (e *Executor) publishCompletion(ctx context.Context, jobID string, out outcome) {
	if e.publisher == nil || e.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"job_id":       jobID,
		"status":       string(out.status),
		"result_count": out.resultCount,
		"sheet_synced": out.sheetSynced,
		"timestamp":    e.clock.Now().Format(time.RFC3339),
	}
	if _, err := e.publisher.Publish(ctx, e.cfg.Topic, payload); err != nil {
		e.logger.Warn("completion publish failed", zap.String("job_id", jobID), zap.Error(err))
	}
}
