// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

// Config controls the Postgres connection pool shared by the stores.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// NewPool builds a pgx pool from the config.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// JobStore persists job rows in Postgres.
type JobStore struct {
	pool pgxPool
}

// NewJobStore constructs a JobStore from an existing pool.
func NewJobStore(pool pgxPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const jobColumns = `id, status, keywords, cafes, from_date, to_date,
	min_view_count, min_comment_count, use_auto_filter, max_posts,
	include_words, exclude_words, result_count, sheet_synced,
	error_message, cancel_requested, created_at, started_at, completed_at`

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job archiver.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	keywords, cafes, include, exclude, err := marshalJobLists(job)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19);
	`
	_, err = s.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		keywords,
		cafes,
		job.FromDate,
		job.ToDate,
		job.MinViewCount,
		job.MinCommentCount,
		job.UseAutoFilter,
		job.MaxPosts,
		include,
		exclude,
		job.ResultCount,
		job.SheetSynced,
		job.ErrorMessage,
		job.CancelRequested,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a single job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (archiver.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return archiver.Job{}, archiver.ErrNotFound
		}
		return archiver.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs retrieves jobs ordered newest first, optionally filtered by status.
func (s *JobStore) ListJobs(ctx context.Context, status *archiver.JobStatus, limit, offset int) ([]archiver.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []archiver.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNextJob transitions the oldest queued job to running, but only when no
// job is currently running. The single-statement claim keeps one scheduler
// from double-admitting; under READ COMMITTED a second scheduler instance
// could still skip the locked row and claim a different queued job, so the
// service runs one scheduler per database.
func (s *JobStore) ClaimNextJob(ctx context.Context, now time.Time) (archiver.Job, bool, error) {
	query := `
		UPDATE jobs
		SET status = 'running', started_at = $1, error_message = ''
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'queued'
			  AND NOT EXISTS (SELECT 1 FROM jobs WHERE status = 'running')
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns + `;
	`
	job, err := scanJob(s.pool.QueryRow(ctx, query, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return archiver.Job{}, false, nil
		}
		return archiver.Job{}, false, fmt.Errorf("claim job: %w", err)
	}
	return job, true, nil
}

// CompleteJob writes the terminal status and completion counters.
func (s *JobStore) CompleteJob(ctx context.Context, jobID string, status archiver.JobStatus, errText string, resultCount, sheetSynced int, completedAt time.Time) error {
	query := `
		UPDATE jobs
		SET status = $1, error_message = $2, result_count = $3,
		    sheet_synced = $4, completed_at = $5
		WHERE id = $6;
	`
	tag, err := s.pool.Exec(ctx, query, status, errText, resultCount, sheetSynced, completedAt, jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return archiver.ErrNotFound
	}
	return nil
}

// RequestCancel flips the cooperative cancellation flag. The running executor
// observes it at its next poll point.
func (s *JobStore) RequestCancel(ctx context.Context, jobID string) error {
	query := `UPDATE jobs SET cancel_requested = TRUE WHERE id = $1;`
	tag, err := s.pool.Exec(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return archiver.ErrNotFound
	}
	return nil
}

// CancelRequested reads the cancellation flag.
func (s *JobStore) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	var requested bool
	err := s.pool.QueryRow(ctx, `SELECT cancel_requested FROM jobs WHERE id = $1;`, jobID).Scan(&requested)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, archiver.ErrNotFound
		}
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return requested, nil
}

func marshalJobLists(job archiver.Job) (keywords, cafes, include, exclude []byte, err error) {
	if keywords, err = json.Marshal(job.Keywords); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal keywords: %w", err)
	}
	if cafes, err = json.Marshal(job.Cafes); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal cafes: %w", err)
	}
	if include, err = json.Marshal(job.IncludeWords); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal include words: %w", err)
	}
	if exclude, err = json.Marshal(job.ExcludeWords); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal exclude words: %w", err)
	}
	return keywords, cafes, include, exclude, nil
}

func scanJob(row pgx.Row) (archiver.Job, error) {
	var (
		job      archiver.Job
		keywords []byte
		cafes    []byte
		include  []byte
		exclude  []byte
	)
	err := row.Scan(
		&job.ID,
		&job.Status,
		&keywords,
		&cafes,
		&job.FromDate,
		&job.ToDate,
		&job.MinViewCount,
		&job.MinCommentCount,
		&job.UseAutoFilter,
		&job.MaxPosts,
		&include,
		&exclude,
		&job.ResultCount,
		&job.SheetSynced,
		&job.ErrorMessage,
		&job.CancelRequested,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return archiver.Job{}, err
	}
	if err := json.Unmarshal(keywords, &job.Keywords); err != nil {
		return archiver.Job{}, fmt.Errorf("unmarshal keywords: %w", err)
	}
	if err := json.Unmarshal(cafes, &job.Cafes); err != nil {
		return archiver.Job{}, fmt.Errorf("unmarshal cafes: %w", err)
	}
	if len(include) > 0 {
		if err := json.Unmarshal(include, &job.IncludeWords); err != nil {
			return archiver.Job{}, fmt.Errorf("unmarshal include words: %w", err)
		}
	}
	if len(exclude) > 0 {
		if err := json.Unmarshal(exclude, &job.ExcludeWords); err != nil {
			return archiver.Job{}, fmt.Errorf("unmarshal exclude words: %w", err)
		}
	}
	return job, nil
}
