package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

// PostStore writes archived posts and their comments into Postgres. The
// posts table carries a unique constraint on content_hash, which is what
// makes deduplication global across jobs.
type PostStore struct {
	pool pgxPool
}

// NewPostStore constructs a PostStore from an existing pool.
func NewPostStore(pool pgxPool) (*PostStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostStore{pool: pool}, nil
}

// CreatePost inserts a post unless one with the same content hash already
// exists. The insert and the duplicate check are a single statement, so two
// concurrent writers racing on the same hash cannot both insert.
func (s *PostStore) CreatePost(ctx context.Context, post archiver.Post) (string, bool, error) {
	if post.ID == "" {
		return "", false, fmt.Errorf("post id is required")
	}
	if post.ContentHash == "" {
		return "", false, fmt.Errorf("post content hash is required")
	}
	query := `
		INSERT INTO posts (
			id, job_id, source_url, cafe_id, cafe_name, cafe_url,
			title, author_name, published_at, view_count, like_count,
			comment_count, content, content_hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (content_hash) DO NOTHING
		RETURNING id;
	`
	var id string
	err := s.pool.QueryRow(ctx, query,
		post.ID,
		post.JobID,
		post.SourceURL,
		post.CafeID,
		post.CafeName,
		post.CafeURL,
		post.Title,
		post.AuthorName,
		post.PublishedAt,
		post.ViewCount,
		post.LikeCount,
		post.CommentCount,
		post.Content,
		post.ContentHash,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("insert post: %w", err)
	}
	return id, true, nil
}

// CreateComments inserts the comments for a post, preserving display order.
func (s *PostStore) CreateComments(ctx context.Context, postID string, comments []archiver.Comment) error {
	if postID == "" {
		return fmt.Errorf("post id is required")
	}
	query := `
		INSERT INTO comments (post_id, position, author_name, body, like_count, written_at)
		VALUES ($1,$2,$3,$4,$5,$6);
	`
	for i, c := range comments {
		if _, err := s.pool.Exec(ctx, query, postID, i, c.AuthorName, c.Body, c.LikeCount, c.WrittenAt); err != nil {
			return fmt.Errorf("insert comment %d: %w", i, err)
		}
	}
	return nil
}

// CountPosts returns the number of posts persisted for a job.
func (s *PostStore) CountPosts(ctx context.Context, jobID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts WHERE job_id = $1;`, jobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}
