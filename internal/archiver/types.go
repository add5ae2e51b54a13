// Package archiver defines core types shared across subsystems.
package archiver

import "time"

// JobStatus represents the lifecycle state of an archive job.
type JobStatus string

// Job status values persisted in the job store. Transitions are monotonic:
// queued -> running -> {success | failed | cancelled}.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSuccess   JobStatus = "success"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSuccess, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Cafe identifies one community board to search.
type Cafe struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Job represents the metadata persisted for each submitted archive request.
type Job struct {
	ID              string     `json:"id"`
	Status          JobStatus  `json:"status"`
	Keywords        []string   `json:"keywords"`
	Cafes           []Cafe     `json:"cafes"`
	FromDate        *time.Time `json:"from_date,omitempty"`
	ToDate          *time.Time `json:"to_date,omitempty"`
	MinViewCount    *int       `json:"min_view_count,omitempty"`
	MinCommentCount *int       `json:"min_comment_count,omitempty"`
	UseAutoFilter   bool       `json:"use_auto_filter"`
	MaxPosts        int        `json:"max_posts"`
	IncludeWords    []string   `json:"include_words,omitempty"`
	ExcludeWords    []string   `json:"exclude_words,omitempty"`
	ResultCount     int        `json:"result_count"`
	SheetSynced     int        `json:"sheet_synced"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CancelRequested bool       `json:"cancel_requested"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Post is the immutable record persisted for each archived article.
// ContentHash is a deterministic digest of Content and carries a global
// unique constraint in the store.
type Post struct {
	ID           string     `json:"id"`
	JobID        string     `json:"job_id"`
	SourceURL    string     `json:"source_url"`
	CafeID       string     `json:"cafe_id"`
	CafeName     string     `json:"cafe_name"`
	CafeURL      string     `json:"cafe_url,omitempty"`
	Title        string     `json:"title"`
	AuthorName   string     `json:"author_name"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	ViewCount    int        `json:"view_count"`
	LikeCount    int        `json:"like_count"`
	CommentCount int        `json:"comment_count"`
	Content      string     `json:"content"`
	ContentHash  string     `json:"content_hash"`
	Comments     []Comment  `json:"comments,omitempty"`
}

// Comment belongs to exactly one Post and is cascade-deleted with it.
type Comment struct {
	AuthorName string     `json:"author_name"`
	Body       string     `json:"body"`
	LikeCount  int        `json:"like_count"`
	WrittenAt  *time.Time `json:"written_at,omitempty"`
}

// Candidate is a post identifier returned by search, not yet extracted.
type Candidate struct {
	ArticleID    int64      `json:"article_id"`
	CafeID       string     `json:"cafe_id"`
	CafeName     string     `json:"cafe_name"`
	CafeURL      string     `json:"cafe_url,omitempty"`
	Board        string     `json:"board,omitempty"`
	Title        string     `json:"title"`
	URL          string     `json:"url"`
	ViewCount    int        `json:"view_count"`
	LikeCount    int        `json:"like_count"`
	CommentCount int        `json:"comment_count"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
}

// Extraction is the structured content pulled from a candidate detail page.
type Extraction struct {
	Title        string
	AuthorName   string
	PublishedAt  *time.Time
	ViewCount    int
	LikeCount    int
	CommentCount int
	Content      string
	Comments     []Comment
}

// SearchRequest addresses one page of keyword search within a cafe.
type SearchRequest struct {
	Cafe     Cafe
	Keyword  string
	Page     int
	PageSize int
}

// SearchRow is one raw row returned by the search endpoint. Count fields
// arrive as strings and are parsed leniently downstream. The board label is
// derived from the first non-empty alias field.
type SearchRow struct {
	Kind         string `json:"type"`
	ArticleID    string `json:"articleId"`
	Title        string `json:"title"`
	Link         string `json:"link"`
	AuthorName   string `json:"writerNickname"`
	ReadCount    string `json:"readCount"`
	CommentCount string `json:"commentCount"`
	LikeCount    string `json:"likeCount"`
	PublishedAt  string `json:"writeDate"`
	BoardName    string `json:"boardName"`
	MenuName     string `json:"menuName"`
	BoardLabel   string `json:"boardLabel"`
}

// SearchResult is one decoded page of search rows.
type SearchResult struct {
	Rows         []SearchRow `json:"rows"`
	TotalResults int         `json:"totalResults"`
}

// PageSnapshot is the rendered output of one browser navigation.
type PageSnapshot struct {
	URL      string
	Location string
	HTML     string
	Duration time.Duration
}

// RowKind values recognized in search results. Only article rows with a
// numeric identifier are usable as candidates.
const RowKindArticle = "article"
