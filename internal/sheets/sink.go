// Package sheets pushes archived rows to the spreadsheet webhook.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

// Field limits enforced before transmission. The durable store always keeps
// the full text; only the sink payload is clipped.
const (
	BodyTextLimit     = 45000
	CommentsTextLimit = 20000
)

// Config controls the webhook sink.
type Config struct {
	WebhookURL string
	AuthToken  string
	Timeout    time.Duration
}

// Sink implements archiver.SheetSink over a JSON webhook. The whole batch
// goes out as one POST per job commit.
type Sink struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New constructs a Sink.
func New(cfg Config, logger *zap.Logger) (*Sink, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("sheet webhook url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

type sheetRow struct {
	JobID        string `json:"jobId"`
	SourceURL    string `json:"sourceUrl"`
	CafeID       string `json:"cafeId"`
	CafeName     string `json:"cafeName"`
	CafeURL      string `json:"cafeUrl"`
	Title        string `json:"title"`
	AuthorName   string `json:"authorName"`
	PublishedAt  string `json:"publishedAt"`
	ViewCount    int    `json:"viewCount"`
	LikeCount    int    `json:"likeCount"`
	CommentCount int    `json:"commentCount"`
	BodyText     string `json:"bodyText"`
	CommentsText string `json:"commentsText"`
	ContentText  string `json:"contentText"`
}

type sheetPayload struct {
	Rows []sheetRow `json:"rows"`
}

// Push sends the batch and returns how many rows were acknowledged. The
// webhook accepts or rejects the batch whole, so the count is all-or-nothing.
func (s *Sink) Push(ctx context.Context, job archiver.Job, posts []archiver.Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}
	payload := sheetPayload{Rows: make([]sheetRow, 0, len(posts))}
	for _, post := range posts {
		payload.Rows = append(payload.Rows, buildRow(job, post))
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal sheet payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build sheet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.AuthToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post sheet rows: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("sheet webhook returned status %d", resp.StatusCode)
	}
	s.logger.Debug("sheet rows pushed",
		zap.String("job_id", job.ID),
		zap.Int("rows", len(payload.Rows)),
	)
	return len(payload.Rows), nil
}

func buildRow(job archiver.Job, post archiver.Post) sheetRow {
	publishedAt := ""
	if post.PublishedAt != nil {
		publishedAt = post.PublishedAt.UTC().Format(time.RFC3339)
	}
	return sheetRow{
		JobID:        job.ID,
		SourceURL:    post.SourceURL,
		CafeID:       post.CafeID,
		CafeName:     post.CafeName,
		CafeURL:      post.CafeURL,
		Title:        post.Title,
		AuthorName:   post.AuthorName,
		PublishedAt:  publishedAt,
		ViewCount:    post.ViewCount,
		LikeCount:    post.LikeCount,
		CommentCount: post.CommentCount,
		BodyText:     Truncate(post.Content, BodyTextLimit),
		CommentsText: Truncate(joinComments(post.Comments), CommentsTextLimit),
		ContentText:  Truncate(contentText(post), BodyTextLimit),
	}
}

func contentText(post archiver.Post) string {
	var b strings.Builder
	b.WriteString(post.Title)
	b.WriteString("\n\n")
	b.WriteString(post.Content)
	if joined := joinComments(post.Comments); joined != "" {
		b.WriteString("\n\n")
		b.WriteString(joined)
	}
	return b.String()
}

func joinComments(comments []archiver.Comment) string {
	if len(comments) == 0 {
		return ""
	}
	lines := make([]string, 0, len(comments))
	for _, c := range comments {
		if c.AuthorName == "" {
			lines = append(lines, c.Body)
			continue
		}
		lines = append(lines, c.AuthorName+": "+c.Body)
	}
	return strings.Join(lines, "\n")
}

// Truncate clips s to exactly limit characters when it is longer, ending in
// a marker that records the original length. Shorter strings pass through
// unchanged. Lengths are counted in runes so multibyte text is not split.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	marker := fmt.Sprintf(" … [truncated; original %d chars]", len(runes))
	keep := limit - len([]rune(marker))
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + marker
}
