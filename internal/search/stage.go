// Package search implements paginated keyword candidate discovery.
package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mkweon/cafe-archiver/internal/archiver"
	"github.com/mkweon/cafe-archiver/internal/metrics"
)

// Pagination bounds for one (cafe, keyword) pair: at most MaxPages pages of
// PageSize rows, so no keyword ever yields more than 200 candidates.
const (
	PageSize = 50
	MaxPages = 4
)

// PageReport is invoked after every fetched page so the caller can update
// its progress cell.
type PageReport func(pagesScanned, fetchedRows, totalResults int)

// Stage fetches candidates for one (cafe, keyword) pair at a time.
type Stage struct {
	client archiver.SearchClient
	logger *zap.Logger
}

// New constructs a Stage.
func New(client archiver.SearchClient, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{client: client, logger: logger}
}

// Collect pages through date-sorted search results until the page cap, an
// empty page, or a short page. Only article rows with a numeric identifier
// become candidates; identifiers already seen in this run are suppressed.
func (s *Stage) Collect(ctx context.Context, cafe archiver.Cafe, keyword string, report PageReport) ([]archiver.Candidate, error) {
	var (
		candidates []archiver.Candidate
		scanned    int
		fetched    int
		total      int
	)
	seen := make(map[int64]struct{})

	for page := 1; page <= MaxPages; page++ {
		result, err := s.client.Search(ctx, archiver.SearchRequest{
			Cafe:     cafe,
			Keyword:  keyword,
			Page:     page,
			PageSize: PageSize,
		})
		if err != nil {
			return candidates, fmt.Errorf("search %s page %d: %w", keyword, page, err)
		}

		// An empty page means no more results and does not count as scanned.
		if len(result.Rows) > 0 {
			scanned++
			metrics.SearchPageScanned()
		}
		fetched += len(result.Rows)
		if result.TotalResults > 0 {
			total = result.TotalResults
		}
		if report != nil {
			report(scanned, fetched, total)
		}
		if len(result.Rows) == 0 {
			break
		}

		for _, row := range result.Rows {
			cand, ok := s.toCandidate(cafe, row)
			if !ok {
				continue
			}
			if _, dup := seen[cand.ArticleID]; dup {
				continue
			}
			seen[cand.ArticleID] = struct{}{}
			candidates = append(candidates, cand)
		}

		// A short page signals the last page of results.
		if len(result.Rows) < PageSize {
			break
		}
	}

	s.logger.Debug("candidate search finished",
		zap.String("cafe_id", cafe.ID),
		zap.String("keyword", keyword),
		zap.Int("candidates", len(candidates)),
		zap.Int("fetched_rows", fetched),
	)
	return candidates, nil
}

func (s *Stage) toCandidate(cafe archiver.Cafe, row archiver.SearchRow) (archiver.Candidate, bool) {
	if row.Kind != archiver.RowKindArticle {
		return archiver.Candidate{}, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(row.ArticleID), 10, 64)
	if err != nil || id <= 0 {
		return archiver.Candidate{}, false
	}

	url := strings.TrimSpace(row.Link)
	if url == "" && cafe.URL != "" {
		url = fmt.Sprintf("%s/%d", strings.TrimRight(cafe.URL, "/"), id)
	}

	return archiver.Candidate{
		ArticleID:    id,
		CafeID:       cafe.ID,
		CafeName:     cafe.Name,
		CafeURL:      cafe.URL,
		Board:        boardLabel(row),
		Title:        strings.TrimSpace(row.Title),
		URL:          url,
		ViewCount:    ParseCount(row.ReadCount),
		LikeCount:    ParseCount(row.LikeCount),
		CommentCount: ParseCount(row.CommentCount),
		PublishedAt:  parseRowDate(row.PublishedAt),
	}, true
}

// boardLabel picks the first non-empty board alias.
func boardLabel(row archiver.SearchRow) string {
	for _, label := range []string{row.BoardName, row.MenuName, row.BoardLabel} {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// ParseCount parses a count field leniently: thousands separators are
// stripped, non-numeric input defaults to 0, and the result is clamped to
// be non-negative.
func ParseCount(raw string) int {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', ' ':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if cleaned == "" {
		return 0
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

var rowDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006.01.02.",
	"2006.01.02",
}

func parseRowDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range rowDateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}
