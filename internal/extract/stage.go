// Package extract turns rendered detail pages into structured post content.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mkweon/cafe-archiver/internal/archiver"
	"github.com/mkweon/cafe-archiver/internal/search"
)

// Config controls extraction heuristics. Zero values fall back to defaults
// tuned for the cafe markup currently in the wild.
type Config struct {
	// LoginMarkers are substrings of the final location that indicate the
	// navigation was redirected to a login page.
	LoginMarkers []string
	// ContentSelectors is the ordered fallback chain tried for the main
	// content container. The first selection whose text reaches
	// MinContentLength wins.
	ContentSelectors []string
	MinContentLength int
	MaxComments      int
	MinCommentLength int
	MaxCommentLength int
}

func (c *Config) applyDefaults() {
	if len(c.LoginMarkers) == 0 {
		c.LoginMarkers = []string{"/login", "nidlogin", "auth/signin"}
	}
	if len(c.ContentSelectors) == 0 {
		c.ContentSelectors = []string{
			".se-main-container",
			"#postViewArea",
			".article_viewer",
			".ContentRenderer",
			"#tbody",
			"article",
		}
	}
	if c.MinContentLength <= 0 {
		c.MinContentLength = 20
	}
	if c.MaxComments <= 0 {
		c.MaxComments = 120
	}
	if c.MinCommentLength <= 0 {
		c.MinCommentLength = 2
	}
	if c.MaxCommentLength <= 0 {
		c.MaxCommentLength = 500
	}
}

// Stage fetches and parses one candidate detail page at a time.
type Stage struct {
	browser archiver.Browser
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Stage.
func New(browser archiver.Browser, cfg Config, logger *zap.Logger) *Stage {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{browser: browser, cfg: cfg, logger: logger}
}

// Extract navigates to the candidate page and pulls structured content.
// It returns archiver.ErrSessionExpired when the navigation landed on a
// login page (fatal for the whole job) and archiver.ErrUnparseable when no
// content container matched (a countable skip). Any other error is a
// single-candidate failure.
func (s *Stage) Extract(ctx context.Context, cand archiver.Candidate) (archiver.Extraction, error) {
	snap, err := s.browser.Navigate(ctx, cand.URL)
	if err != nil {
		return archiver.Extraction{}, fmt.Errorf("navigate %s: %w", cand.URL, err)
	}
	if s.isLoginRedirect(snap.Location) {
		return archiver.Extraction{}, fmt.Errorf("redirected to %s: %w", snap.Location, archiver.ErrSessionExpired)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return archiver.Extraction{}, fmt.Errorf("parse %s: %w", cand.URL, err)
	}

	content, ok := s.matchContent(doc)
	if !ok {
		return archiver.Extraction{}, fmt.Errorf("article %d: %w", cand.ArticleID, archiver.ErrUnparseable)
	}

	pageText := doc.Text()
	ext := archiver.Extraction{
		Title:        extractTitle(doc),
		AuthorName:   extractAuthor(doc),
		PublishedAt:  extractPublishedAt(doc),
		ViewCount:    labelledCount(pageText, viewLabels),
		LikeCount:    labelledCount(pageText, likeLabels),
		CommentCount: labelledCount(pageText, commentLabels),
		Content:      content,
		Comments:     s.extractComments(doc),
	}
	return ext, nil
}

func (s *Stage) isLoginRedirect(location string) bool {
	loc := strings.ToLower(location)
	for _, marker := range s.cfg.LoginMarkers {
		if marker != "" && strings.Contains(loc, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// matchContent walks the ordered selector chain and accepts the first
// container whose collapsed text reaches the minimum length.
func (s *Stage) matchContent(doc *goquery.Document) (string, bool) {
	for _, selector := range s.cfg.ContentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		text := collapseWhitespace(sel.Text())
		if len([]rune(text)) >= s.cfg.MinContentLength {
			return text, true
		}
	}
	return "", false
}

var titleSelectors = []string{".title_text", "h3.title", ".article_title", "h1", "h2"}

func extractTitle(doc *goquery.Document) string {
	for _, selector := range titleSelectors {
		if text := collapseWhitespace(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		return collapseWhitespace(og)
	}
	return ""
}

var authorSelectors = []string{".nick_box .nickname", ".profile_info .nickname", "[class*=nickname]", ".author", "[class*=writer]"}

func extractAuthor(doc *goquery.Document) string {
	for _, selector := range authorSelectors {
		if text := collapseWhitespace(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

var humanDateLayouts = []string{
	"2006.01.02. 15:04",
	"2006.01.02 15:04",
	"2006.01.02.",
	"2006.01.02",
	"2006-01-02 15:04",
	"2006-01-02",
}

// extractPublishedAt prefers a machine-readable datetime attribute and
// falls back to human-readable date text. Unparseable input yields nil.
func extractPublishedAt(doc *goquery.Document) *time.Time {
	if attr, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(attr)); err == nil {
			return &ts
		}
	}
	for _, selector := range []string{".article_info .date", ".date", "[class*=date]"} {
		raw := collapseWhitespace(doc.Find(selector).First().Text())
		if raw == "" {
			continue
		}
		for _, layout := range humanDateLayouts {
			if ts, err := time.Parse(layout, raw); err == nil {
				return &ts
			}
		}
	}
	return nil
}

var (
	viewLabels    = regexp.MustCompile(`(?i)(?:조회수?|views?)\s*:?\s*([\d,]+)`)
	likeLabels    = regexp.MustCompile(`(?i)(?:좋아요|likes?)\s*:?\s*([\d,]+)`)
	commentLabels = regexp.MustCompile(`(?i)(?:댓글수?|comments?)\s*:?\s*([\d,]+)`)
)

func labelledCount(text string, re *regexp.Regexp) int {
	match := re.FindStringSubmatch(text)
	if len(match) < 2 {
		return 0
	}
	return search.ParseCount(match[1])
}

var commentBlockSelectors = []string{
	"ul.comment_list > li",
	"[class*=CommentItem]",
	"li[class*=comment]",
	"div[class*=comment] li",
}

// extractComments pulls up to the configured number of comment-like blocks.
// Bodies outside the 2-500 character window are treated as boilerplate and
// dropped.
func (s *Stage) extractComments(doc *goquery.Document) []archiver.Comment {
	var comments []archiver.Comment
	for _, selector := range commentBlockSelectors {
		blocks := doc.Find(selector)
		if blocks.Length() == 0 {
			continue
		}
		blocks.EachWithBreak(func(_ int, block *goquery.Selection) bool {
			if len(comments) >= s.cfg.MaxComments {
				return false
			}
			if comment, ok := s.toComment(block); ok {
				comments = append(comments, comment)
			}
			return true
		})
		break
	}
	return comments
}

func (s *Stage) toComment(block *goquery.Selection) (archiver.Comment, bool) {
	body := collapseWhitespace(block.Find("[class*=text_comment], [class*=comment_text], p").First().Text())
	author := collapseWhitespace(block.Find("[class*=nickname], [class*=nick], [class*=author]").First().Text())
	if body == "" {
		full := collapseWhitespace(block.Text())
		body = strings.TrimSpace(strings.TrimPrefix(full, author))
	}
	length := len([]rune(body))
	if length < s.cfg.MinCommentLength || length > s.cfg.MaxCommentLength {
		return archiver.Comment{}, false
	}

	comment := archiver.Comment{
		AuthorName: author,
		Body:       body,
		LikeCount:  labelledCount(block.Text(), likeLabels),
	}
	if attr, ok := block.Find("time[datetime]").First().Attr("datetime"); ok {
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(attr)); err == nil {
			comment.WrittenAt = &ts
		}
	}
	return comment, true
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
