package archiver

import (
	"sort"
	"strings"
	"time"
)

// FilterRules bundles the admission criteria applied to an extracted post.
// The zero value admits everything.
type FilterRules struct {
	IncludeWords    []string
	ExcludeWords    []string
	FromDate        *time.Time
	ToDate          *time.Time
	MinViewCount    *int
	MinCommentCount *int
}

// PassesFilter is the pure admission decision for one post. Matching is
// case-insensitive substring over the normalized title+body. A missing
// publish date always passes the date-range rule.
func PassesFilter(title, body string, publishedAt *time.Time, rules FilterRules) bool {
	text := normalizeText(title + " " + body)

	if len(rules.IncludeWords) > 0 && !containsAny(text, rules.IncludeWords) {
		return false
	}
	if containsAny(text, rules.ExcludeWords) {
		return false
	}
	if publishedAt != nil {
		if rules.FromDate != nil && publishedAt.Before(*rules.FromDate) {
			return false
		}
		if rules.ToDate != nil && publishedAt.After(*rules.ToDate) {
			return false
		}
	}
	return true
}

// PassesThresholds applies the effective minimum view/comment counts.
func PassesThresholds(post Post, minView, minComment int) bool {
	return post.ViewCount >= minView && post.CommentCount >= minComment
}

// EffectiveThresholds resolves the minimum counts for the final batch
// filter. Explicit job thresholds always win; with auto-filter enabled the
// batch median fills in wherever an explicit threshold was not supplied.
func EffectiveThresholds(job Job, batch []Post) (minView, minComment int) {
	if job.MinViewCount != nil {
		minView = *job.MinViewCount
	} else if job.UseAutoFilter {
		minView = medianInt(viewCounts(batch))
	}
	if job.MinCommentCount != nil {
		minComment = *job.MinCommentCount
	} else if job.UseAutoFilter {
		minComment = medianInt(commentCounts(batch))
	}
	return minView, minComment
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		w = normalizeText(w)
		if w == "" {
			continue
		}
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func viewCounts(posts []Post) []int {
	out := make([]int, len(posts))
	for i, p := range posts {
		out[i] = p.ViewCount
	}
	return out
}

func commentCounts(posts []Post) []int {
	out := make([]int, len(posts))
	for i, p := range posts {
		out[i] = p.CommentCount
	}
	return out
}

// medianInt returns the statistical median, the mean of the two middle
// values for even-length input, and 0 for empty input.
func medianInt(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
