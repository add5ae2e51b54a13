package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

type fakeSearchClient struct {
	pages map[int]archiver.SearchResult
	errOn int
	calls []archiver.SearchRequest
}

func (c *fakeSearchClient) Search(_ context.Context, req archiver.SearchRequest) (archiver.SearchResult, error) {
	c.calls = append(c.calls, req)
	if c.errOn != 0 && req.Page == c.errOn {
		return archiver.SearchResult{}, errors.New("search endpoint unavailable")
	}
	return c.pages[req.Page], nil
}

func articleRows(start, n int) []archiver.SearchRow {
	rows := make([]archiver.SearchRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, archiver.SearchRow{
			Kind:      archiver.RowKindArticle,
			ArticleID: fmt.Sprintf("%d", start+i),
			Title:     fmt.Sprintf("post %d", start+i),
			ReadCount: "1,234",
			BoardName: "자유게시판",
		})
	}
	return rows
}

func testCafe() archiver.Cafe {
	return archiver.Cafe{ID: "cafe1", Name: "Study Cafe", URL: "https://cafe.example.com/study"}
}

func TestCollect_FullPageThenEmptyPage(t *testing.T) {
	t.Parallel()

	// 50 rows on page 1, zero on page 2: one page scanned, 50 candidates.
	client := &fakeSearchClient{pages: map[int]archiver.SearchResult{
		1: {Rows: articleRows(1, PageSize), TotalResults: 50},
		2: {},
	}}

	var lastScanned, lastFetched int
	stage := New(client, zap.NewNop())
	candidates, err := stage.Collect(context.Background(), testCafe(), "집중", func(scanned, fetched, _ int) {
		lastScanned, lastFetched = scanned, fetched
	})

	require.NoError(t, err)
	require.Len(t, candidates, 50)
	require.Equal(t, 1, lastScanned)
	require.Equal(t, 50, lastFetched)
	require.Len(t, client.calls, 2)
}

func TestCollect_ShortPageStopsEarly(t *testing.T) {
	t.Parallel()

	client := &fakeSearchClient{pages: map[int]archiver.SearchResult{
		1: {Rows: articleRows(1, 12), TotalResults: 12},
	}}

	stage := New(client, zap.NewNop())
	candidates, err := stage.Collect(context.Background(), testCafe(), "kw", nil)

	require.NoError(t, err)
	require.Len(t, candidates, 12)
	require.Len(t, client.calls, 1)
}

func TestCollect_HardPageCap(t *testing.T) {
	t.Parallel()

	pages := make(map[int]archiver.SearchResult)
	for p := 1; p <= 10; p++ {
		pages[p] = archiver.SearchResult{Rows: articleRows(p*1000, PageSize), TotalResults: 5000}
	}
	client := &fakeSearchClient{pages: pages}

	stage := New(client, zap.NewNop())
	candidates, err := stage.Collect(context.Background(), testCafe(), "kw", nil)

	require.NoError(t, err)
	require.Len(t, candidates, MaxPages*PageSize)
	require.Len(t, client.calls, MaxPages)
	for i, call := range client.calls {
		require.Equal(t, i+1, call.Page)
		require.Equal(t, PageSize, call.PageSize)
	}
}

func TestCollect_FiltersNonArticleAndBadIDs(t *testing.T) {
	t.Parallel()

	rows := []archiver.SearchRow{
		{Kind: archiver.RowKindArticle, ArticleID: "11", Title: "keep"},
		{Kind: "notice", ArticleID: "12", Title: "drop kind"},
		{Kind: archiver.RowKindArticle, ArticleID: "", Title: "drop missing id"},
		{Kind: archiver.RowKindArticle, ArticleID: "abc", Title: "drop non-numeric"},
		{Kind: archiver.RowKindArticle, ArticleID: "11", Title: "drop duplicate"},
		{Kind: archiver.RowKindArticle, ArticleID: "13", Title: "keep too"},
	}
	client := &fakeSearchClient{pages: map[int]archiver.SearchResult{
		1: {Rows: rows, TotalResults: 6},
	}}

	stage := New(client, zap.NewNop())
	candidates, err := stage.Collect(context.Background(), testCafe(), "kw", nil)

	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, int64(11), candidates[0].ArticleID)
	require.Equal(t, int64(13), candidates[1].ArticleID)
}

func TestCollect_BuildsURLFromCafeWhenLinkMissing(t *testing.T) {
	t.Parallel()

	client := &fakeSearchClient{pages: map[int]archiver.SearchResult{
		1: {Rows: []archiver.SearchRow{{Kind: archiver.RowKindArticle, ArticleID: "42"}}},
	}}

	stage := New(client, zap.NewNop())
	candidates, err := stage.Collect(context.Background(), testCafe(), "kw", nil)

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "https://cafe.example.com/study/42", candidates[0].URL)
}

func TestCollect_SearchErrorSurfacesPartialResults(t *testing.T) {
	t.Parallel()

	client := &fakeSearchClient{
		pages: map[int]archiver.SearchResult{1: {Rows: articleRows(1, PageSize)}},
		errOn: 2,
	}

	stage := New(client, zap.NewNop())
	candidates, err := stage.Collect(context.Background(), testCafe(), "kw", nil)

	require.Error(t, err)
	require.Len(t, candidates, PageSize)
}

func TestCollect_BoardLabelAliases(t *testing.T) {
	t.Parallel()

	rows := []archiver.SearchRow{
		{Kind: archiver.RowKindArticle, ArticleID: "1", BoardName: "공부인증"},
		{Kind: archiver.RowKindArticle, ArticleID: "2", MenuName: "가입인사"},
		{Kind: archiver.RowKindArticle, ArticleID: "3", BoardLabel: "fallback"},
		{Kind: archiver.RowKindArticle, ArticleID: "4"},
	}
	client := &fakeSearchClient{pages: map[int]archiver.SearchResult{1: {Rows: rows}}}

	stage := New(client, zap.NewNop())
	candidates, err := stage.Collect(context.Background(), testCafe(), "kw", nil)

	require.NoError(t, err)
	require.Equal(t, []string{"공부인증", "가입인사", "fallback", ""}, []string{
		candidates[0].Board, candidates[1].Board, candidates[2].Board, candidates[3].Board,
	})
}

func TestParseCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want int
	}{
		{"1,234", 1234},
		{" 42 ", 42},
		{"", 0},
		{"n/a", 0},
		{"-7", 0},
		{"12 345", 12345},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, ParseCount(tt.raw))
		})
	}
}

func TestCollect_CountsScannedPages(t *testing.T) {
	// A full first page and a short second page: both are scanned and both
	// must show up in the pages-scanned counter. Other tests may bump the
	// shared counter concurrently, so only the lower bound is asserted.
	client := &fakeSearchClient{pages: map[int]archiver.SearchResult{
		1: {Rows: articleRows(1, PageSize), TotalResults: 60},
		2: {Rows: articleRows(PageSize+1, 10), TotalResults: 60},
	}}

	before := pagesScannedMetric(t)
	stage := New(client, zap.NewNop())
	_, err := stage.Collect(context.Background(), testCafe(), "스터디", nil)
	require.NoError(t, err)

	require.GreaterOrEqual(t, pagesScannedMetric(t)-before, 2.0)
}

func pagesScannedMetric(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "archiver_search_pages_scanned_total" {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}
