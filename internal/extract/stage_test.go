package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

type fakeBrowser struct {
	snap archiver.PageSnapshot
	err  error
}

func (b *fakeBrowser) Navigate(_ context.Context, url string) (archiver.PageSnapshot, error) {
	if b.err != nil {
		return archiver.PageSnapshot{}, b.err
	}
	snap := b.snap
	if snap.Location == "" {
		snap.Location = url
	}
	snap.URL = url
	return snap, nil
}

func candidate() archiver.Candidate {
	return archiver.Candidate{
		ArticleID: 42,
		CafeID:    "cafe1",
		URL:       "https://cafe.example.com/study/42",
	}
}

const articleHTML = `<html><head>
<meta property="og:title" content="OG Title">
</head><body>
<h3 class="title">집중 스터디 후기</h3>
<div class="profile_info"><span class="nickname">studyowl</span></div>
<div class="article_info"><time datetime="2026-03-10T09:30:00Z">2026.03.10.</time></div>
<div>조회 1,523 좋아요 12 댓글 3</div>
<div class="se-main-container">
  오늘은 도서관에서 여섯 시간 동안 집중해서 공부했습니다. 타이머를 쓰니 확실히 효율이 좋네요.
</div>
<ul class="comment_list">
  <li><span class="nickname">alpha</span><p class="text_comment">대단하세요! 저도 도전해볼게요.</p><time datetime="2026-03-10T10:00:00Z"></time></li>
  <li><span class="nickname">beta</span><p class="text_comment">무슨 타이머 쓰세요?</p></li>
  <li><span class="nickname">spam</span><p class="text_comment">ㅋ</p></li>
</ul>
</body></html>`

func TestExtract_FullArticle(t *testing.T) {
	t.Parallel()

	stage := New(&fakeBrowser{snap: archiver.PageSnapshot{HTML: articleHTML}}, Config{}, zap.NewNop())

	ext, err := stage.Extract(context.Background(), candidate())
	require.NoError(t, err)

	require.Equal(t, "집중 스터디 후기", ext.Title)
	require.Equal(t, "studyowl", ext.AuthorName)
	require.NotNil(t, ext.PublishedAt)
	require.Equal(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC), ext.PublishedAt.UTC())
	require.Equal(t, 1523, ext.ViewCount)
	require.Equal(t, 12, ext.LikeCount)
	require.Equal(t, 3, ext.CommentCount)
	require.Contains(t, ext.Content, "여섯 시간")

	// The one-character comment is boilerplate-bounded out.
	require.Len(t, ext.Comments, 2)
	require.Equal(t, "alpha", ext.Comments[0].AuthorName)
	require.Equal(t, "대단하세요! 저도 도전해볼게요.", ext.Comments[0].Body)
	require.NotNil(t, ext.Comments[0].WrittenAt)
	require.Nil(t, ext.Comments[1].WrittenAt)
}

func TestExtract_LoginRedirectIsSessionExpired(t *testing.T) {
	t.Parallel()

	stage := New(&fakeBrowser{snap: archiver.PageSnapshot{
		HTML:     "<html><body>sign in</body></html>",
		Location: "https://auth.example.com/login?next=cafe",
	}}, Config{}, zap.NewNop())

	_, err := stage.Extract(context.Background(), candidate())
	require.ErrorIs(t, err, archiver.ErrSessionExpired)
}

func TestExtract_NoContainerIsUnparseable(t *testing.T) {
	t.Parallel()

	stage := New(&fakeBrowser{snap: archiver.PageSnapshot{
		HTML: "<html><body><div class='sidebar'>nothing useful here at all</div></body></html>",
	}}, Config{}, zap.NewNop())

	_, err := stage.Extract(context.Background(), candidate())
	require.ErrorIs(t, err, archiver.ErrUnparseable)
}

func TestExtract_ShortContainerFallsThroughChain(t *testing.T) {
	t.Parallel()

	// The first selector matches but is below the 20-char acceptance gate;
	// the next selector in the chain wins.
	html := `<html><body>
<div class="se-main-container">too short</div>
<div id="postViewArea">this fallback container easily clears the minimum content length gate</div>
</body></html>`
	stage := New(&fakeBrowser{snap: archiver.PageSnapshot{HTML: html}}, Config{}, zap.NewNop())

	ext, err := stage.Extract(context.Background(), candidate())
	require.NoError(t, err)
	require.Contains(t, ext.Content, "fallback container")
}

func TestExtract_NavigationErrorPassesThrough(t *testing.T) {
	t.Parallel()

	navErr := errors.New("navigation timeout")
	stage := New(&fakeBrowser{err: navErr}, Config{}, zap.NewNop())

	_, err := stage.Extract(context.Background(), candidate())
	require.ErrorIs(t, err, navErr)
	require.NotErrorIs(t, err, archiver.ErrSessionExpired)
}

func TestExtract_CommentCapAndBounds(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	sb.WriteString(`<html><body><div class="se-main-container">`)
	sb.WriteString(strings.Repeat("content body long enough ", 4))
	sb.WriteString(`</div><ul class="comment_list">`)
	for i := 0; i < 150; i++ {
		fmt.Fprintf(&sb, `<li><p class="text_comment">comment number %d</p></li>`, i)
	}
	// Oversized body excluded by the 500-char bound.
	fmt.Fprintf(&sb, `<li><p class="text_comment">%s</p></li>`, strings.Repeat("x", 501))
	sb.WriteString(`</ul></body></html>`)

	stage := New(&fakeBrowser{snap: archiver.PageSnapshot{HTML: sb.String()}}, Config{}, zap.NewNop())

	ext, err := stage.Extract(context.Background(), candidate())
	require.NoError(t, err)
	require.Len(t, ext.Comments, 120)
	for _, c := range ext.Comments {
		require.LessOrEqual(t, len([]rune(c.Body)), 500)
		require.GreaterOrEqual(t, len([]rune(c.Body)), 2)
	}
}

func TestExtract_MissingDateIsNil(t *testing.T) {
	t.Parallel()

	html := `<html><body><div class="se-main-container">
plenty of content text in this container to pass the gate
</div><span class="date">sometime last week</span></body></html>`
	stage := New(&fakeBrowser{snap: archiver.PageSnapshot{HTML: html}}, Config{}, zap.NewNop())

	ext, err := stage.Extract(context.Background(), candidate())
	require.NoError(t, err)
	require.Nil(t, ext.PublishedAt)
}
