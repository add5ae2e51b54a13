package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

func TestTruncateRoundTrip(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", BodyTextLimit+1)
	got := Truncate(long, BodyTextLimit)
	assert.Len(t, []rune(got), BodyTextLimit, "result is exactly the limit")
	assert.True(t, strings.HasSuffix(got, fmt.Sprintf("[truncated; original %d chars]", BodyTextLimit+1)))

	exact := strings.Repeat("b", BodyTextLimit)
	assert.Equal(t, exact, Truncate(exact, BodyTextLimit), "at the limit passes unchanged")
	assert.Equal(t, "short", Truncate("short", BodyTextLimit))
}

func TestTruncateCountsRunes(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("가", 120)
	got := Truncate(long, 100)
	assert.Len(t, []rune(got), 100)
	assert.Contains(t, got, "original 120 chars")
}

func TestPushSendsOneBatch(t *testing.T) {
	t.Parallel()

	var (
		gotAuth string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := New(Config{WebhookURL: srv.URL, AuthToken: "tok"}, zap.NewNop())
	require.NoError(t, err)

	published := time.Date(2026, 2, 20, 14, 30, 0, 0, time.UTC)
	job := archiver.Job{ID: "job-1"}
	posts := []archiver.Post{
		{
			ID:          "p1",
			SourceURL:   "https://cafe.example.com/cafe-a/1",
			CafeID:      "cafe-a",
			CafeName:    "Cafe A",
			Title:       "title",
			AuthorName:  "writer",
			PublishedAt: &published,
			ViewCount:   10,
			Content:     "body text",
			Comments: []archiver.Comment{
				{AuthorName: "c1", Body: "first"},
				{Body: "anonymous"},
			},
		},
		{ID: "p2", Title: "second", Content: "more"},
	}

	n, err := sink.Push(context.Background(), job, posts)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "Bearer tok", gotAuth)

	var payload sheetPayload
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	require.Len(t, payload.Rows, 2)
	row := payload.Rows[0]
	assert.Equal(t, "job-1", row.JobID)
	assert.Equal(t, "2026-02-20T14:30:00Z", row.PublishedAt)
	assert.Equal(t, "body text", row.BodyText)
	assert.Equal(t, "c1: first\nanonymous", row.CommentsText)
	assert.True(t, strings.HasPrefix(row.ContentText, "title\n\nbody text"))
	assert.Empty(t, payload.Rows[1].PublishedAt)
}

func TestPushTruncatesOversizedFields(t *testing.T) {
	t.Parallel()

	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := New(Config{WebhookURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	posts := []archiver.Post{{
		ID:      "p1",
		Content: strings.Repeat("x", BodyTextLimit+500),
		Comments: []archiver.Comment{
			{Body: strings.Repeat("y", CommentsTextLimit+500)},
		},
	}}
	_, err = sink.Push(context.Background(), archiver.Job{ID: "job-1"}, posts)
	require.NoError(t, err)

	var payload sheetPayload
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	row := payload.Rows[0]
	assert.Len(t, []rune(row.BodyText), BodyTextLimit)
	assert.Len(t, []rune(row.CommentsText), CommentsTextLimit)
	assert.Contains(t, row.BodyText, "[truncated;")
}

func TestPushFailureReportsZeroRows(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink, err := New(Config{WebhookURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	n, err := sink.Push(context.Background(), archiver.Job{ID: "job-1"}, []archiver.Post{{ID: "p1", Content: "x"}})
	require.Error(t, err)
	assert.Zero(t, n)
}

func TestPushEmptyBatchIsNoop(t *testing.T) {
	t.Parallel()

	sink, err := New(Config{WebhookURL: "https://example.com/hook"}, zap.NewNop())
	require.NoError(t, err)

	n, err := sink.Push(context.Background(), archiver.Job{ID: "job-1"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
