package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mkweon/cafe-archiver/internal/archiver"
	"github.com/mkweon/cafe-archiver/internal/search"
)

type fakeJobStore struct {
	mu            sync.Mutex
	cancel        bool
	cancelErr     error
	completed     []completion
	completeErr   error
}

type completion struct {
	jobID       string
	status      archiver.JobStatus
	errText     string
	resultCount int
	sheetSynced int
	completedAt time.Time
}

func (s *fakeJobStore) CreateJob(context.Context, archiver.Job) error { return nil }

func (s *fakeJobStore) GetJob(context.Context, string) (archiver.Job, error) {
	return archiver.Job{}, archiver.ErrNotFound
}

func (s *fakeJobStore) ListJobs(context.Context, *archiver.JobStatus, int, int) ([]archiver.Job, error) {
	return nil, nil
}

func (s *fakeJobStore) ClaimNextJob(context.Context, time.Time) (archiver.Job, bool, error) {
	return archiver.Job{}, false, nil
}

func (s *fakeJobStore) CompleteJob(_ context.Context, jobID string, status archiver.JobStatus, errText string, resultCount, sheetSynced int, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return s.completeErr
	}
	s.completed = append(s.completed, completion{
		jobID:       jobID,
		status:      status,
		errText:     errText,
		resultCount: resultCount,
		sheetSynced: sheetSynced,
		completedAt: completedAt,
	})
	return nil
}

func (s *fakeJobStore) RequestCancel(context.Context, string) error {
	s.mu.Lock()
	s.cancel = true
	s.mu.Unlock()
	return nil
}

func (s *fakeJobStore) CancelRequested(context.Context, string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelErr != nil {
		return false, s.cancelErr
	}
	return s.cancel, nil
}

func (s *fakeJobStore) lastCompletion() (completion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.completed) == 0 {
		return completion{}, false
	}
	return s.completed[len(s.completed)-1], true
}

type fakePostStore struct {
	mu       sync.Mutex
	hashes   map[string]struct{}
	posts    []archiver.Post
	comments map[string][]archiver.Comment
	err      error
}

func newFakePostStore() *fakePostStore {
	return &fakePostStore{
		hashes:   make(map[string]struct{}),
		comments: make(map[string][]archiver.Comment),
	}
}

func (s *fakePostStore) CreatePost(_ context.Context, post archiver.Post) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", false, s.err
	}
	if _, exists := s.hashes[post.ContentHash]; exists {
		return "", false, nil
	}
	s.hashes[post.ContentHash] = struct{}{}
	s.posts = append(s.posts, post)
	return post.ID, true, nil
}

func (s *fakePostStore) CreateComments(_ context.Context, postID string, comments []archiver.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[postID] = append(s.comments[postID], comments...)
	return nil
}

func (s *fakePostStore) CountPosts(context.Context, string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts), nil
}

type fakeProgressStore struct {
	mu   sync.Mutex
	docs []archiver.ProgressDocument
}

func (s *fakeProgressStore) SaveProgress(_ context.Context, doc archiver.ProgressDocument) error {
	s.mu.Lock()
	s.docs = append(s.docs, doc)
	s.mu.Unlock()
	return nil
}

func (s *fakeProgressStore) GetProgress(context.Context, string) (archiver.ProgressDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.docs) == 0 {
		return archiver.ProgressDocument{}, archiver.ErrNotFound
	}
	return s.docs[len(s.docs)-1], nil
}

func (s *fakeProgressStore) lastDoc() archiver.ProgressDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.docs) == 0 {
		return archiver.ProgressDocument{}
	}
	return s.docs[len(s.docs)-1]
}

type fakeSearcher struct {
	candidates map[string][]archiver.Candidate // keyed by CellKey(cafeID, keyword)
	errByKey   map[string]error
	err        error
}

func (f *fakeSearcher) Collect(_ context.Context, cafe archiver.Cafe, keyword string, report search.PageReport) ([]archiver.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err, ok := f.errByKey[archiver.CellKey(cafe.ID, keyword)]; ok {
		return nil, err
	}
	cands := f.candidates[archiver.CellKey(cafe.ID, keyword)]
	if report != nil {
		report(1, len(cands), len(cands))
	}
	return cands, nil
}

type fakeExtractor struct {
	mu      sync.Mutex
	calls   int
	results map[int64]archiver.Extraction
	errs    map[int64]error
	onCall  func(call int) // invoked after each extraction, under the lock
	panicOn int64
}

func (f *fakeExtractor) Extract(_ context.Context, cand archiver.Candidate) (archiver.Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panicOn != 0 && cand.ArticleID == f.panicOn {
		panic(fmt.Sprintf("extractor blew up on %d", cand.ArticleID))
	}
	if f.onCall != nil {
		f.onCall(f.calls)
	}
	if err, ok := f.errs[cand.ArticleID]; ok {
		return archiver.Extraction{}, err
	}
	if ext, ok := f.results[cand.ArticleID]; ok {
		return ext, nil
	}
	return archiver.Extraction{
		Title:   cand.Title,
		Content: fmt.Sprintf("default content for article %d with enough text", cand.ArticleID),
	}, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSheet struct {
	mu     sync.Mutex
	pushed [][]archiver.Post
	synced int
	err    error
}

func (f *fakeSheet) Push(_ context.Context, _ archiver.Job, posts []archiver.Post) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, posts)
	if f.err != nil {
		return f.synced, f.err
	}
	return len(posts), nil
}

func (f *fakeSheet) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushed)
}

type fakeBackup struct {
	mu    sync.Mutex
	saved [][]archiver.Post
	err   error
}

func (f *fakeBackup) Save(_ context.Context, jobID string, posts []archiver.Post) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, posts)
	return "/tmp/" + jobID + ".jsonl", nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []any
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.messages = append(f.messages, payload)
	return "msg-1", nil
}

type sha256Hasher struct{}

func (sha256Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

var errSinkDown = errors.New("webhook returned 502")
