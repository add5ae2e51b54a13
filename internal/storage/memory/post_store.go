package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

// PostStore is an in-memory archiver.PostStore with the same global
// content-hash uniqueness the Postgres store enforces.
type PostStore struct {
	mu       sync.RWMutex
	posts    map[string]archiver.Post
	byHash   map[string]string
	comments map[string][]archiver.Comment
}

// NewPostStore constructs a PostStore.
func NewPostStore() *PostStore {
	return &PostStore{
		posts:    make(map[string]archiver.Post),
		byHash:   make(map[string]string),
		comments: make(map[string][]archiver.Comment),
	}
}

// CreatePost inserts a post unless its content hash is already present.
func (s *PostStore) CreatePost(_ context.Context, post archiver.Post) (string, bool, error) {
	if post.ID == "" {
		return "", false, errors.New("post id is required")
	}
	if post.ContentHash == "" {
		return "", false, errors.New("post content hash is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byHash[post.ContentHash]; dup {
		return "", false, nil
	}
	s.posts[post.ID] = post
	s.byHash[post.ContentHash] = post.ID
	return post.ID, true, nil
}

// CreateComments stores the comments for a post.
func (s *PostStore) CreateComments(_ context.Context, postID string, comments []archiver.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[postID]; !ok {
		return archiver.ErrNotFound
	}
	s.comments[postID] = append([]archiver.Comment(nil), comments...)
	return nil
}

// CountPosts returns the number of posts stored for a job.
func (s *PostStore) CountPosts(_ context.Context, jobID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, post := range s.posts {
		if post.JobID == jobID {
			n++
		}
	}
	return n, nil
}

// Comments returns the stored comments for a post (test helper).
func (s *PostStore) Comments(postID string) []archiver.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]archiver.Comment(nil), s.comments[postID]...)
}
