package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/VitaminP8/commentree/internal/auth"
	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/internal/post"
)

type PostMemoryStorage struct {
	mu    sync.Mutex
	posts map[string]*post.Post // slug -> post
}

func NewPostMemoryStorage() *PostMemoryStorage {
	return &PostMemoryStorage{
		posts: make(map[string]*post.Post),
	}
}

func (s *PostMemoryStorage) CreatePost(ctx context.Context, slug, title string) (*post.Post, error) {
	userID, err := auth.GetUserIDFromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", comment.ErrUnauthorized, err)
	}
	if slug == "" {
		return nil, fmt.Errorf("slug is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[slug]; exists {
		return nil, fmt.Errorf("%w: %s", post.ErrPostExists, slug)
	}

	p := &post.Post{
		Slug:     slug,
		Title:    title,
		AuthorID: fmt.Sprint(userID),
	}
	s.posts[slug] = p

	out := *p
	return &out, nil
}

func (s *PostMemoryStorage) GetPostBySlug(slug string) (*post.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.posts[slug]
	if !exists {
		return nil, fmt.Errorf("%w: %s", comment.ErrPostNotFound, slug)
	}

	out := *p
	return &out, nil
}

func (s *PostMemoryStorage) DisableComment(ctx context.Context, slug string) error {
	return s.setCommentsDisabled(ctx, slug, true)
}

func (s *PostMemoryStorage) EnableComment(ctx context.Context, slug string) error {
	return s.setCommentsDisabled(ctx, slug, false)
}

func (s *PostMemoryStorage) setCommentsDisabled(ctx context.Context, slug string, disabled bool) error {
	userID, err := auth.GetUserIDFromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", comment.ErrUnauthorized, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.posts[slug]
	if !exists {
		return fmt.Errorf("%w: %s", comment.ErrPostNotFound, slug)
	}
	if p.AuthorID != fmt.Sprint(userID) {
		return fmt.Errorf("only the author can change comment settings")
	}

	p.CommentsDisabled = disabled
	return nil
}
