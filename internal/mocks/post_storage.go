package mocks

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/VitaminP8/commentree/internal/auth"
	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/internal/post"
)

type MockPostStorage struct {
	posts   map[string]*post.Post
	creates int
	mu      sync.Mutex
}

func NewMockPostStorage() *MockPostStorage {
	return &MockPostStorage{
		posts: make(map[string]*post.Post),
	}
}

func (m *MockPostStorage) CreatePost(ctx context.Context, slug, title string) (*post.Post, error) {
	userID, err := auth.GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.posts[slug]; ok {
		return nil, post.ErrPostExists
	}
	m.creates++
	p := &post.Post{
		Slug:     slug,
		Title:    title,
		AuthorID: strconv.Itoa(int(userID)),
	}
	m.posts[slug] = p

	out := *p
	return &out, nil
}

func (m *MockPostStorage) GetPostBySlug(slug string) (*post.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.posts[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", comment.ErrPostNotFound, slug)
	}
	out := *p
	return &out, nil
}

func (m *MockPostStorage) DisableComment(ctx context.Context, slug string) error {
	return m.toggle(ctx, slug, true)
}

func (m *MockPostStorage) EnableComment(ctx context.Context, slug string) error {
	return m.toggle(ctx, slug, false)
}

func (m *MockPostStorage) toggle(ctx context.Context, slug string, disabled bool) error {
	userID, err := auth.GetUserIDFromContext(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.posts[slug]
	if !ok {
		return fmt.Errorf("%w: %s", comment.ErrPostNotFound, slug)
	}
	if p.AuthorID != strconv.Itoa(int(userID)) {
		return fmt.Errorf("only the author can change comment settings")
	}
	p.CommentsDisabled = disabled
	return nil
}

// Creates counts successful CreatePost calls.
func (m *MockPostStorage) Creates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates
}
