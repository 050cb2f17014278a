package post

import (
	"context"
	"errors"
)

var ErrPostExists = errors.New("post already exists")

// Post is the part of a post the comment backends care about.
type Post struct {
	Slug             string
	Title            string
	AuthorID         string
	CommentsDisabled bool
}

type PostStorage interface {
	CreatePost(ctx context.Context, slug, title string) (*Post, error)
	GetPostBySlug(slug string) (*Post, error)
	DisableComment(ctx context.Context, slug string) error
	EnableComment(ctx context.Context, slug string) error
}

// EnsurePosts creates the posts that do not exist yet.
func EnsurePosts(ctx context.Context, store PostStorage, slugs ...string) error {
	for _, slug := range slugs {
		if slug == "" {
			continue
		}
		if _, err := store.GetPostBySlug(slug); err == nil {
			continue
		}
		if _, err := store.CreatePost(ctx, slug, slug); err != nil && !errors.Is(err, ErrPostExists) {
			return err
		}
	}
	return nil
}
