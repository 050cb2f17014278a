package postgres

import (
	"context"
	"fmt"

	"github.com/VitaminP8/commentree/internal/auth"
	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/internal/post"
	"github.com/VitaminP8/commentree/models"
	"github.com/jinzhu/gorm"
)

type PostPostgresStorage struct{}

func NewPostPostgresStorage() *PostPostgresStorage {
	return &PostPostgresStorage{}
}

func (s *PostPostgresStorage) CreatePost(ctx context.Context, slug, title string) (*post.Post, error) {
	userID, err := auth.GetUserIDFromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", comment.ErrUnauthorized, err)
	}
	if slug == "" {
		return nil, fmt.Errorf("slug is required")
	}

	var existing models.Post
	err = DB.Where("slug = ?", slug).First(&existing).Error
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", post.ErrPostExists, slug)
	case !gorm.IsRecordNotFoundError(err):
		return nil, fmt.Errorf("could not check post: %w", err)
	}

	if err := ensureUser(userID); err != nil {
		return nil, err
	}

	p := &models.Post{
		Slug:   slug,
		Title:  title,
		UserID: userID,
	}
	if err := DB.Create(p).Error; err != nil {
		return nil, fmt.Errorf("could not create post: %w", err)
	}

	return toPost(p), nil
}

func (s *PostPostgresStorage) GetPostBySlug(slug string) (*post.Post, error) {
	p, err := findPost(slug)
	if err != nil {
		return nil, err
	}
	return toPost(p), nil
}

func (s *PostPostgresStorage) DisableComment(ctx context.Context, slug string) error {
	return s.setCommentsDisabled(ctx, slug, true)
}

func (s *PostPostgresStorage) EnableComment(ctx context.Context, slug string) error {
	return s.setCommentsDisabled(ctx, slug, false)
}

func (s *PostPostgresStorage) setCommentsDisabled(ctx context.Context, slug string, disabled bool) error {
	userID, err := auth.GetUserIDFromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", comment.ErrUnauthorized, err)
	}

	p, err := findPost(slug)
	if err != nil {
		return err
	}
	if p.UserID != userID {
		return fmt.Errorf("only the author can change comment settings")
	}

	err = DB.Model(p).Update("comments_disabled", disabled).Error
	if err != nil {
		return fmt.Errorf("could not update post: %w", err)
	}
	return nil
}

func findPost(slug string) (*models.Post, error) {
	var p models.Post
	err := DB.Where("slug = ?", slug).First(&p).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, fmt.Errorf("%w: %s", comment.ErrPostNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("could not get post by slug: %w", err)
	}
	return &p, nil
}

// ensureUser creates the row of a token-authenticated user on first write.
func ensureUser(userID uint) error {
	user := models.User{Model: gorm.Model{ID: userID}}
	err := DB.Where(models.User{Model: gorm.Model{ID: userID}}).
		Attrs(models.User{Username: fmt.Sprintf("user%d", userID)}).
		FirstOrCreate(&user).Error
	if err != nil {
		return fmt.Errorf("could not ensure user %d: %w", userID, err)
	}
	return nil
}

func toPost(p *models.Post) *post.Post {
	return &post.Post{
		Slug:             p.Slug,
		Title:            p.Title,
		AuthorID:         fmt.Sprint(p.UserID),
		CommentsDisabled: p.CommentsDisabled,
	}
}
