package postgres

import (
	"context"
	"fmt"

	"github.com/VitaminP8/commentree/internal/auth"
	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/models"
	"github.com/jinzhu/gorm"
)

// CommentPostgresStorage serves the comment API from the SQL tables. Roots
// are listed newest first, replies oldest first.
type CommentPostgresStorage struct{}

func NewCommentPostgresStorage() *CommentPostgresStorage {
	return &CommentPostgresStorage{}
}

func (s *CommentPostgresStorage) CreateComment(ctx context.Context, postID, content string, parentID *int64) (*comment.Item, error) {
	if !comment.ValidContent(content) {
		return nil, comment.ErrInvalidContent
	}

	userID, err := auth.GetUserIDFromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", comment.ErrUnauthorized, err)
	}

	post, err := findPost(postID)
	if err != nil {
		return nil, err
	}
	if post.CommentsDisabled {
		return nil, fmt.Errorf("%w: %s", comment.ErrCommentsDisabled, postID)
	}

	row := &models.Comment{
		PostID:  post.ID,
		UserID:  userID,
		Content: content,
	}
	if parentID != nil {
		parent, err := findComment(post.ID, *parentID)
		if err != nil {
			return nil, err
		}
		row.ParentID = &parent.ID
	}

	if err := ensureUser(userID); err != nil {
		return nil, err
	}
	if err := DB.Create(row).Error; err != nil {
		return nil, fmt.Errorf("could not create comment: %w", err)
	}

	items, err := toItems([]models.Comment{*row}, userID)
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

func (s *CommentPostgresStorage) FetchRootComments(ctx context.Context, postID string, page, pageSize int) (*comment.Page, error) {
	if page < 1 {
		return nil, fmt.Errorf("invalid page %d", page)
	}
	pageSize = comment.ClampPageSize(pageSize)

	post, err := findPost(postID)
	if err != nil {
		return nil, err
	}
	if post.CommentsDisabled {
		return &comment.Page{Items: []comment.Item{}}, nil
	}

	roots := DB.Model(&models.Comment{}).Where("post_id = ? AND parent_id IS NULL", post.ID)

	var total int
	if err := roots.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("could not count comments: %w", err)
	}

	offset := (page - 1) * pageSize
	var rows []models.Comment
	err = roots.Order("created_at desc").Order("id desc").
		Limit(pageSize).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("could not get comments: %w", err)
	}

	items, err := toItems(rows, auth.ViewerID(ctx))
	if err != nil {
		return nil, err
	}
	return &comment.Page{Items: items, HasNext: offset+len(rows) < total}, nil
}

func (s *CommentPostgresStorage) FetchReplies(ctx context.Context, postID string, parentID int64) ([]comment.Item, error) {
	post, err := findPost(postID)
	if err != nil {
		return nil, err
	}
	parent, err := findComment(post.ID, parentID)
	if err != nil {
		return nil, err
	}

	var rows []models.Comment
	err = DB.Where("parent_id = ?", parent.ID).
		Order("created_at asc").Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("could not get replies: %w", err)
	}

	return toItems(rows, auth.ViewerID(ctx))
}

func (s *CommentPostgresStorage) CastVote(ctx context.Context, postID string, commentID int64, value int) (*comment.VoteResult, error) {
	if !comment.ValidVote(value) {
		return nil, fmt.Errorf("%w: %d", comment.ErrInvalidVote, value)
	}
	return s.changeVote(ctx, postID, commentID, value)
}

func (s *CommentPostgresStorage) RetractVote(ctx context.Context, postID string, commentID int64) (*comment.VoteResult, error) {
	return s.changeVote(ctx, postID, commentID, 0)
}

func (s *CommentPostgresStorage) changeVote(ctx context.Context, postID string, commentID int64, value int) (*comment.VoteResult, error) {
	userID, err := auth.GetUserIDFromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", comment.ErrUnauthorized, err)
	}

	post, err := findPost(postID)
	if err != nil {
		return nil, err
	}
	target, err := findComment(post.ID, commentID)
	if err != nil {
		return nil, err
	}

	if value == 0 {
		err = DB.Where("comment_id = ? AND user_id = ?", target.ID, userID).
			Delete(&models.CommentVote{}).Error
	} else {
		var vote models.CommentVote
		err = DB.Where(models.CommentVote{CommentID: target.ID, UserID: userID}).
			Assign(models.CommentVote{Value: value}).
			FirstOrCreate(&vote).Error
	}
	if err != nil {
		return nil, fmt.Errorf("could not save vote: %w", err)
	}

	sums, err := sumRatings([]uint{target.ID})
	if err != nil {
		return nil, err
	}
	return &comment.VoteResult{SumRating: sums[target.ID], UserVote: value}, nil
}

func findComment(postID uint, id int64) (*models.Comment, error) {
	var c models.Comment
	err := DB.Where("id = ? AND post_id = ?", id, postID).First(&c).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, fmt.Errorf("%w: %d", comment.ErrCommentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("could not get comment: %w", err)
	}
	return &c, nil
}

type idCount struct {
	ID uint
	N  int
}

// toItems decorates rows with their reply counts, ratings, author names and
// the viewer's own votes.
func toItems(rows []models.Comment, viewer uint) ([]comment.Item, error) {
	items := make([]comment.Item, 0, len(rows))
	if len(rows) == 0 {
		return items, nil
	}

	ids := make([]uint, 0, len(rows))
	userIDs := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
		userIDs = append(userIDs, r.UserID)
	}

	var replyCounts []idCount
	err := DB.Model(&models.Comment{}).
		Select("parent_id as id, count(*) as n").
		Where("parent_id IN (?)", ids).
		Group("parent_id").
		Scan(&replyCounts).Error
	if err != nil {
		return nil, fmt.Errorf("could not count replies: %w", err)
	}
	replies := make(map[uint]int, len(replyCounts))
	for _, c := range replyCounts {
		replies[c.ID] = c.N
	}

	sums, err := sumRatings(ids)
	if err != nil {
		return nil, err
	}

	own := make(map[uint]int)
	if viewer != 0 {
		var votes []models.CommentVote
		err = DB.Where("comment_id IN (?) AND user_id = ?", ids, viewer).Find(&votes).Error
		if err != nil {
			return nil, fmt.Errorf("could not get votes: %w", err)
		}
		for _, v := range votes {
			own[v.CommentID] = v.Value
		}
	}

	var users []models.User
	if err := DB.Where("id IN (?)", userIDs).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("could not get authors: %w", err)
	}
	names := make(map[uint]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}

	for _, r := range rows {
		author, ok := names[r.UserID]
		if !ok {
			author = fmt.Sprintf("user%d", r.UserID)
		}
		items = append(items, comment.Item{
			ID:           int64(r.ID),
			Author:       author,
			Content:      r.Content,
			TimeCreated:  r.CreatedAt,
			TimeUpdated:  r.UpdatedAt,
			SumRating:    sums[r.ID],
			UserVote:     own[r.ID],
			RepliesCount: replies[r.ID],
		})
	}
	return items, nil
}

func sumRatings(ids []uint) (map[uint]int, error) {
	var rows []idCount
	err := DB.Model(&models.CommentVote{}).
		Select("comment_id as id, sum(value) as n").
		Where("comment_id IN (?)", ids).
		Group("comment_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("could not sum ratings: %w", err)
	}
	sums := make(map[uint]int, len(rows))
	for _, r := range rows {
		sums[r.ID] = r.N
	}
	return sums, nil
}
