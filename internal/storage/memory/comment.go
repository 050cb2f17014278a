package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/VitaminP8/commentree/internal/auth"
	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/internal/post"
)

type storedComment struct {
	comment.Item
	postID   string
	parentID int64 // 0 for root comments
	authorID uint
}

// CommentMemoryStorage is an in-process comment API. It keeps the ordering
// rules of the remote API: roots newest first, replies oldest first.
type CommentMemoryStorage struct {
	mu          sync.Mutex
	comments    map[int64]*storedComment
	replies     map[int64][]int64      // parentID -> reply ids in creation order
	votes       map[int64]map[uint]int // commentID -> userID -> value
	nextID      int64
	postStorage post.PostStorage
	now         func() time.Time
}

func NewCommentMemoryStorage(postStore post.PostStorage) *CommentMemoryStorage {
	return &CommentMemoryStorage{
		comments:    make(map[int64]*storedComment),
		replies:     make(map[int64][]int64),
		votes:       make(map[int64]map[uint]int),
		nextID:      1,
		postStorage: postStore,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *CommentMemoryStorage) CreateComment(ctx context.Context, postID, content string, parentID *int64) (*comment.Item, error) {
	if !comment.ValidContent(content) {
		return nil, comment.ErrInvalidContent
	}

	userID, err := auth.GetUserIDFromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", comment.ErrUnauthorized, err)
	}

	curPost, err := s.postStorage.GetPostBySlug(postID)
	if err != nil {
		return nil, err
	}
	if curPost.CommentsDisabled {
		return nil, fmt.Errorf("%w: %s", comment.ErrCommentsDisabled, postID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var parent int64
	if parentID != nil {
		parentComment, ok := s.comments[*parentID]
		if !ok {
			return nil, fmt.Errorf("%w: parent comment with ID %d", comment.ErrCommentNotFound, *parentID)
		}
		if parentComment.postID != postID {
			return nil, fmt.Errorf("%w: parent comment belongs to a different post", comment.ErrCommentNotFound)
		}
		parent = parentComment.ID
	}

	id := s.nextID
	s.nextID++

	now := s.now()
	stored := &storedComment{
		Item: comment.Item{
			ID:          id,
			Author:      authorName(userID),
			Content:     content,
			TimeCreated: now,
			TimeUpdated: now,
		},
		postID:   postID,
		parentID: parent,
		authorID: userID,
	}
	s.comments[id] = stored
	if parent != 0 {
		s.replies[parent] = append(s.replies[parent], id)
	}

	item := s.itemFor(stored, userID)
	return &item, nil
}

func (s *CommentMemoryStorage) FetchRootComments(ctx context.Context, postID string, page, pageSize int) (*comment.Page, error) {
	if page < 1 {
		return nil, fmt.Errorf("invalid page %d", page)
	}
	pageSize = comment.ClampPageSize(pageSize)

	curPost, err := s.postStorage.GetPostBySlug(postID)
	if err != nil {
		return nil, err
	}
	if curPost.CommentsDisabled {
		return &comment.Page{Items: []comment.Item{}}, nil
	}

	viewer := auth.ViewerID(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	var roots []*storedComment
	for _, c := range s.comments {
		if c.postID == postID && c.parentID == 0 {
			roots = append(roots, c)
		}
	}

	sort.Slice(roots, func(i, j int) bool {
		if roots[i].TimeCreated.Equal(roots[j].TimeCreated) {
			return roots[i].ID > roots[j].ID
		}
		return roots[i].TimeCreated.After(roots[j].TimeCreated)
	})

	offset := (page - 1) * pageSize
	if offset >= len(roots) {
		return &comment.Page{Items: []comment.Item{}}, nil
	}
	end := offset + pageSize
	if end > len(roots) {
		end = len(roots)
	}

	items := make([]comment.Item, 0, end-offset)
	for _, c := range roots[offset:end] {
		items = append(items, s.itemFor(c, viewer))
	}

	return &comment.Page{
		Items:   items,
		HasNext: end < len(roots),
	}, nil
}

func (s *CommentMemoryStorage) FetchReplies(ctx context.Context, postID string, parentID int64) ([]comment.Item, error) {
	viewer := auth.ViewerID(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.comments[parentID]
	if !ok || parent.postID != postID {
		return nil, fmt.Errorf("%w: parent comment with ID %d", comment.ErrCommentNotFound, parentID)
	}

	children := make([]*storedComment, 0, len(s.replies[parentID]))
	for _, id := range s.replies[parentID] {
		children = append(children, s.comments[id])
	}

	sort.SliceStable(children, func(i, j int) bool {
		if children[i].TimeCreated.Equal(children[j].TimeCreated) {
			return children[i].ID < children[j].ID
		}
		return children[i].TimeCreated.Before(children[j].TimeCreated)
	})

	items := make([]comment.Item, 0, len(children))
	for _, c := range children {
		items = append(items, s.itemFor(c, viewer))
	}
	return items, nil
}

func (s *CommentMemoryStorage) CastVote(ctx context.Context, postID string, commentID int64, value int) (*comment.VoteResult, error) {
	if !comment.ValidVote(value) {
		return nil, comment.ErrInvalidVote
	}
	return s.changeVote(ctx, postID, commentID, value)
}

func (s *CommentMemoryStorage) RetractVote(ctx context.Context, postID string, commentID int64) (*comment.VoteResult, error) {
	return s.changeVote(ctx, postID, commentID, 0)
}

// changeVote stores value as the user's vote; 0 removes it.
func (s *CommentMemoryStorage) changeVote(ctx context.Context, postID string, commentID int64, value int) (*comment.VoteResult, error) {
	userID, err := auth.GetUserIDFromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", comment.ErrUnauthorized, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok || c.postID != postID {
		return nil, fmt.Errorf("%w: %d", comment.ErrCommentNotFound, commentID)
	}

	if value == 0 {
		delete(s.votes[commentID], userID)
	} else {
		if s.votes[commentID] == nil {
			s.votes[commentID] = make(map[uint]int)
		}
		s.votes[commentID][userID] = value
	}

	return &comment.VoteResult{
		SumRating: s.sumRating(commentID),
		UserVote:  s.votes[commentID][userID],
	}, nil
}

// itemFor must be called with s.mu held.
func (s *CommentMemoryStorage) itemFor(c *storedComment, viewer uint) comment.Item {
	item := c.Item
	item.SumRating = s.sumRating(c.ID)
	item.RepliesCount = len(s.replies[c.ID])
	if viewer != 0 {
		item.UserVote = s.votes[c.ID][viewer]
	}
	return item
}

func (s *CommentMemoryStorage) sumRating(commentID int64) int {
	sum := 0
	for _, v := range s.votes[commentID] {
		sum += v
	}
	return sum
}

func authorName(userID uint) string {
	return fmt.Sprintf("user%d", userID)
}
