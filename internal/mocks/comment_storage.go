package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/VitaminP8/commentree/internal/comment"
)

const (
	MethodFetchRootComments = "FetchRootComments"
	MethodFetchReplies      = "FetchReplies"
	MethodCreateComment     = "CreateComment"
	MethodCastVote          = "CastVote"
	MethodRetractVote       = "RetractVote"
)

// MockCommentStorage is a scripted comment API. Pages and replies are set up
// front, errors can be injected per method and every call is counted.
type MockCommentStorage struct {
	mu        sync.Mutex
	pages     map[int]*comment.Page
	replies   map[int64][]comment.Item
	ratings   map[int64]int
	votes     map[int64]int
	errs      map[string]error
	calls     map[string]int
	nextID    int64
	lastReply *CreatedComment

	// OnCall runs before a method does its work, outside the mock's lock.
	// Tests use it to hold a call in flight.
	OnCall func(method string)
}

// CreatedComment records the arguments of the last CreateComment call.
type CreatedComment struct {
	PostID   string
	Content  string
	ParentID *int64
}

func NewMockCommentStorage() *MockCommentStorage {
	return &MockCommentStorage{
		pages:   make(map[int]*comment.Page),
		replies: make(map[int64][]comment.Item),
		ratings: make(map[int64]int),
		votes:   make(map[int64]int),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
		nextID:  1000,
	}
}

// SetRootPage scripts the answer for one page of root comments.
func (m *MockCommentStorage) SetRootPage(page int, hasNext bool, items ...comment.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page] = &comment.Page{Items: items, HasNext: hasNext}
	for _, item := range items {
		m.ratings[item.ID] = item.SumRating
		m.votes[item.ID] = item.UserVote
	}
}

// SetReplies scripts the direct children of parentID.
func (m *MockCommentStorage) SetReplies(parentID int64, items ...comment.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[parentID] = items
	for _, item := range items {
		m.ratings[item.ID] = item.SumRating
		m.votes[item.ID] = item.UserVote
	}
}

// SetError makes every following call of method fail with err. A nil err
// clears the failure.
func (m *MockCommentStorage) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, method)
		return
	}
	m.errs[method] = err
}

func (m *MockCommentStorage) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockCommentStorage) LastCreated() *CreatedComment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReply
}

func (m *MockCommentStorage) enter(ctx context.Context, method string) error {
	if m.OnCall != nil {
		m.OnCall(method)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
	return m.errs[method]
}

func (m *MockCommentStorage) FetchRootComments(ctx context.Context, postID string, page, pageSize int) (*comment.Page, error) {
	if err := m.enter(ctx, MethodFetchRootComments); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pages[page]
	if !ok {
		return &comment.Page{Items: []comment.Item{}}, nil
	}
	return &comment.Page{Items: append([]comment.Item(nil), p.Items...), HasNext: p.HasNext}, nil
}

func (m *MockCommentStorage) FetchReplies(ctx context.Context, postID string, parentID int64) ([]comment.Item, error) {
	if err := m.enter(ctx, MethodFetchReplies); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]comment.Item{}, m.replies[parentID]...), nil
}

func (m *MockCommentStorage) CreateComment(ctx context.Context, postID, content string, parentID *int64) (*comment.Item, error) {
	if err := m.enter(ctx, MethodCreateComment); err != nil {
		return nil, err
	}
	if !comment.ValidContent(content) {
		return nil, comment.ErrInvalidContent
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastReply = &CreatedComment{PostID: postID, Content: content, ParentID: parentID}
	id := m.nextID
	m.nextID++
	return &comment.Item{
		ID:      id,
		Author:  "tester",
		Content: content,
	}, nil
}

func (m *MockCommentStorage) CastVote(ctx context.Context, postID string, commentID int64, value int) (*comment.VoteResult, error) {
	if err := m.enter(ctx, MethodCastVote); err != nil {
		return nil, err
	}
	if !comment.ValidVote(value) {
		return nil, fmt.Errorf("%w: %d", comment.ErrInvalidVote, value)
	}
	return m.setVote(commentID, value), nil
}

func (m *MockCommentStorage) RetractVote(ctx context.Context, postID string, commentID int64) (*comment.VoteResult, error) {
	if err := m.enter(ctx, MethodRetractVote); err != nil {
		return nil, err
	}
	return m.setVote(commentID, 0), nil
}

func (m *MockCommentStorage) setVote(commentID int64, value int) *comment.VoteResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ratings[commentID] += value - m.votes[commentID]
	m.votes[commentID] = value
	return &comment.VoteResult{SumRating: m.ratings[commentID], UserVote: value}
}
