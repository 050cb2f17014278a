package comment

import (
	"context"
	"errors"
	"time"
)

const (
	MaxContentLength = 500
	DefaultPageSize  = 10
	MaxPageSize      = 50
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPostNotFound     = errors.New("post not found")
	ErrCommentNotFound  = errors.New("comment not found")
	ErrCommentsDisabled = errors.New("comments are disabled for this post")
	ErrInvalidContent   = errors.New("content is too long or empty")
	ErrInvalidVote      = errors.New("vote value must be 1 or -1")
)

// Item is a comment as the comment API reports it.
type Item struct {
	ID           int64     `json:"id"`
	Author       string    `json:"author"`
	Content      string    `json:"content"`
	TimeCreated  time.Time `json:"time_created"`
	TimeUpdated  time.Time `json:"time_updated"`
	SumRating    int       `json:"sum_rating"`
	UserVote     int       `json:"user_vote"`
	RepliesCount int       `json:"replies_count"`
}

// Page is one page of root comments.
type Page struct {
	Items   []Item
	HasNext bool
}

// VoteResult is the server's view of a comment's rating after a vote change.
type VoteResult struct {
	SumRating int `json:"sum_rating"`
	UserVote  int `json:"user_vote"`
}

// CommentStorage is the remote comment API a comment section talks to.
// Implementations read the acting user from the context (see auth.WithUserID)
// or carry their own credentials.
type CommentStorage interface {
	FetchRootComments(ctx context.Context, postID string, page, pageSize int) (*Page, error)
	FetchReplies(ctx context.Context, postID string, parentID int64) ([]Item, error)
	CreateComment(ctx context.Context, postID, content string, parentID *int64) (*Item, error)
	CastVote(ctx context.Context, postID string, commentID int64, value int) (*VoteResult, error)
	RetractVote(ctx context.Context, postID string, commentID int64) (*VoteResult, error)
}
