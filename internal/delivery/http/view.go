package http

import (
	"time"

	"github.com/VitaminP8/commentree/internal/section"
	"github.com/VitaminP8/commentree/internal/subscription"
	"github.com/VitaminP8/commentree/internal/tree"
)

// CommentResponse is one node as the renderer sees it. Children is only set
// when ChildrenLoaded is true.
type CommentResponse struct {
	ID             int64              `json:"id"`
	Author         string             `json:"author"`
	Content        string             `json:"content"`
	TimeCreated    time.Time          `json:"time_created"`
	SumRating      int                `json:"sum_rating"`
	UserVote       int                `json:"user_vote"`
	RepliesCount   int                `json:"replies_count"`
	ChildrenLoaded bool               `json:"children_loaded"`
	Children       []*CommentResponse `json:"children,omitempty"`
}

type TreeResponse struct {
	PostID   string             `json:"post_id"`
	HasMore  bool               `json:"has_more"`
	Total    int                `json:"total_loaded"`
	Comments []*CommentResponse `json:"comments"`
}

type PageResponse struct {
	HasMore  bool               `json:"has_more"`
	Comments []*CommentResponse `json:"comments"`
}

type EventResponse struct {
	Kind      subscription.EventKind `json:"kind"`
	PostID    string                 `json:"post_id"`
	CommentID int64                  `json:"comment_id,omitempty"`
	ParentID  int64                  `json:"parent_id,omitempty"`
	HasMore   bool                   `json:"has_more,omitempty"`
	Comments  []*CommentResponse     `json:"comments"`
}

type CreateCommentRequest struct {
	Content  string `json:"content"`
	ParentID *int64 `json:"parent_id"`
}

type VoteRequest struct {
	Value int `json:"value"`
}

func toResponse(n *tree.Node) *CommentResponse {
	resp := &CommentResponse{
		ID:             n.ID,
		Author:         n.Author,
		Content:        n.Content,
		TimeCreated:    n.CreatedAt,
		SumRating:      n.SumRating,
		UserVote:       int(n.UserVote),
		RepliesCount:   n.RepliesCount,
		ChildrenLoaded: n.Children.IsLoaded(),
	}
	if n.Children.IsLoaded() {
		resp.Children = toResponses(n.Children.Nodes())
	}
	return resp
}

func toResponses(nodes []*tree.Node) []*CommentResponse {
	out := make([]*CommentResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, toResponse(n))
	}
	return out
}

func toTreeResponse(v section.View) *TreeResponse {
	return &TreeResponse{
		PostID:   v.PostID,
		HasMore:  v.HasMore,
		Total:    v.Forest.Len(),
		Comments: toResponses(v.Forest.Roots()),
	}
}

// toEventResponse renders an event as delivered to one listener; votes of
// other viewers were already reset by the subscription manager.
func toEventResponse(e *subscription.Event) *EventResponse {
	return &EventResponse{
		Kind:      e.Kind,
		PostID:    e.PostID,
		CommentID: e.CommentID,
		ParentID:  e.ParentID,
		HasMore:   e.HasMore,
		Comments:  toResponses(e.Nodes),
	}
}
