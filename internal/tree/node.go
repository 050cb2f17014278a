package tree

import (
	"slices"
	"time"
)

// Vote is the viewing user's vote on a comment.
type Vote int8

const (
	VoteDown Vote = -1
	VoteNone Vote = 0
	VoteUp   Vote = 1
)

func (v Vote) Valid() bool {
	return v == VoteDown || v == VoteNone || v == VoteUp
}

// Node is a single comment. Nodes reachable from a Forest are shared between
// forest versions and must not be modified in place.
type Node struct {
	ID           int64
	Content      string
	Author       string
	CreatedAt    time.Time
	SumRating    int
	UserVote     Vote
	RepliesCount int
	Children     Children
}

// Children is either Unloaded (never fetched) or Loaded (fetched, possibly empty).
type Children struct {
	loaded bool
	nodes  []*Node
}

// Unloaded marks children that have not been fetched yet.
func Unloaded() Children {
	return Children{}
}

// Loaded marks children as fetched. An empty call means the node has no replies.
func Loaded(nodes ...*Node) Children {
	c := Children{loaded: true, nodes: make([]*Node, 0, len(nodes))}
	c.nodes = append(c.nodes, nodes...)
	return c
}

func (c Children) IsLoaded() bool {
	return c.loaded
}

// Nodes returns a copy of the loaded children, or nil when unloaded.
func (c Children) Nodes() []*Node {
	if !c.loaded {
		return nil
	}
	return slices.Clone(c.nodes)
}

func (c Children) Len() int {
	return len(c.nodes)
}

// HasReplies reports whether expanding the node can show anything.
func (n *Node) HasReplies() bool {
	return n.RepliesCount > 0 || n.Children.Len() > 0
}
