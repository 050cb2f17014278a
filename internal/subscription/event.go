package subscription

import "github.com/VitaminP8/commentree/internal/tree"

type EventKind string

const (
	RootsLoaded    EventKind = "roots_loaded"
	RootsAppended  EventKind = "roots_appended"
	ChildrenLoaded EventKind = "children_loaded"
	ReplyInserted  EventKind = "reply_inserted"
	VoteUpdated    EventKind = "vote_updated"
)

// Event describes one committed change of a comment section. ParentID is 0
// for root-level changes; Nodes carries the nodes the change added or touched.
// Viewer is the user whose section changed, 0 for anonymous.
type Event struct {
	Kind      EventKind
	PostID    string
	Viewer    uint
	CommentID int64
	ParentID  int64
	Nodes     []*tree.Node
	HasMore   bool
}

// WithoutVotes returns the event as other viewers may see it: every node at
// any depth has its UserVote reset. The receiver is returned when no node
// carries a vote.
func (e *Event) WithoutVotes() *Event {
	if !hasVotes(e.Nodes) {
		return e
	}
	c := *e
	c.Nodes = stripVotes(e.Nodes)
	return &c
}

func hasVotes(nodes []*tree.Node) bool {
	for _, n := range nodes {
		if n.UserVote != tree.VoteNone || hasVotes(n.Children.Nodes()) {
			return true
		}
	}
	return false
}

func stripVotes(nodes []*tree.Node) []*tree.Node {
	out := make([]*tree.Node, 0, len(nodes))
	for _, n := range nodes {
		c := *n
		c.UserVote = tree.VoteNone
		if n.Children.IsLoaded() {
			c.Children = tree.Loaded(stripVotes(n.Children.Nodes())...)
		}
		out = append(out, &c)
	}
	return out
}
