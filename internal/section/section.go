package section

import (
	"context"
	"strings"
	"sync"

	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/internal/subscription"
	"github.com/VitaminP8/commentree/internal/tree"
	"go.uber.org/zap"
)

type Config struct {
	PageSize int
	// MaxSections caps the sections a Registry keeps. Zero means
	// DefaultMaxSections.
	MaxSections int
	// Events receives an event after every committed change. Optional.
	Events subscription.Manager
	// Viewer is the user the section belongs to; its events carry it.
	Viewer uint
}

// Section is the comment section of one post as seen by one viewer.
//
// Calls to the comment API run without holding the lock; the lock only guards
// reading and swapping the forest, so a slow fetch never blocks other
// operations and every commit applies to the latest forest.
type Section struct {
	postID   string
	api      comment.CommentStorage
	events   subscription.Manager
	viewer   uint
	logger   *zap.Logger
	pageSize int

	mu       sync.Mutex
	forest   *tree.Forest
	loaded   bool
	hasMore  bool
	nextPage int
	// gen counts committed first-page loads. A further page is only
	// appended to the generation it was requested for.
	gen uint64
}

// View is a consistent read of a section.
type View struct {
	PostID  string
	Forest  *tree.Forest
	Loaded  bool
	HasMore bool
}

func New(postID string, api comment.CommentStorage, cfg Config, logger *zap.Logger) *Section {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Section{
		postID:   postID,
		api:      api,
		events:   cfg.Events,
		viewer:   cfg.Viewer,
		logger:   logger.With(zap.String("post_id", postID)),
		pageSize: comment.ClampPageSize(cfg.PageSize),
		forest:   tree.New(),
		nextPage: 1,
	}
}

func (s *Section) PostID() string {
	return s.postID
}

func (s *Section) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{PostID: s.postID, Forest: s.forest, Loaded: s.loaded, HasMore: s.hasMore}
}

// LoadRoots fetches the first page of root comments and replaces the forest
// with it. On failure the previous roots stay.
func (s *Section) LoadRoots(ctx context.Context) ([]*tree.Node, bool, error) {
	page, err := s.api.FetchRootComments(ctx, s.postID, 1, s.pageSize)
	if err != nil {
		return nil, false, s.fail(OpLoadRoots, 0, err)
	}
	nodes := comment.ToNodes(page.Items)

	err = s.commit(func(f *tree.Forest) (*tree.Forest, error) {
		next, err := f.WithRoots(nodes)
		if err != nil {
			return nil, err
		}
		s.loaded = true
		s.hasMore = page.HasNext
		s.nextPage = 2
		s.gen++
		return next, nil
	})
	if err != nil {
		return nil, false, s.fail(OpLoadRoots, 0, err)
	}

	s.logger.Debug("root comments loaded", zap.Int("count", len(nodes)), zap.Bool("has_more", page.HasNext))
	s.publish(&subscription.Event{Kind: subscription.RootsLoaded, Nodes: nodes, HasMore: page.HasNext})
	return nodes, page.HasNext, nil
}

// LoadMoreRoots fetches the next page of roots and appends it. Before the
// first page is loaded it behaves like LoadRoots. When the server reported no
// further pages nothing is fetched.
func (s *Section) LoadMoreRoots(ctx context.Context) ([]*tree.Node, bool, error) {
	s.mu.Lock()
	loaded, hasMore, pageNum, gen := s.loaded, s.hasMore, s.nextPage, s.gen
	s.mu.Unlock()

	if !loaded {
		return s.LoadRoots(ctx)
	}
	if !hasMore {
		return nil, false, nil
	}

	page, err := s.api.FetchRootComments(ctx, s.postID, pageNum, s.pageSize)
	if err != nil {
		return nil, false, s.fail(OpLoadMoreRoots, 0, err)
	}
	nodes := comment.ToNodes(page.Items)

	err = s.commit(func(f *tree.Forest) (*tree.Forest, error) {
		if s.gen != gen {
			return nil, ErrReloaded
		}
		next, err := f.AppendRoots(nodes)
		if err != nil {
			return nil, err
		}
		if pageNum >= s.nextPage {
			s.nextPage = pageNum + 1
			s.hasMore = page.HasNext
		}
		return next, nil
	})
	if err != nil {
		return nil, false, s.fail(OpLoadMoreRoots, 0, err)
	}

	s.logger.Debug("more root comments loaded", zap.Int("page", pageNum), zap.Int("count", len(nodes)))
	s.publish(&subscription.Event{Kind: subscription.RootsAppended, Nodes: nodes, HasMore: page.HasNext})
	return nodes, page.HasNext, nil
}

// Expand returns the direct replies of a comment, fetching them on first use.
func (s *Section) Expand(ctx context.Context, id int64) ([]*tree.Node, error) {
	s.mu.Lock()
	n, ok := s.forest.Find(id)
	s.mu.Unlock()

	switch {
	case !ok:
		return nil, s.fail(OpExpand, id, ErrNotLoaded)
	case n.Children.IsLoaded():
		return n.Children.Nodes(), nil
	case n.RepliesCount == 0:
		return nil, s.fail(OpExpand, id, ErrNotExpandable)
	}

	items, err := s.api.FetchReplies(ctx, s.postID, id)
	if err != nil {
		return nil, s.fail(OpExpand, id, err)
	}
	fetched := comment.ToNodes(items)

	var children []*tree.Node
	err = s.commit(func(f *tree.Forest) (*tree.Forest, error) {
		next, err := f.WithChildren(id, fetched)
		if err != nil {
			return nil, err
		}
		n, _ := next.Find(id)
		children = n.Children.Nodes()
		return next, nil
	})
	if err != nil {
		return nil, s.fail(OpExpand, id, err)
	}

	s.logger.Debug("replies loaded", zap.Int64("comment_id", id), zap.Int("count", len(fetched)))
	s.publish(&subscription.Event{Kind: subscription.ChildrenLoaded, CommentID: id, ParentID: id, Nodes: children})
	return children, nil
}

// Reply creates a comment under parent and inserts it once the server has
// acknowledged it. The parent's RepliesCount is left untouched.
func (s *Section) Reply(ctx context.Context, parent tree.ParentRef, text string) (*tree.Node, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, s.fail(OpReply, parent.ID(), ErrEmptyContent)
	}

	var parentID *int64
	if !parent.IsRoot() {
		if _, ok := s.find(parent.ID()); !ok {
			return nil, s.fail(OpReply, parent.ID(), ErrNotLoaded)
		}
		id := parent.ID()
		parentID = &id
	}

	item, err := s.api.CreateComment(ctx, s.postID, content, parentID)
	if err != nil {
		return nil, s.fail(OpReply, parent.ID(), err)
	}
	node := comment.ToNode(*item)
	node.Children = tree.Loaded()

	err = s.commit(func(f *tree.Forest) (*tree.Forest, error) {
		return f.WithReply(parent, node)
	})
	if err != nil {
		return nil, s.fail(OpReply, parent.ID(), err)
	}

	s.logger.Debug("reply inserted", zap.Int64("comment_id", node.ID), zap.Stringer("parent", parent))
	s.publish(&subscription.Event{Kind: subscription.ReplyInserted, CommentID: node.ID, ParentID: parent.ID(), Nodes: []*tree.Node{node}})
	return node, nil
}

// Vote casts +1 or -1 on a loaded comment and stores the server's answer.
func (s *Section) Vote(ctx context.Context, id int64, value int) (*tree.Node, error) {
	if !comment.ValidVote(value) {
		return nil, s.fail(OpVote, id, ErrInvalidVote)
	}
	if _, ok := s.find(id); !ok {
		return nil, s.fail(OpVote, id, ErrNotLoaded)
	}

	res, err := s.api.CastVote(ctx, s.postID, id, value)
	if err != nil {
		return nil, s.fail(OpVote, id, err)
	}
	return s.applyVote(OpVote, id, res)
}

// RetractVote removes the viewer's vote from a loaded comment.
func (s *Section) RetractVote(ctx context.Context, id int64) (*tree.Node, error) {
	if _, ok := s.find(id); !ok {
		return nil, s.fail(OpRetractVote, id, ErrNotLoaded)
	}

	res, err := s.api.RetractVote(ctx, s.postID, id)
	if err != nil {
		return nil, s.fail(OpRetractVote, id, err)
	}
	return s.applyVote(OpRetractVote, id, res)
}

func (s *Section) applyVote(op Op, id int64, res *comment.VoteResult) (*tree.Node, error) {
	var updated *tree.Node
	err := s.commit(func(f *tree.Forest) (*tree.Forest, error) {
		next, err := f.WithVote(id, res.SumRating, tree.Vote(res.UserVote))
		if err != nil {
			return nil, err
		}
		updated, _ = next.Find(id)
		return next, nil
	})
	if err != nil {
		return nil, s.fail(op, id, err)
	}

	s.publish(&subscription.Event{Kind: subscription.VoteUpdated, CommentID: id, Nodes: []*tree.Node{updated}})
	return updated, nil
}

func (s *Section) find(id int64) (*tree.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest.Find(id)
}

// commit applies fn to the current forest and swaps the result in. fn runs
// under the lock and may update the paging state.
func (s *Section) commit(fn func(*tree.Forest) (*tree.Forest, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.forest)
	if err != nil {
		return err
	}
	s.forest = next
	return nil
}

func (s *Section) fail(op Op, id int64, err error) error {
	s.logger.Warn("comment operation failed",
		zap.String("op", string(op)),
		zap.Int64("comment_id", id),
		zap.Error(err),
	)
	return &OperationError{Op: op, PostID: s.postID, CommentID: id, Err: err}
}

func (s *Section) publish(e *subscription.Event) {
	if s.events == nil {
		return
	}
	e.PostID = s.postID
	e.Viewer = s.viewer
	s.events.Publish(s.postID, e)
}
