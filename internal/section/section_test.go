package section

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/VitaminP8/commentree/internal/comment"
	"github.com/VitaminP8/commentree/internal/mocks"
	"github.com/VitaminP8/commentree/internal/subscription"
	"github.com/VitaminP8/commentree/internal/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const postID = "first-post"

func item(id int64, content string, replies int) comment.Item {
	return comment.Item{ID: id, Author: "author", Content: content, RepliesCount: replies}
}

func newSection(t *testing.T) (*Section, *mocks.MockCommentStorage, *mocks.MockSubscriptionManager) {
	t.Helper()
	api := mocks.NewMockCommentStorage()
	events := mocks.NewMockSubscriptionManager()
	s := New(postID, api, Config{PageSize: 4, Events: events}, zaptest.NewLogger(t))
	return s, api, events
}

// loadedSection has roots A(1) B(2) C(3) D(4) with two more roots on page 2,
// A has replies A1(11) A2(12) and A1 has reply A1a(111).
func loadedSection(t *testing.T) (*Section, *mocks.MockCommentStorage, *mocks.MockSubscriptionManager) {
	t.Helper()
	s, api, events := newSection(t)
	api.SetRootPage(1, true, item(1, "A", 2), item(2, "B", 0), item(3, "C", 1), item(4, "D", 0))
	api.SetRootPage(2, false, item(5, "E", 0), item(6, "F", 0))
	api.SetReplies(1, item(11, "A1", 1), item(12, "A2", 0))
	api.SetReplies(11, item(111, "A1a", 0))
	api.SetReplies(3, item(31, "C1", 0))

	_, _, err := s.LoadRoots(context.Background())
	require.NoError(t, err)
	return s, api, events
}

func rootIDs(v View) []int64 {
	var ids []int64
	for _, n := range v.Forest.Roots() {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestSection_LoadRoots(t *testing.T) {
	t.Run("Roots stay unloaded until expanded", func(t *testing.T) {
		s, api, events := loadedSection(t)

		v := s.Snapshot()
		assert.True(t, v.Loaded)
		assert.True(t, v.HasMore)
		assert.Equal(t, []int64{1, 2, 3, 4}, rootIDs(v))
		for _, n := range v.Forest.Roots() {
			assert.False(t, n.Children.IsLoaded(), "root %d", n.ID)
		}
		assert.Equal(t, 1, api.Calls(mocks.MethodFetchRootComments))
		assert.Equal(t, []subscription.EventKind{subscription.RootsLoaded}, events.Kinds(postID))
	})

	t.Run("First load failure leaves the forest empty", func(t *testing.T) {
		s, api, events := newSection(t)
		boom := errors.New("connection refused")
		api.SetError(mocks.MethodFetchRootComments, boom)

		nodes, hasMore, err := s.LoadRoots(context.Background())
		require.Error(t, err)
		assert.Nil(t, nodes)
		assert.False(t, hasMore)
		assert.ErrorIs(t, err, boom)

		var opErr *OperationError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, OpLoadRoots, opErr.Op)
		assert.Equal(t, postID, opErr.PostID)

		v := s.Snapshot()
		assert.False(t, v.Loaded)
		assert.Zero(t, v.Forest.Len())
		assert.Empty(t, events.GetNotificationsForPost(postID))
	})

	t.Run("Reload replaces the roots", func(t *testing.T) {
		s, api, _ := loadedSection(t)
		api.SetRootPage(1, false, item(7, "G", 0))

		nodes, hasMore, err := s.LoadRoots(context.Background())
		require.NoError(t, err)
		assert.Len(t, nodes, 1)
		assert.False(t, hasMore)
		assert.Equal(t, []int64{7}, rootIDs(s.Snapshot()))
	})
}

func TestSection_LoadMoreRoots(t *testing.T) {
	t.Run("Second page is appended after the first", func(t *testing.T) {
		s, api, events := loadedSection(t)

		nodes, hasMore, err := s.LoadMoreRoots(context.Background())
		require.NoError(t, err)
		assert.Len(t, nodes, 2)
		assert.False(t, hasMore)

		v := s.Snapshot()
		assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, rootIDs(v))
		assert.False(t, v.HasMore)
		assert.Equal(t, 2, api.Calls(mocks.MethodFetchRootComments))
		assert.Equal(t, []subscription.EventKind{subscription.RootsLoaded, subscription.RootsAppended}, events.Kinds(postID))
	})

	t.Run("Nothing is fetched past the last page", func(t *testing.T) {
		s, api, _ := loadedSection(t)
		_, _, err := s.LoadMoreRoots(context.Background())
		require.NoError(t, err)

		nodes, hasMore, err := s.LoadMoreRoots(context.Background())
		require.NoError(t, err)
		assert.Empty(t, nodes)
		assert.False(t, hasMore)
		assert.Equal(t, 2, api.Calls(mocks.MethodFetchRootComments))
	})

	t.Run("Before the first page it loads page one", func(t *testing.T) {
		s, api, _ := newSection(t)
		api.SetRootPage(1, true, item(1, "A", 0))

		nodes, hasMore, err := s.LoadMoreRoots(context.Background())
		require.NoError(t, err)
		assert.Len(t, nodes, 1)
		assert.True(t, hasMore)
	})

	t.Run("Shifted page does not duplicate roots", func(t *testing.T) {
		s, api, _ := loadedSection(t)
		api.SetRootPage(2, false, item(4, "D", 0), item(5, "E", 0))

		_, _, err := s.LoadMoreRoots(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3, 4, 5}, rootIDs(s.Snapshot()))
	})

	t.Run("Failure keeps the page to retry", func(t *testing.T) {
		s, api, _ := loadedSection(t)
		before := s.Snapshot().Forest
		api.SetError(mocks.MethodFetchRootComments, errors.New("timeout"))

		_, _, err := s.LoadMoreRoots(context.Background())
		require.Error(t, err)
		assert.Same(t, before, s.Snapshot().Forest)
		assert.True(t, s.Snapshot().HasMore)

		api.SetError(mocks.MethodFetchRootComments, nil)
		nodes, _, err := s.LoadMoreRoots(context.Background())
		require.NoError(t, err)
		assert.Len(t, nodes, 2)
	})

	t.Run("Page fetched across a reload is dropped", func(t *testing.T) {
		api := mocks.NewMockCommentStorage()
		s := New(postID, api, Config{PageSize: 1}, zaptest.NewLogger(t))
		api.SetRootPage(1, true, item(1, "A", 0))
		api.SetRootPage(2, true, item(2, "B", 0))
		api.SetRootPage(3, false, item(3, "C", 0))

		_, _, err := s.LoadRoots(context.Background())
		require.NoError(t, err)
		_, _, err = s.LoadMoreRoots(context.Background())
		require.NoError(t, err)

		started := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		var hold sync.Mutex
		holding := true
		api.OnCall = func(method string) {
			hold.Lock()
			h := holding
			hold.Unlock()
			if !h {
				return
			}
			once.Do(func() {
				close(started)
				<-release
			})
		}

		done := make(chan error, 1)
		go func() {
			_, _, err := s.LoadMoreRoots(context.Background())
			done <- err
		}()

		<-started
		hold.Lock()
		holding = false
		hold.Unlock()
		_, _, err = s.LoadRoots(context.Background())
		require.NoError(t, err)
		close(release)

		select {
		case err = <-done:
		case <-time.After(time.Second):
			t.Fatal("load more did not finish")
		}
		assert.ErrorIs(t, err, ErrReloaded)
		var opErr *OperationError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, OpLoadMoreRoots, opErr.Op)
		assert.Equal(t, []int64{1}, rootIDs(s.Snapshot()))

		for s.Snapshot().HasMore {
			_, _, err := s.LoadMoreRoots(context.Background())
			require.NoError(t, err)
		}
		assert.Equal(t, []int64{1, 2, 3}, rootIDs(s.Snapshot()))
	})
}

func TestSection_Expand(t *testing.T) {
	t.Run("Expanding twice fetches once", func(t *testing.T) {
		s, api, events := loadedSection(t)

		first, err := s.Expand(context.Background(), 1)
		require.NoError(t, err)
		second, err := s.Expand(context.Background(), 1)
		require.NoError(t, err)

		assert.Equal(t, 1, api.Calls(mocks.MethodFetchReplies))
		require.Len(t, first, 2)
		require.Len(t, second, 2)
		assert.Same(t, first[0], second[0])
		assert.Same(t, first[1], second[1])
		assert.Equal(t, []subscription.EventKind{subscription.RootsLoaded, subscription.ChildrenLoaded}, events.Kinds(postID))
	})

	t.Run("Nested expand", func(t *testing.T) {
		s, _, _ := loadedSection(t)
		_, err := s.Expand(context.Background(), 1)
		require.NoError(t, err)

		children, err := s.Expand(context.Background(), 11)
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, "A1a", children[0].Content)
		assert.False(t, children[0].Children.IsLoaded())
	})

	t.Run("Comment without replies is not expandable", func(t *testing.T) {
		s, api, _ := loadedSection(t)

		_, err := s.Expand(context.Background(), 2)
		assert.ErrorIs(t, err, ErrNotExpandable)
		assert.Zero(t, api.Calls(mocks.MethodFetchReplies))
	})

	t.Run("Unknown comment", func(t *testing.T) {
		s, api, _ := loadedSection(t)

		_, err := s.Expand(context.Background(), 999)
		assert.ErrorIs(t, err, ErrNotLoaded)
		assert.Zero(t, api.Calls(mocks.MethodFetchReplies))
	})

	t.Run("Failure leaves the tree unchanged", func(t *testing.T) {
		s, api, _ := loadedSection(t)
		before := s.Snapshot().Forest
		api.SetError(mocks.MethodFetchReplies, errors.New("HTTP 500"))

		_, err := s.Expand(context.Background(), 1)
		require.Error(t, err)

		var opErr *OperationError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, OpExpand, opErr.Op)
		assert.Equal(t, int64(1), opErr.CommentID)

		assert.Same(t, before, s.Snapshot().Forest)
		n, _ := s.Snapshot().Forest.Find(1)
		assert.False(t, n.Children.IsLoaded())
	})

	t.Run("Reply during fetch stays first", func(t *testing.T) {
		s, api, _ := loadedSection(t)

		started := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		api.OnCall = func(method string) {
			if method != mocks.MethodFetchReplies {
				return
			}
			once.Do(func() {
				close(started)
				<-release
			})
		}

		done := make(chan []*tree.Node)
		go func() {
			children, err := s.Expand(context.Background(), 1)
			assert.NoError(t, err)
			done <- children
		}()

		<-started
		reply, err := s.Reply(context.Background(), tree.Under(1), "quick reply")
		require.NoError(t, err)
		close(release)

		var children []*tree.Node
		select {
		case children = <-done:
		case <-time.After(time.Second):
			t.Fatal("expand did not finish")
		}

		require.Len(t, children, 3)
		assert.Equal(t, reply.ID, children[0].ID)
		assert.Equal(t, int64(11), children[1].ID)
		assert.Equal(t, int64(12), children[2].ID)
	})
}

func TestSection_Reply(t *testing.T) {
	t.Run("Root reply is prepended and keeps other roots", func(t *testing.T) {
		s, api, events := loadedSection(t)
		before := s.Snapshot().Forest.Roots()

		node, err := s.Reply(context.Background(), tree.Root, "  hello  ")
		require.NoError(t, err)
		assert.Equal(t, "hello", node.Content)
		assert.True(t, node.Children.IsLoaded())
		assert.Zero(t, node.Children.Len())
		assert.Nil(t, api.LastCreated().ParentID)

		roots := s.Snapshot().Forest.Roots()
		require.Len(t, roots, 5)
		assert.Equal(t, node.ID, roots[0].ID)
		for i, n := range before {
			assert.Same(t, n, roots[i+1])
		}

		evs := events.GetNotificationsForPost(postID)
		last := evs[len(evs)-1]
		assert.Equal(t, subscription.ReplyInserted, last.Kind)
		assert.Equal(t, node.ID, last.CommentID)
		assert.Zero(t, last.ParentID)
	})

	t.Run("Nested reply at depth two shares untouched subtrees", func(t *testing.T) {
		s, api, _ := loadedSection(t)
		ctx := context.Background()
		_, err := s.Expand(ctx, 1)
		require.NoError(t, err)
		_, err = s.Expand(ctx, 11)
		require.NoError(t, err)
		_, err = s.Expand(ctx, 3)
		require.NoError(t, err)

		before := s.Snapshot().Forest
		a2Before, _ := before.Find(12)
		cBefore, _ := before.Find(3)

		node, err := s.Reply(ctx, tree.Under(11), "deep")
		require.NoError(t, err)
		require.NotNil(t, api.LastCreated().ParentID)
		assert.Equal(t, int64(11), *api.LastCreated().ParentID)

		after := s.Snapshot().Forest
		a1, _ := after.Find(11)
		require.Equal(t, 2, a1.Children.Len())
		assert.Equal(t, node.ID, a1.Children.Nodes()[0].ID)
		assert.Equal(t, 1, a1.RepliesCount, "replies count is not recomputed locally")

		a2After, _ := after.Find(12)
		cAfter, _ := after.Find(3)
		assert.Same(t, a2Before, a2After)
		assert.Same(t, cBefore, cAfter)

		a1aBefore, _ := before.Find(111)
		assert.Same(t, a1aBefore, a1.Children.Nodes()[1])

		// the old forest still sees the old children
		a1Old, _ := before.Find(11)
		assert.Equal(t, 1, a1Old.Children.Len())
	})

	t.Run("Reply to unexpanded comment loads its list", func(t *testing.T) {
		s, api, _ := loadedSection(t)

		node, err := s.Reply(context.Background(), tree.Under(3), "first")
		require.NoError(t, err)

		c, _ := s.Snapshot().Forest.Find(3)
		assert.True(t, c.Children.IsLoaded())
		assert.Equal(t, []*tree.Node{node}, c.Children.Nodes())
		assert.Equal(t, 1, c.RepliesCount)

		children, err := s.Expand(context.Background(), 3)
		require.NoError(t, err)
		assert.Len(t, children, 1)
		assert.Zero(t, api.Calls(mocks.MethodFetchReplies))
	})

	t.Run("Blank text is rejected before any call", func(t *testing.T) {
		s, api, _ := loadedSection(t)

		_, err := s.Reply(context.Background(), tree.Root, " \n\t ")
		assert.ErrorIs(t, err, ErrEmptyContent)
		assert.Zero(t, api.Calls(mocks.MethodCreateComment))
	})

	t.Run("Parent must be loaded", func(t *testing.T) {
		s, api, _ := loadedSection(t)

		_, err := s.Reply(context.Background(), tree.Under(111), "hi")
		assert.ErrorIs(t, err, ErrNotLoaded)
		assert.Zero(t, api.Calls(mocks.MethodCreateComment))
	})

	t.Run("Failure leaves the tree unchanged", func(t *testing.T) {
		s, api, _ := loadedSection(t)
		before := s.Snapshot().Forest
		api.SetError(mocks.MethodCreateComment, comment.ErrCommentsDisabled)

		_, err := s.Reply(context.Background(), tree.Root, "hi")
		assert.ErrorIs(t, err, comment.ErrCommentsDisabled)
		assert.Same(t, before, s.Snapshot().Forest)
	})
}

func TestSection_Vote(t *testing.T) {
	t.Run("Deep vote touches exactly one node", func(t *testing.T) {
		s, api, _ := newSection(t)
		ctx := context.Background()
		api.SetRootPage(1, false, item(1, "same", 1), item(2, "same", 0))
		api.SetReplies(1, item(11, "same", 1))
		api.SetReplies(11, item(111, "same", 0))
		_, _, err := s.LoadRoots(ctx)
		require.NoError(t, err)
		_, err = s.Expand(ctx, 1)
		require.NoError(t, err)
		_, err = s.Expand(ctx, 11)
		require.NoError(t, err)

		before := s.Snapshot().Forest
		updated, err := s.Vote(ctx, 111, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, updated.SumRating)
		assert.Equal(t, tree.VoteUp, updated.UserVote)

		after := s.Snapshot().Forest
		after.Walk(func(n *tree.Node, _ int) bool {
			if n.ID == 111 {
				return true
			}
			old, _ := before.Find(n.ID)
			assert.Equal(t, old.SumRating, n.SumRating, "node %d", n.ID)
			assert.Equal(t, old.UserVote, n.UserVote, "node %d", n.ID)
			return true
		})
		r2Before, _ := before.Find(2)
		r2After, _ := after.Find(2)
		assert.Same(t, r2Before, r2After)
	})

	t.Run("Change and retract", func(t *testing.T) {
		s, _, events := loadedSection(t)
		ctx := context.Background()

		_, err := s.Vote(ctx, 2, 1)
		require.NoError(t, err)
		n, err := s.Vote(ctx, 2, -1)
		require.NoError(t, err)
		assert.Equal(t, -1, n.SumRating)
		assert.Equal(t, tree.VoteDown, n.UserVote)

		n, err = s.RetractVote(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, 0, n.SumRating)
		assert.Equal(t, tree.VoteNone, n.UserVote)

		kinds := events.Kinds(postID)
		assert.Equal(t, subscription.VoteUpdated, kinds[len(kinds)-1])
	})

	t.Run("Invalid value never reaches the API", func(t *testing.T) {
		s, api, _ := loadedSection(t)

		for _, v := range []int{0, 2, -5} {
			_, err := s.Vote(context.Background(), 1, v)
			assert.ErrorIs(t, err, ErrInvalidVote)
		}
		assert.Zero(t, api.Calls(mocks.MethodCastVote))
	})

	t.Run("Target must be loaded", func(t *testing.T) {
		s, api, _ := loadedSection(t)

		_, err := s.Vote(context.Background(), 111, 1)
		assert.ErrorIs(t, err, ErrNotLoaded)
		_, err = s.RetractVote(context.Background(), 111)
		assert.ErrorIs(t, err, ErrNotLoaded)
		assert.Zero(t, api.Calls(mocks.MethodCastVote))
		assert.Zero(t, api.Calls(mocks.MethodRetractVote))
	})

	t.Run("Failure leaves the tree unchanged", func(t *testing.T) {
		s, api, _ := loadedSection(t)
		before := s.Snapshot().Forest
		api.SetError(mocks.MethodCastVote, comment.ErrUnauthorized)

		_, err := s.Vote(context.Background(), 1, 1)
		assert.ErrorIs(t, err, comment.ErrUnauthorized)
		assert.Same(t, before, s.Snapshot().Forest)
	})
}

func TestSection_Cancelled(t *testing.T) {
	s, _, _ := newSection(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.LoadRoots(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.Snapshot().Loaded)
}

func TestRegistry(t *testing.T) {
	t.Run("One section per viewer and post", func(t *testing.T) {
		api := mocks.NewMockCommentStorage()
		r := NewRegistry(api, Config{}, zaptest.NewLogger(t))

		a := r.Get(1, "p1")
		assert.Same(t, a, r.Get(1, "p1"))
		assert.NotSame(t, a, r.Get(2, "p1"))
		assert.NotSame(t, a, r.Get(1, "p2"))
		assert.Equal(t, 3, r.Len())

		r.Forget(1, "p1")
		assert.NotSame(t, a, r.Get(1, "p1"))
		assert.Equal(t, "p1", a.PostID())
	})

	t.Run("Least recently used section is evicted", func(t *testing.T) {
		r := NewRegistry(mocks.NewMockCommentStorage(), Config{MaxSections: 2}, zaptest.NewLogger(t))

		a := r.Get(1, "p1")
		b := r.Get(1, "p2")
		assert.Same(t, a, r.Get(1, "p1"))
		r.Get(1, "p3")

		assert.Equal(t, 2, r.Len())
		assert.Same(t, a, r.Get(1, "p1"))
		assert.NotSame(t, b, r.Get(1, "p2"))
	})

	t.Run("Release drops only sections that never loaded", func(t *testing.T) {
		api := mocks.NewMockCommentStorage()
		api.SetRootPage(1, false, item(1, "A", 0))
		r := NewRegistry(api, Config{}, zaptest.NewLogger(t))

		empty := r.Get(1, "missing")
		r.Release(1, empty)
		assert.Equal(t, 0, r.Len())

		loaded := r.Get(1, "p1")
		_, _, err := loaded.LoadRoots(context.Background())
		require.NoError(t, err)
		r.Release(1, loaded)
		assert.Same(t, loaded, r.Get(1, "p1"))

		stale := r.Get(2, "p1")
		r.Forget(2, "p1")
		fresh := r.Get(2, "p1")
		r.Release(2, stale)
		assert.Same(t, fresh, r.Get(2, "p1"))
	})

	t.Run("Events carry the section's viewer", func(t *testing.T) {
		api := mocks.NewMockCommentStorage()
		api.SetRootPage(1, false, item(1, "A", 0))
		events := mocks.NewMockSubscriptionManager()
		r := NewRegistry(api, Config{Events: events}, zaptest.NewLogger(t))

		_, _, err := r.Get(5, postID).LoadRoots(context.Background())
		require.NoError(t, err)

		published := events.GetNotificationsForPost(postID)
		require.Len(t, published, 1)
		assert.Equal(t, uint(5), published[0].Viewer)
		assert.Equal(t, postID, published[0].PostID)
	})
}
