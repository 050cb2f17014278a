package subscription

import (
	"sync"
	"testing"
	"time"

	"github.com/VitaminP8/commentree/internal/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func replyEvent(postID string, id int64) *Event {
	return &Event{
		Kind:      ReplyInserted,
		PostID:    postID,
		CommentID: id,
		Nodes:     []*tree.Node{{ID: id, Content: "Test comment", Children: tree.Loaded()}},
	}
}

func TestSubscriptionManager_Subscribe(t *testing.T) {
	t.Run("Should create a subscription channel", func(t *testing.T) {
		manager := NewSubscriptionManager()
		postID := "123"

		ch, cancel := manager.Subscribe(postID, 0)
		assert.NotNil(t, ch)
		assert.NotNil(t, cancel)
		assert.Equal(t, 1, manager.Subscribers(postID))

		cancel()

		manager.mu.Lock()
		subscribers, exists := manager.subs[postID]
		manager.mu.Unlock()
		assert.True(t, exists)
		assert.Len(t, subscribers, 0)
	})

	t.Run("Multiple subscriptions to the same post", func(t *testing.T) {
		manager := NewSubscriptionManager()
		postID := "123"

		_, cancel1 := manager.Subscribe(postID, 0)
		_, cancel2 := manager.Subscribe(postID, 0)
		_, cancel3 := manager.Subscribe(postID, 0)
		assert.Equal(t, 3, manager.Subscribers(postID))

		cancel2()
		assert.Equal(t, 2, manager.Subscribers(postID))

		cancel1()
		cancel3()
		assert.Equal(t, 0, manager.Subscribers(postID))
	})

	t.Run("Cancel twice is harmless", func(t *testing.T) {
		manager := NewSubscriptionManager()

		ch, cancel := manager.Subscribe("post", 0)
		cancel()
		assert.NotPanics(t, cancel)

		_, ok := <-ch
		assert.False(t, ok)
	})

	t.Run("Subscriptions to different posts", func(t *testing.T) {
		manager := NewSubscriptionManager()

		_, cancel1 := manager.Subscribe("post1", 0)
		_, cancel2 := manager.Subscribe("post2", 0)
		_, cancel3 := manager.Subscribe("post3", 0)

		manager.mu.Lock()
		assert.Len(t, manager.subs, 3)
		manager.mu.Unlock()

		cancel1()
		cancel2()
		cancel3()

		assert.Equal(t, 0, manager.Subscribers("post1"))
		assert.Equal(t, 0, manager.Subscribers("post2"))
		assert.Equal(t, 0, manager.Subscribers("post3"))
	})
}

func TestSubscriptionManager_Publish(t *testing.T) {
	t.Run("Should send event to subscribers", func(t *testing.T) {
		manager := NewSubscriptionManager()
		postID := "123"

		ch, cancel := manager.Subscribe(postID, 0)
		defer cancel()

		event := replyEvent(postID, 456)
		manager.Publish(postID, event)

		select {
		case received := <-ch:
			assert.Equal(t, event, received)
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for event")
		}
	})

	t.Run("Multiple subscribers should all receive the event", func(t *testing.T) {
		manager := NewSubscriptionManager()
		postID := "123"

		ch1, cancel1 := manager.Subscribe(postID, 0)
		ch2, cancel2 := manager.Subscribe(postID, 0)
		ch3, cancel3 := manager.Subscribe(postID, 0)
		defer cancel1()
		defer cancel2()
		defer cancel3()

		event := replyEvent(postID, 456)
		manager.Publish(postID, event)

		for i, ch := range []<-chan *Event{ch1, ch2, ch3} {
			select {
			case received := <-ch:
				assert.Equal(t, event, received, "Subscriber %d did not receive correct event", i+1)
			case <-time.After(time.Second):
				t.Fatalf("Subscriber %d timed out waiting for event", i+1)
			}
		}
	})

	t.Run("Should only send to subscribers of the specific post", func(t *testing.T) {
		manager := NewSubscriptionManager()

		ch1, cancel1 := manager.Subscribe("post1", 0)
		ch2, cancel2 := manager.Subscribe("post2", 0)
		defer cancel1()
		defer cancel2()

		event := replyEvent("post1", 456)
		manager.Publish("post1", event)

		select {
		case received := <-ch1:
			assert.Equal(t, event, received)
		case <-time.After(time.Second):
			t.Fatal("Subscriber of post1 timed out waiting for event")
		}

		select {
		case <-ch2:
			t.Fatal("Subscriber of post2 should not receive the event")
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("Publishing to a post with no subscribers should not panic", func(t *testing.T) {
		manager := NewSubscriptionManager()

		assert.NotPanics(t, func() {
			manager.Publish("post1", replyEvent("post1", 456))
		})
	})

	t.Run("Full subscriber does not block publishing", func(t *testing.T) {
		manager := NewSubscriptionManager()
		ch, cancel := manager.Subscribe("post1", 0)
		defer cancel()

		start := time.Now()
		for i := 0; i < eventBuffer+10; i++ {
			manager.Publish("post1", replyEvent("post1", int64(i)))
		}
		assert.Less(t, time.Since(start), 100*time.Millisecond)
		assert.Len(t, ch, eventBuffer)
	})

	t.Run("Full subscriber does not hold up subscribe", func(t *testing.T) {
		manager := NewSubscriptionManager()
		_, cancel := manager.Subscribe("post1", 0)
		defer cancel()
		for i := 0; i < eventBuffer; i++ {
			manager.Publish("post1", replyEvent("post1", int64(i)))
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			manager.Publish("post1", replyEvent("post1", 99))
			_, cancel2 := manager.Subscribe("post1", 0)
			cancel2()
		}()

		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
			t.Fatal("subscribe waited on a full subscriber")
		}
	})
}

func voteEvent(viewer uint) *Event {
	child := &tree.Node{ID: 2, Content: "child", UserVote: tree.VoteDown, Children: tree.Unloaded()}
	return &Event{
		Kind:      VoteUpdated,
		PostID:    "post1",
		Viewer:    viewer,
		CommentID: 1,
		Nodes: []*tree.Node{
			{ID: 1, Content: "root", SumRating: 3, UserVote: tree.VoteUp, Children: tree.Loaded(child)},
		},
	}
}

func receive(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
		return nil
	}
}

func TestSubscriptionManager_Viewers(t *testing.T) {
	manager := NewSubscriptionManager()
	own, cancelOwn := manager.Subscribe("post1", 7)
	other, cancelOther := manager.Subscribe("post1", 8)
	anon, cancelAnon := manager.Subscribe("post1", 0)
	defer cancelOwn()
	defer cancelOther()
	defer cancelAnon()

	event := voteEvent(7)
	manager.Publish("post1", event)

	assert.Same(t, event, receive(t, own))

	for name, ch := range map[string]<-chan *Event{"other": other, "anonymous": anon} {
		got := receive(t, ch)
		require.Len(t, got.Nodes, 1, name)
		root := got.Nodes[0]
		assert.Equal(t, tree.VoteNone, root.UserVote, name)
		assert.Equal(t, 3, root.SumRating, name)
		require.Equal(t, 1, root.Children.Len(), name)
		assert.Equal(t, tree.VoteNone, root.Children.Nodes()[0].UserVote, name)
	}

	assert.Equal(t, tree.VoteUp, event.Nodes[0].UserVote, "published event is not modified")
	assert.Equal(t, tree.VoteDown, event.Nodes[0].Children.Nodes()[0].UserVote)
}

func TestEvent_WithoutVotes(t *testing.T) {
	t.Run("Event without votes is returned as is", func(t *testing.T) {
		e := replyEvent("post1", 1)
		assert.Same(t, e, e.WithoutVotes())
	})

	t.Run("Anonymous events are stripped too", func(t *testing.T) {
		e := voteEvent(0)
		stripped := e.WithoutVotes()
		assert.NotSame(t, e, stripped)
		assert.Equal(t, tree.VoteNone, stripped.Nodes[0].UserVote)
		assert.Equal(t, e.CommentID, stripped.CommentID)
	})

	t.Run("Unloaded children stay unloaded", func(t *testing.T) {
		e := voteEvent(1)
		stripped := e.WithoutVotes()
		child := stripped.Nodes[0].Children.Nodes()[0]
		assert.False(t, child.Children.IsLoaded())
	})
}

func TestSubscriptionManager_Concurrent(t *testing.T) {
	t.Run("Concurrent subscriptions and publications", func(t *testing.T) {
		manager := NewSubscriptionManager()
		postID := "123"

		numSubscribers := 10
		numPublications := 5

		var wg sync.WaitGroup
		var readers sync.WaitGroup

		cancels := make([]func(), numSubscribers)
		received := make([]int, numSubscribers)
		var mu sync.Mutex

		for i := 0; i < numSubscribers; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				ch, cancel := manager.Subscribe(postID, 0)
				cancels[idx] = cancel

				readers.Add(1)
				go func(idx int, ch <-chan *Event) {
					defer readers.Done()
					for event := range ch {
						require.Equal(t, postID, event.PostID)
						mu.Lock()
						received[idx]++
						mu.Unlock()
					}
				}(idx, ch)
			}(i)
		}

		wg.Wait()

		for i := 0; i < numPublications; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				manager.Publish(postID, replyEvent(postID, int64(1000+idx)))
			}(i)
		}

		wg.Wait()

		time.Sleep(1000 * time.Millisecond)

		for _, cancel := range cancels {
			cancel()
		}
		readers.Wait()

		mu.Lock()
		for i := 0; i < numSubscribers; i++ {
			assert.Equal(t, numPublications, received[i], "Subscriber %d did not receive all publications", i)
		}
		mu.Unlock()
	})

	t.Run("Concurrent subscribes and unsubscribes", func(t *testing.T) {
		manager := NewSubscriptionManager()
		postID := "123"

		var wg sync.WaitGroup
		numOperations := 100

		for i := 0; i < numOperations; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				ch, cancel := manager.Subscribe(postID, 0)
				time.Sleep(5 * time.Millisecond)
				cancel()

				_, ok := <-ch
				assert.False(t, ok, "Channel should be closed after cancel")
			}()
		}

		wg.Wait()

		assert.Equal(t, 0, manager.Subscribers(postID))
	})
}
