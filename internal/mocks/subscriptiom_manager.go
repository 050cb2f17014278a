package mocks

import (
	"sync"

	"github.com/VitaminP8/commentree/internal/subscription"
)

type MockSubscriptionManager struct {
	mu            sync.Mutex
	subs          map[string][]mockSubscriber
	notifications map[string][]*subscription.Event
}

type mockSubscriber struct {
	ch     chan *subscription.Event
	viewer uint
}

func NewMockSubscriptionManager() *MockSubscriptionManager {
	return &MockSubscriptionManager{
		subs:          make(map[string][]mockSubscriber),
		notifications: make(map[string][]*subscription.Event),
	}
}

func (m *MockSubscriptionManager) Subscribe(postID string, viewer uint) (<-chan *subscription.Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan *subscription.Event, 16)

	m.subs[postID] = append(m.subs[postID], mockSubscriber{ch: ch, viewer: viewer})

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subscribers := m.subs[postID]
		for i, sub := range subscribers {
			if sub.ch == ch {
				m.subs[postID] = append(subscribers[:i], subscribers[i+1:]...)
				close(ch)
				break
			}
		}
	}

	return ch, cancel
}

func (m *MockSubscriptionManager) Publish(postID string, event *subscription.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs[postID] {
		e := event
		if sub.viewer == 0 || sub.viewer != event.Viewer {
			e = event.WithoutVotes()
		}
		select {
		case sub.ch <- e:
		default:
		}
	}

	m.notifications[postID] = append(m.notifications[postID], event)
}

// GetNotificationsForPost returns every event published for the post so far.
func (m *MockSubscriptionManager) GetNotificationsForPost(postID string) []*subscription.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*subscription.Event(nil), m.notifications[postID]...)
}

// Kinds lists the kinds of the published events in order.
func (m *MockSubscriptionManager) Kinds(postID string) []subscription.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()

	kinds := make([]subscription.EventKind, 0, len(m.notifications[postID]))
	for _, e := range m.notifications[postID] {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}
