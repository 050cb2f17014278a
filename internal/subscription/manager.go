package subscription

import (
	"sync"
)

// eventBuffer is how many events a listener may fall behind before it
// starts missing them.
const eventBuffer = 32

type subscriber struct {
	ch     chan *Event
	viewer uint
}

type SubscriptionManager struct {
	mu   sync.RWMutex
	subs map[string][]*subscriber // postID -> listeners
}

func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{
		subs: make(map[string][]*subscriber),
	}
}

func (m *SubscriptionManager) Subscribe(postID string, viewer uint) (<-chan *Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := &subscriber{ch: make(chan *Event, eventBuffer), viewer: viewer}
	m.subs[postID] = append(m.subs[postID], sub)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			subscribers := m.subs[postID]
			for i, s := range subscribers {
				if s == sub {
					m.subs[postID] = append(subscribers[:i], subscribers[i+1:]...)
					close(sub.ch)
					break
				}
			}
		})
	}

	return sub.ch, cancel
}

// Publish hands the event to every listener of the post without waiting. The
// viewer who caused the event gets it as is; everyone else gets it without
// user votes. A listener whose buffer is full misses the event.
func (m *SubscriptionManager) Publish(postID string, event *Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var shared *Event
	for _, sub := range m.subs[postID] {
		e := event
		if sub.viewer == 0 || sub.viewer != event.Viewer {
			if shared == nil {
				shared = event.WithoutVotes()
			}
			e = shared
		}
		select {
		case sub.ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of listeners of a post.
func (m *SubscriptionManager) Subscribers(postID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[postID])
}
