package feed

import (
	"slices"
	"sync"

	"github.com/iamvkosarev/wellness-bot/internal/model"
)

// Subscription holds at most one pending snapshot. A newer snapshot replaces
// a pending one that the reader has not taken yet.
type Subscription struct {
	updates chan []model.ChatMessage
	onClose func()

	mu     sync.Mutex
	closed bool
}

func NewSubscription(onClose func()) *Subscription {
	return &Subscription{
		updates: make(chan []model.ChatMessage, 1),
		onClose: onClose,
	}
}

func (s *Subscription) Updates() <-chan []model.ChatMessage {
	return s.updates
}

// Push offers a snapshot to the reader. It returns false once the
// subscription is closed.
func (s *Subscription) Push(snapshot []model.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- slices.Clone(snapshot)
	return true
}

func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.updates)
	s.mu.Unlock()

	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// Hub fans snapshots of a keyed log out to its subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

func (h *Hub) Subscribe(key string, initial []model.ChatMessage) *Subscription {
	var sub *Subscription
	sub = NewSubscription(
		func() {
			h.remove(key, sub)
		},
	)
	sub.Push(initial)

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[key]; !ok {
		h.subs[key] = make(map[*Subscription]struct{})
	}
	h.subs[key][sub] = struct{}{}
	return sub
}

func (h *Hub) Publish(key string, snapshot []model.ChatMessage) {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs[key]))
	for sub := range h.subs[key] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Push(snapshot)
	}
}

// Close closes every live subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*Subscription, 0)
	for _, keySubs := range h.subs {
		for sub := range keySubs {
			subs = append(subs, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
}

func (h *Hub) remove(key string, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[key], sub)
	if len(h.subs[key]) == 0 {
		delete(h.subs, key)
	}
}

// Key builds the hub key for a (user, day) chat log partition.
func Key(userID string, day model.DayKey) string {
	return userID + "|" + day.String()
}
