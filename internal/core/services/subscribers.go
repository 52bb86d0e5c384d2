package services

import (
	"sync"

	"sendctl/internal/core/domain"

	"github.com/google/uuid"
)

// SubscriptionID identifies a registered AdaptationHandler.
type SubscriptionID = uuid.UUID

// AdaptationHandler is called synchronously for every change.
type AdaptationHandler func(change domain.AdaptationChange)

type subscription struct {
	id SubscriptionID
	fn AdaptationHandler
}

// subscribers is an ordered observer list. Handlers run outside the lock so
// they may unsubscribe themselves.
type subscribers struct {
	mu   sync.Mutex
	list []subscription
}

func (s *subscribers) add(fn AdaptationHandler) SubscriptionID {
	id := uuid.New()
	s.mu.Lock()
	s.list = append(s.list, subscription{id: id, fn: fn})
	s.mu.Unlock()
	return id
}

func (s *subscribers) remove(id SubscriptionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.list {
		if sub.id == id {
			s.list = append(s.list[:i:i], s.list[i+1:]...)
			return true
		}
	}
	return false
}

func (s *subscribers) notify(change domain.AdaptationChange) {
	s.mu.Lock()
	list := s.list
	s.mu.Unlock()

	for _, sub := range list {
		sub.fn(change)
	}
}

func (s *subscribers) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}
