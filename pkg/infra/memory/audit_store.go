package memory

import (
	"context"
	"sync"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

// AuditStore is an append-only in-process trade log.
type AuditStore struct {
	mu         sync.RWMutex
	events     []domain.TradeEvent
	maxEntries int
}

// NewAuditStore creates a store keeping at most maxEntries events (0 keeps everything).
func NewAuditStore(maxEntries int) *AuditStore {
	return &AuditStore{maxEntries: maxEntries}
}

func (s *AuditStore) Append(_ context.Context, event domain.TradeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if s.maxEntries > 0 && len(s.events) > s.maxEntries {
		s.events = append(s.events[:0:0], s.events[len(s.events)-s.maxEntries:]...)
	}
	return nil
}

// Recent returns up to n events in reverse arrival order.
func (s *AuditStore) Recent(_ context.Context, n int) ([]domain.TradeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.events) {
		n = len(s.events)
	}
	if n < 0 {
		n = 0
	}
	out := make([]domain.TradeEvent, 0, n)
	for i := len(s.events) - 1; i >= len(s.events)-n; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// Len returns the number of stored events.
func (s *AuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
