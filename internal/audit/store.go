// Package audit persists the settlement audit trail and streams it to the
// operations topic.
package audit

import (
	"context"
	"sync"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/audit/models"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
)

// Store is the audit trail persistence contract.
type Store interface {
	Append(ctx context.Context, event models.Event) error
	ListByDelivery(ctx context.Context, deliveryID domain.DeliveryID) ([]models.Event, error)
	ListRecent(ctx context.Context, limit int) ([]models.Event, error)
}

// InMemoryStore keeps the trail in memory. Used by tests and deployments
// without a durable audit requirement.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []models.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByDelivery(_ context.Context, deliveryID domain.DeliveryID) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Event
	for _, event := range s.events {
		if event.DeliveryID == deliveryID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]models.Event, limit)
	copy(out, s.events[len(s.events)-limit:])
	return out, nil
}
