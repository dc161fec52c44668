package store

import (
	"context"
	"sync"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/models"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/platform/sentinel"
)

// InMemory holds deliveries in a map. Used by tests and mock deployments.
type InMemory struct {
	mu         sync.RWMutex
	deliveries map[domain.DeliveryID]*models.Delivery
}

func NewInMemory() *InMemory {
	return &InMemory{deliveries: make(map[domain.DeliveryID]*models.Delivery)}
}

func (s *InMemory) Create(_ context.Context, delivery *models.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.deliveries[delivery.ID]; exists {
		return sentinel.ErrConflict
	}
	s.deliveries[delivery.ID] = delivery.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.DeliveryID) (*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	delivery, ok := s.deliveries[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return delivery.Clone(), nil
}

func (s *InMemory) ListByDriver(_ context.Context, driverID domain.DriverID) ([]*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Delivery
	for _, delivery := range s.deliveries {
		if delivery.DriverID == driverID {
			out = append(out, delivery.Clone())
		}
	}
	return out, nil
}

func (s *InMemory) ListByPaymentStatus(_ context.Context, status models.PaymentStatus) ([]*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Delivery
	for _, delivery := range s.deliveries {
		if delivery.Payment.Status == status {
			out = append(out, delivery.Clone())
		}
	}
	return out, nil
}

func (s *InMemory) Update(_ context.Context, delivery *models.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.deliveries[delivery.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.deliveries[delivery.ID] = delivery.Clone()
	return nil
}
