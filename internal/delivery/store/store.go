// Package store persists delivery aggregates. Two implementations exist: an
// in-memory map for tests and mock deployments, and PostgreSQL for production.
package store

import (
	"context"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/models"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
)

// Store is the persistence contract the delivery service and the escrow
// coordinator depend on. Reads return deep copies; callers mutate the copy
// and persist it with Update. Writers serialize per delivery key above this
// layer, so Update replaces the whole record.
type Store interface {
	Create(ctx context.Context, delivery *models.Delivery) error
	FindByID(ctx context.Context, id domain.DeliveryID) (*models.Delivery, error)
	ListByDriver(ctx context.Context, driverID domain.DriverID) ([]*models.Delivery, error)
	ListByPaymentStatus(ctx context.Context, status models.PaymentStatus) ([]*models.Delivery, error)
	Update(ctx context.Context, delivery *models.Delivery) error
}
