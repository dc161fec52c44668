// Package service manages the delivery lifecycle around the proof and
// settlement flows: registration, lookup and courier status updates.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/models"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/store"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/platform/sentinel"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/requestcontext"
)

// Service owns delivery lifecycle transitions that do not touch money.
// Payment transitions belong to the escrow coordinator.
type Service struct {
	deliveries store.Store
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(deliveries store.Store, opts ...Option) *Service {
	s := &Service{deliveries: deliveries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a new delivery in PENDING state.
func (s *Service) Register(ctx context.Context, driverID domain.DriverID, dest models.Destination, payment models.PaymentState) (*models.Delivery, error) {
	delivery, err := models.NewDelivery(domain.NewDeliveryID(), driverID, dest, payment, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.deliveries.Create(ctx, delivery); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "delivery already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create delivery")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "delivery registered",
			"delivery_id", delivery.ID.String(),
			"driver_id", driverID.String(),
			"requires_payment", payment.RequiresPaymentOnDelivery,
		)
	}
	return delivery, nil
}

// Get returns the delivery or a not-found domain error.
func (s *Service) Get(ctx context.Context, id domain.DeliveryID) (*models.Delivery, error) {
	delivery, err := s.deliveries.FindByID(ctx, id)
	if err != nil {
		return nil, wrapDeliveryErr(err)
	}
	return delivery, nil
}

// ListByDriver returns all deliveries assigned to the driver.
func (s *Service) ListByDriver(ctx context.Context, driverID domain.DriverID) ([]*models.Delivery, error) {
	if driverID.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "driver id is required")
	}
	deliveries, err := s.deliveries.ListByDriver(ctx, driverID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list deliveries")
	}
	return deliveries, nil
}

// MarkInTransit records courier pickup. Only pending deliveries can start
// transit.
func (s *Service) MarkInTransit(ctx context.Context, id domain.DeliveryID) (*models.Delivery, error) {
	delivery, err := s.deliveries.FindByID(ctx, id)
	if err != nil {
		return nil, wrapDeliveryErr(err)
	}
	if delivery.Status != models.StatusPending {
		return nil, dErrors.Newf(dErrors.CodeInvariant,
			"delivery %s cannot start transit from %s", id, delivery.Status)
	}
	delivery.Status = models.StatusInTransit
	delivery.UpdatedAt = requestcontext.Now(ctx)
	if err := s.deliveries.Update(ctx, delivery); err != nil {
		return nil, wrapDeliveryErr(err)
	}
	return delivery, nil
}

func wrapDeliveryErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "delivery not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "delivery store failure")
}
