// Package service implements the escrow coordinator: it drives the
// settlement backend and keeps the local payment state machine consistent
// with what actually happened on chain.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	auditmodels "github.com/xyo-geohacker/chaincheck-sub003/internal/audit/models"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/models"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/store"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/escrow/backend"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/escrow/metrics"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/platform/keyedmutex"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/platform/sentinel"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/requestcontext"
)

// AuditPublisher records settlement events. Publishing is best effort; a
// failed audit write never fails the settlement itself.
type AuditPublisher interface {
	Publish(ctx context.Context, event auditmodels.Event) error
}

// Coordinator serializes settlement operations per delivery key. Local state
// only reaches PAID or REFUNDED after the backend reports a confirmed
// receipt; no lock is ever held across a backend call, so a second caller
// resuming after a timeout observes and repairs the intermediate state
// instead of deadlocking behind it.
type Coordinator struct {
	deliveries store.Store
	backend    backend.Backend

	locks   *keyedmutex.KeyedMutex
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   AuditPublisher
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithAuditPublisher installs the settlement audit trail.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(c *Coordinator) { c.audit = p }
}

func NewCoordinator(deliveries store.Store, settlement backend.Backend, opts ...Option) *Coordinator {
	c := &Coordinator{
		deliveries: deliveries,
		backend:    settlement,
		locks:      keyedmutex.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deposit locks the buyer's funds for a payment-on-delivery order. Calling
// it again after a successful deposit is a no-op returning the recorded
// transaction.
func (c *Coordinator) Deposit(ctx context.Context, deliveryID domain.DeliveryID) (*backend.TxResult, error) {
	key := deliveryID.String()
	c.locks.Lock(key)
	delivery, done, err := c.prepareDeposit(ctx, deliveryID)
	c.locks.Unlock(key)
	if err != nil || done != nil {
		return done, err
	}

	result, err := c.backend.Deposit(ctx, domain.KeyFor(deliveryID),
		delivery.Payment.BuyerAddress, delivery.Payment.SellerAddress, delivery.Payment.Amount)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariant) {
			// A previous attempt deposited but the caller timed out before the
			// local update landed. Adopt the chain state.
			if adopted, adoptErr := c.adoptEscrow(ctx, deliveryID); adoptErr == nil {
				return adopted, nil
			}
		}
		return nil, c.recordFailure(ctx, deliveryID, "deposit", err)
	}

	if err := c.applyTransition(ctx, deliveryID, models.PaymentEscrowed, result); err != nil {
		return nil, err
	}
	c.metrics.RecordSettlement("deposit", "confirmed")
	c.publishAudit(ctx, delivery, auditmodels.EventEscrowDeposited, result)
	return result, nil
}

// prepareDeposit validates the deposit under the key lock. A non-nil
// TxResult means the deposit already happened and the caller gets the
// recorded transaction back.
func (c *Coordinator) prepareDeposit(ctx context.Context, deliveryID domain.DeliveryID) (*models.Delivery, *backend.TxResult, error) {
	delivery, err := c.load(ctx, deliveryID)
	if err != nil {
		return nil, nil, err
	}
	if !delivery.Payment.RequiresPaymentOnDelivery {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "delivery does not use payment on delivery")
	}
	switch delivery.Payment.Status {
	case models.PaymentEscrowed:
		return nil, recorded(delivery), nil
	case models.PaymentPaid, models.PaymentRefunded:
		return nil, nil, dErrors.Newf(dErrors.CodeInvariant,
			"cannot deposit for delivery %s in state %s", deliveryID, delivery.Payment.Status)
	}
	if err := delivery.Payment.ValidateTerms(); err != nil {
		return nil, nil, err
	}
	return delivery, nil, nil
}

// Release pays the seller after a verified delivery. Idempotent: an already
// paid delivery returns the recorded transaction hash unchanged.
func (c *Coordinator) Release(ctx context.Context, deliveryID domain.DeliveryID) (*backend.TxResult, error) {
	return c.settle(ctx, deliveryID, "release", models.PaymentPaid, auditmodels.EventEscrowReleased, c.backend.Release)
}

// Refund returns the funds to the buyer for a failed or disputed delivery.
func (c *Coordinator) Refund(ctx context.Context, deliveryID domain.DeliveryID) (*backend.TxResult, error) {
	return c.settle(ctx, deliveryID, "refund", models.PaymentRefunded, auditmodels.EventEscrowRefunded, c.backend.Refund)
}

// AutoRefund takes the permissionless deadline path. It refuses before the
// release deadline has passed.
func (c *Coordinator) AutoRefund(ctx context.Context, deliveryID domain.DeliveryID) (*backend.TxResult, error) {
	key := deliveryID.String()
	c.locks.Lock(key)
	_, done, err := c.prepareSettle(ctx, deliveryID, models.PaymentRefunded)
	c.locks.Unlock(key)
	if err != nil || done != nil {
		if done != nil {
			c.metrics.RecordSettlement("auto_refund", "noop")
		}
		return done, err
	}

	now := requestcontext.Now(ctx)
	eligible, err := c.backend.CanAutoRefund(ctx, domain.KeyFor(deliveryID), now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeInvariant, "no escrow exists for delivery %s", deliveryID)
		}
		return nil, err
	}
	if !eligible {
		return nil, dErrors.Newf(dErrors.CodeConflict,
			"auto-refund deadline not reached for delivery %s", deliveryID)
	}
	return c.settle(ctx, deliveryID, "auto_refund", models.PaymentRefunded, auditmodels.EventEscrowAutoRefund, c.backend.AutoRefund)
}

// settle is the shared release/refund flow: validate under the lock, call
// the backend without it, then apply the confirmed transition.
func (c *Coordinator) settle(ctx context.Context, deliveryID domain.DeliveryID, operation string,
	target models.PaymentStatus, eventType auditmodels.EventType,
	call func(context.Context, domain.DeliveryKey) (*backend.TxResult, error)) (*backend.TxResult, error) {

	key := deliveryID.String()
	c.locks.Lock(key)
	delivery, done, err := c.prepareSettle(ctx, deliveryID, target)
	c.locks.Unlock(key)
	if err != nil || done != nil {
		if done != nil {
			c.metrics.RecordSettlement(operation, "noop")
		}
		return done, err
	}

	result, err := call(ctx, domain.KeyFor(deliveryID))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariant) {
			// The escrow settled on chain but the local state missed it. Only
			// a repair that lands on the requested outcome rescues the call;
			// losing a release/refund race surfaces the invariant error.
			if repaired, repairErr := c.repairFromChain(ctx, deliveryID); repairErr == nil &&
				repaired != nil && repaired.Payment.Status == target {
				return recorded(repaired), nil
			}
		}
		return nil, c.recordFailure(ctx, deliveryID, operation, err)
	}

	if err := c.applyTransition(ctx, deliveryID, target, result); err != nil {
		return nil, err
	}
	c.metrics.RecordSettlement(operation, "confirmed")
	c.publishAudit(ctx, delivery, eventType, result)
	return result, nil
}

// prepareSettle validates a release or refund under the key lock. A non-nil
// delivery means proceed; a non-nil TxResult means the operation already
// completed.
func (c *Coordinator) prepareSettle(ctx context.Context, deliveryID domain.DeliveryID, target models.PaymentStatus) (*models.Delivery, *backend.TxResult, error) {
	delivery, err := c.load(ctx, deliveryID)
	if err != nil {
		return nil, nil, err
	}
	switch delivery.Payment.Status {
	case target:
		return nil, recorded(delivery), nil
	case models.PaymentEscrowed:
		return delivery, nil, nil
	case models.PaymentPending:
		return nil, nil, dErrors.Newf(dErrors.CodeInvariant,
			"no escrow exists for delivery %s", deliveryID)
	default:
		return nil, nil, dErrors.Newf(dErrors.CodeInvariant,
			"cannot settle delivery %s from state %s", deliveryID, delivery.Payment.Status)
	}
}

// Reconcile sweeps unsettled payment states and repairs any that diverged
// from the chain: escrows that settled while a caller was gone move to their
// terminal state, failed deposits that actually landed become ESCROWED.
// Returns the number of repaired deliveries.
func (c *Coordinator) Reconcile(ctx context.Context) (int, error) {
	c.metrics.RecordReconciliationRun()
	repaired := 0
	for _, status := range []models.PaymentStatus{models.PaymentPending, models.PaymentFailed, models.PaymentEscrowed} {
		deliveries, err := c.deliveries.ListByPaymentStatus(ctx, status)
		if err != nil {
			return repaired, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list deliveries for reconciliation")
		}
		for _, delivery := range deliveries {
			if !delivery.Payment.RequiresPaymentOnDelivery {
				continue
			}
			fixed, err := c.repairFromChain(ctx, delivery.ID)
			if err != nil {
				if c.logger != nil {
					c.logger.WarnContext(ctx, "reconciliation skipped delivery",
						"delivery_id", delivery.ID.String(), "error", err.Error())
				}
				continue
			}
			if fixed != nil && fixed.Payment.Status != status {
				repaired++
				c.metrics.RecordRepair(string(status) + "_to_" + string(fixed.Payment.Status))
			}
		}
	}
	return repaired, nil
}

// repairFromChain reads the authoritative escrow slot and applies whatever
// transition local state is missing. Returns the delivery after repair, or
// nil when there is nothing on chain to reconcile against.
func (c *Coordinator) repairFromChain(ctx context.Context, deliveryID domain.DeliveryID) (*models.Delivery, error) {
	escrow, err := c.backend.Escrow(ctx, domain.KeyFor(deliveryID))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	key := deliveryID.String()
	c.locks.Lock(key)
	defer c.locks.Unlock(key)

	delivery, err := c.load(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	target := delivery.Payment.Status
	switch {
	case escrow.Released:
		target = models.PaymentPaid
	case escrow.Refunded:
		target = models.PaymentRefunded
	case delivery.Payment.Status == models.PaymentPending || delivery.Payment.Status == models.PaymentFailed:
		target = models.PaymentEscrowed
	}
	if target == delivery.Payment.Status {
		return delivery, nil
	}

	// PENDING cannot reach a terminal state directly; pass through ESCROWED
	// first since the chain proves the deposit happened.
	if delivery.Payment.Status == models.PaymentPending && target.Terminal() {
		if err := delivery.AdvancePayment(models.PaymentEscrowed, requestcontext.Now(ctx)); err != nil {
			return nil, err
		}
	}
	if err := delivery.AdvancePayment(target, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	delivery.Payment.Error = ""
	if err := c.deliveries.Update(ctx, delivery); err != nil {
		return nil, wrapStoreErr(err)
	}
	if c.logger != nil {
		c.logger.InfoContext(ctx, "payment state repaired from chain",
			"delivery_id", deliveryID.String(), "status", string(target))
	}
	return delivery, nil
}

// adoptEscrow is repairFromChain for the deposit retry path, returning the
// recorded transaction for the caller.
func (c *Coordinator) adoptEscrow(ctx context.Context, deliveryID domain.DeliveryID) (*backend.TxResult, error) {
	delivery, err := c.repairFromChain(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if delivery == nil || delivery.Payment.Status != models.PaymentEscrowed {
		return nil, dErrors.Newf(dErrors.CodeInternal, "escrow for delivery %s could not be adopted", deliveryID)
	}
	return recorded(delivery), nil
}

// applyTransition re-reads the delivery under the lock and applies the
// confirmed outcome.
func (c *Coordinator) applyTransition(ctx context.Context, deliveryID domain.DeliveryID, target models.PaymentStatus, result *backend.TxResult) error {
	key := deliveryID.String()
	c.locks.Lock(key)
	defer c.locks.Unlock(key)

	delivery, err := c.load(ctx, deliveryID)
	if err != nil {
		return err
	}
	if delivery.Payment.Status == target {
		return nil
	}
	if err := delivery.AdvancePayment(target, requestcontext.Now(ctx)); err != nil {
		return err
	}
	delivery.Payment.TxHash = result.TxHash
	delivery.Payment.BlockNumber = result.BlockNumber
	delivery.Payment.Error = ""
	if err := c.deliveries.Update(ctx, delivery); err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

// recordFailure moves the payment to FAILED with the causal error preserved,
// then returns the original error to the caller.
func (c *Coordinator) recordFailure(ctx context.Context, deliveryID domain.DeliveryID, operation string, cause error) error {
	c.metrics.RecordSettlement(operation, "failed")

	key := deliveryID.String()
	c.locks.Lock(key)
	defer c.locks.Unlock(key)

	delivery, err := c.load(ctx, deliveryID)
	if err != nil {
		return cause
	}
	delivery.Payment.Error = fmt.Sprintf("%s: %s", operation, cause.Error())
	if delivery.Payment.Status.CanAdvanceTo(models.PaymentFailed) {
		if err := delivery.AdvancePayment(models.PaymentFailed, requestcontext.Now(ctx)); err == nil {
			if updateErr := c.deliveries.Update(ctx, delivery); updateErr != nil && c.logger != nil {
				c.logger.ErrorContext(ctx, "failed to persist payment failure",
					"delivery_id", deliveryID.String(), "error", updateErr.Error())
			}
			c.publishAudit(ctx, delivery, auditmodels.EventPaymentFailed, nil)
		}
	}
	return cause
}

func (c *Coordinator) load(ctx context.Context, deliveryID domain.DeliveryID) (*models.Delivery, error) {
	delivery, err := c.deliveries.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return delivery, nil
}

func (c *Coordinator) publishAudit(ctx context.Context, delivery *models.Delivery, eventType auditmodels.EventType, result *backend.TxResult) {
	if c.audit == nil {
		return
	}
	event := auditmodels.NewEvent(eventType, delivery.ID, requestcontext.Now(ctx))
	if delivery.Payment.Amount != nil {
		event.Amount = delivery.Payment.Amount.String()
	}
	if result != nil {
		event.TxHash = result.TxHash
		event.Mocked = result.Mocked
	}
	if delivery.Payment.Error != "" {
		event.Detail = delivery.Payment.Error
	}
	if err := c.audit.Publish(ctx, event); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "audit publish failed",
			"delivery_id", delivery.ID.String(), "event", string(eventType), "error", err.Error())
	}
}

// recorded rebuilds a TxResult from what the store remembers.
func recorded(delivery *models.Delivery) *backend.TxResult {
	return &backend.TxResult{
		TxHash:      delivery.Payment.TxHash,
		BlockNumber: delivery.Payment.BlockNumber,
	}
}

func wrapStoreErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "delivery not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "delivery store failure")
}
