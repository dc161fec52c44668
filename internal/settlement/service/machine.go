// Package service implements the verify-then-settle orchestrator that ties
// proof verification to payment release.
package service

//go:generate mockgen -source=machine.go -destination=mocks/mocks.go -package=mocks ProofService,EscrowCoordinator,DirectTransferer

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	auditmodels "github.com/xyo-geohacker/chaincheck-sub003/internal/audit/models"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/models"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/delivery/store"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/escrow/backend"
	proofmodels "github.com/xyo-geohacker/chaincheck-sub003/internal/proof/models"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/settlement/metrics"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/platform/keyedmutex"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/platform/sentinel"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/requestcontext"
)

// ProofService is the proof surface the machine sequences.
type ProofService interface {
	CreateLocationProof(ctx context.Context, payload proofmodels.ProofPayload) (*proofmodels.ProofResult, error)
	VerifyLocationProof(ctx context.Context, rawHash string) (*proofmodels.Verification, error)
	QueryLocationDiviner(ctx context.Context, lat, lon float64, ts time.Time) (*proofmodels.DivinerResult, error)
}

// EscrowCoordinator is the settlement surface used when escrow is configured.
type EscrowCoordinator interface {
	Release(ctx context.Context, deliveryID domain.DeliveryID) (*backend.TxResult, error)
	Refund(ctx context.Context, deliveryID domain.DeliveryID) (*backend.TxResult, error)
}

// DirectTransferer pays the seller without an escrow contract. Used by
// deployments that settle straight from the authority wallet.
type DirectTransferer interface {
	Transfer(ctx context.Context, to domain.Address, amount *big.Int) (*backend.TxResult, error)
}

// AuditPublisher records settlement audit events.
type AuditPublisher interface {
	Publish(ctx context.Context, event auditmodels.Event) error
}

// Request carries one verification event. Exactly one of ProofHash and
// Payload must be set: verify an existing proof, or create one from a fresh
// courier observation.
type Request struct {
	DeliveryID domain.DeliveryID
	ProofHash  string
	Payload    *proofmodels.ProofPayload
}

// Result is the structured settlement outcome. Failures are reported here
// rather than as errors so callers decide about retries; only malformed
// requests and unknown deliveries return a Go error.
type Result struct {
	Success        bool        `json:"success"`
	AlreadySettled bool        `json:"alreadySettled"`
	ProofHash      domain.Hash `json:"proofHash,omitempty"`
	ProofMocked    bool        `json:"proofMocked,omitempty"`
	BlockNumber    uint64      `json:"blockNumber,omitempty"`
	TxHash         domain.Hash `json:"transactionHash,omitempty"`
	Consensus      float64     `json:"consensus,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// Machine drives a delivery through verify, DELIVERED and payment release.
// The principal idempotence guarantee lives here: re-invoking settlement for
// an already paid delivery returns the recorded transaction and touches
// nothing.
type Machine struct {
	proofs     ProofService
	deliveries store.Store
	escrow     EscrowCoordinator
	direct     DirectTransferer

	locks   *keyedmutex.KeyedMutex
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   AuditPublisher
}

// Option configures a Machine.
type Option func(*Machine)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

func WithMetrics(mtr *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mtr }
}

// WithEscrow installs the escrow release path.
func WithEscrow(escrow EscrowCoordinator) Option {
	return func(m *Machine) { m.escrow = escrow }
}

// WithDirectTransfer installs the escrow-less payment path.
func WithDirectTransfer(direct DirectTransferer) Option {
	return func(m *Machine) { m.direct = direct }
}

// WithAuditPublisher installs the settlement audit trail.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(m *Machine) { m.audit = p }
}

func NewMachine(proofs ProofService, deliveries store.Store, opts ...Option) *Machine {
	m := &Machine{
		proofs:     proofs,
		deliveries: deliveries,
		locks:      keyedmutex.New(),
		tracer:     otel.Tracer("settlement"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// VerifyAndSettle runs the full sequence for one verification event.
func (m *Machine) VerifyAndSettle(ctx context.Context, req Request) (*Result, error) {
	ctx, span := m.tracer.Start(ctx, "settlement.verify_and_settle",
		trace.WithAttributes(attribute.String("delivery.id", req.DeliveryID.String())))
	defer span.End()

	if (req.ProofHash == "") == (req.Payload == nil) {
		return nil, dErrors.New(dErrors.CodeValidation, "exactly one of proofHash and payload is required")
	}

	delivery, err := m.deliveries.FindByID(ctx, req.DeliveryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "delivery not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "delivery store failure")
	}

	if delivery.Payment.Status == models.PaymentPaid {
		m.metrics.RecordSettlement("noop")
		return &Result{
			Success:        true,
			AlreadySettled: true,
			ProofHash:      proofHashOf(delivery),
			TxHash:         delivery.Payment.TxHash,
		}, nil
	}

	result := &Result{}
	if failed := m.verify(ctx, delivery, req, result); failed {
		m.metrics.RecordSettlement("proof_rejected")
		return result, nil
	}

	if delivery.Status != models.StatusDelivered {
		changed, err := m.markDelivered(ctx, delivery, result)
		if err != nil {
			return nil, err
		}
		if changed {
			m.publishAudit(ctx, delivery, auditmodels.EventDeliveryVerified, result.ProofHash, nil)
		}
	}

	if !delivery.Payment.RequiresPaymentOnDelivery {
		result.Success = true
		m.metrics.RecordSettlement("delivered_only")
		return result, nil
	}

	tx, err := m.pay(ctx, delivery)
	if err != nil {
		span.RecordError(err)
		result.Error = err.Error()
		m.metrics.RecordSettlement("payment_failed")
		if m.logger != nil {
			m.logger.ErrorContext(ctx, "settlement payment failed",
				"delivery_id", delivery.ID.String(), "error", err.Error())
		}
		return result, nil
	}

	result.Success = true
	result.TxHash = tx.TxHash
	m.metrics.RecordSettlement("settled")
	m.publishAudit(ctx, delivery, auditmodels.EventSettlementDone, result.ProofHash, tx)
	return result, nil
}

// verify resolves the proof and corroborates the location. The diviner query
// runs concurrently with proof resolution; its consensus is advisory and a
// low score is logged, never fatal. Returns true when the proof is rejected.
func (m *Machine) verify(ctx context.Context, delivery *models.Delivery, req Request, result *Result) bool {
	var (
		verification *proofmodels.Verification
		created      *proofmodels.ProofResult
		consensus    *proofmodels.DivinerResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if req.Payload != nil {
			created, err = m.proofs.CreateLocationProof(gctx, *req.Payload)
		} else {
			verification, err = m.proofs.VerifyLocationProof(gctx, req.ProofHash)
		}
		return err
	})
	g.Go(func() error {
		lat, lon, ts := delivery.Destination.Latitude, delivery.Destination.Longitude, requestcontext.Now(gctx)
		if req.Payload != nil {
			lat, lon, ts = req.Payload.Latitude, req.Payload.Longitude, req.Payload.Timestamp
		}
		queried, err := m.proofs.QueryLocationDiviner(gctx, lat, lon, ts)
		if err != nil {
			// Corroboration is advisory; an unreachable diviner must not
			// block settlement.
			if m.logger != nil {
				m.logger.WarnContext(gctx, "diviner query failed",
					"delivery_id", delivery.ID.String(), "error", err.Error())
			}
			return nil
		}
		consensus = queried
		return nil
	})
	if err := g.Wait(); err != nil {
		result.Error = err.Error()
		return true
	}

	if consensus != nil {
		result.Consensus = consensus.Consensus
		if !consensus.Mocked && consensus.Consensus < 0.5 && m.logger != nil {
			m.logger.WarnContext(ctx, "low location consensus",
				"delivery_id", delivery.ID.String(), "consensus", consensus.Consensus)
		}
	}

	switch {
	case created != nil:
		result.ProofHash = created.ProofHash
		result.ProofMocked = created.Mocked
		result.BlockNumber = created.BlockNumber
		return false
	case verification != nil && verification.Valid:
		result.ProofHash = verification.ProofHash
		result.BlockNumber = verification.BlockNumber
		return false
	default:
		result.Error = "proof verification failed: " + strings.Join(verification.Errors, "; ")
		return true
	}
}

// markDelivered records the DELIVERED transition under the key lock against a
// fresh read, so a concurrent settler's payment claim is never overwritten by
// a stale snapshot. The caller's delivery is refreshed in place. Returns
// false when another settler already recorded the transition.
func (m *Machine) markDelivered(ctx context.Context, delivery *models.Delivery, result *Result) (bool, error) {
	key := delivery.ID.String()
	m.locks.Lock(key)
	defer m.locks.Unlock(key)

	fresh, err := m.deliveries.FindByID(ctx, delivery.ID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "delivery store failure")
	}
	if fresh.Status == models.StatusDelivered {
		*delivery = *fresh
		return false, nil
	}
	fresh.MarkDelivered(result.ProofHash, result.BlockNumber, requestcontext.Now(ctx))
	if err := m.deliveries.Update(ctx, fresh); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist delivered status")
	}
	*delivery = *fresh
	return true, nil
}

// pay releases the escrow, or falls back to a direct transfer when no escrow
// is configured for this deployment.
func (m *Machine) pay(ctx context.Context, delivery *models.Delivery) (*backend.TxResult, error) {
	if m.escrow != nil {
		return m.escrow.Release(ctx, delivery.ID)
	}
	if m.direct != nil {
		return m.payDirect(ctx, delivery.ID)
	}
	return nil, dErrors.New(dErrors.CodeValidation, "no settlement path configured")
}

// payDirect settles without an escrow contract. A bare transfer has no chain
// slot to reconcile against, so the payment is claimed locally before any
// funds move: the record advances to ESCROWED under the key lock, and a
// concurrent settler observing the claim backs off instead of issuing a
// second transfer. No lock is held across the transfer itself.
func (m *Machine) payDirect(ctx context.Context, deliveryID domain.DeliveryID) (*backend.TxResult, error) {
	delivery, done, err := m.claimDirectPayment(ctx, deliveryID)
	if err != nil || done != nil {
		return done, err
	}

	tx, err := m.direct.Transfer(ctx, delivery.Payment.SellerAddress, delivery.Payment.Amount)
	if err != nil {
		return nil, m.recordDirectFailure(ctx, deliveryID, err)
	}

	key := deliveryID.String()
	m.locks.Lock(key)
	defer m.locks.Unlock(key)

	delivery, err = m.deliveries.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "delivery store failure")
	}
	if err := delivery.AdvancePayment(models.PaymentPaid, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	delivery.Payment.TxHash = tx.TxHash
	delivery.Payment.BlockNumber = tx.BlockNumber
	delivery.Payment.Error = ""
	if err := m.deliveries.Update(ctx, delivery); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist direct payment")
	}
	return tx, nil
}

// claimDirectPayment advances the payment to ESCROWED under the key lock.
// For the direct path ESCROWED means the transfer is in flight. A non-nil
// TxResult means the delivery was already paid and the caller gets the
// recorded transaction back; a claim held by another settler is a transient
// error, never a second payment.
func (m *Machine) claimDirectPayment(ctx context.Context, deliveryID domain.DeliveryID) (*models.Delivery, *backend.TxResult, error) {
	key := deliveryID.String()
	m.locks.Lock(key)
	defer m.locks.Unlock(key)

	delivery, err := m.deliveries.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "delivery store failure")
	}
	switch delivery.Payment.Status {
	case models.PaymentPaid:
		return nil, &backend.TxResult{
			TxHash:      delivery.Payment.TxHash,
			BlockNumber: delivery.Payment.BlockNumber,
		}, nil
	case models.PaymentEscrowed:
		return nil, nil, dErrors.Newf(dErrors.CodeTransient,
			"direct payment already in flight for delivery %s", deliveryID)
	}
	if err := delivery.Payment.ValidateTerms(); err != nil {
		return nil, nil, err
	}
	if err := delivery.AdvancePayment(models.PaymentEscrowed, requestcontext.Now(ctx)); err != nil {
		return nil, nil, err
	}
	if err := m.deliveries.Update(ctx, delivery); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist payment claim")
	}
	return delivery, nil, nil
}

// recordDirectFailure rolls the claim to FAILED with the cause preserved, so
// a later attempt can retry, then returns the original error.
func (m *Machine) recordDirectFailure(ctx context.Context, deliveryID domain.DeliveryID, cause error) error {
	key := deliveryID.String()
	m.locks.Lock(key)
	defer m.locks.Unlock(key)

	delivery, err := m.deliveries.FindByID(ctx, deliveryID)
	if err != nil {
		return cause
	}
	delivery.Payment.Error = "transfer: " + cause.Error()
	if delivery.Payment.Status.CanAdvanceTo(models.PaymentFailed) {
		if err := delivery.AdvancePayment(models.PaymentFailed, requestcontext.Now(ctx)); err == nil {
			if updateErr := m.deliveries.Update(ctx, delivery); updateErr != nil && m.logger != nil {
				m.logger.ErrorContext(ctx, "failed to persist payment failure",
					"delivery_id", deliveryID.String(), "error", updateErr.Error())
			}
		}
	}
	return cause
}

func (m *Machine) publishAudit(ctx context.Context, delivery *models.Delivery, eventType auditmodels.EventType, proofHash domain.Hash, tx *backend.TxResult) {
	if m.audit == nil {
		return
	}
	event := auditmodels.NewEvent(eventType, delivery.ID, requestcontext.Now(ctx))
	if tx != nil {
		event.TxHash = tx.TxHash
		event.Mocked = tx.Mocked
	}
	if delivery.Payment.Amount != nil {
		event.Amount = delivery.Payment.Amount.String()
	}
	if proofHash != "" {
		event.Detail = "proof " + proofHash.String()
	}
	if err := m.audit.Publish(ctx, event); err != nil && m.logger != nil {
		m.logger.WarnContext(ctx, "audit publish failed",
			"delivery_id", delivery.ID.String(), "event", string(eventType), "error", err.Error())
	}
}

func proofHashOf(delivery *models.Delivery) domain.Hash {
	if delivery.ProofHash != nil {
		return *delivery.ProofHash
	}
	return ""
}
