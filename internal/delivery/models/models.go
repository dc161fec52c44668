// Package models defines the delivery aggregate: lifecycle status, proof
// references and the embedded payment sub-state the escrow coordinator
// reconciles against the chain.
package models

import (
	"math/big"
	"time"

	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
)

// Status is the delivery lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusInTransit Status = "IN_TRANSIT"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
	StatusDisputed  Status = "DISPUTED"
)

// PaymentStatus tracks the settlement sub-state. It only advances along
// PENDING→ESCROWED→{PAID|REFUNDED}, or any state→FAILED; FAILED recovers to
// ESCROWED on manual retry, PAID and REFUNDED are terminal.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentEscrowed PaymentStatus = "ESCROWED"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// Terminal reports whether no further transition is permitted.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentRefunded
}

// CanAdvanceTo enforces the payment state machine.
func (s PaymentStatus) CanAdvanceTo(next PaymentStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case PaymentFailed:
		return true
	case PaymentEscrowed:
		return s == PaymentPending || s == PaymentFailed
	case PaymentPaid, PaymentRefunded:
		return s == PaymentEscrowed
	default:
		return false
	}
}

// Destination is the geospatial delivery target.
type Destination struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// PaymentState is embedded in Delivery and mirrors the escrow outcome.
type PaymentState struct {
	RequiresPaymentOnDelivery bool           `json:"requiresPaymentOnDelivery"`
	Currency                  string         `json:"currency,omitempty"`
	BuyerAddress              domain.Address `json:"buyerAddress,omitempty"`
	SellerAddress             domain.Address `json:"sellerAddress,omitempty"`
	Amount                    *big.Int       `json:"amount,omitempty"`
	Status                    PaymentStatus  `json:"paymentStatus"`
	TxHash                    domain.Hash    `json:"transactionHash,omitempty"`
	BlockNumber               uint64         `json:"blockNumber,omitempty"`
	Error                     string         `json:"error,omitempty"`
}

// Delivery is the aggregate root. Created on order registration, mutated by
// the proof service (status and proof hash) and the escrow coordinator
// (payment fields); never deleted outside test teardown.
type Delivery struct {
	ID          domain.DeliveryID `json:"id"`
	DriverID    domain.DriverID   `json:"driverId"`
	Status      Status            `json:"status"`
	Destination Destination       `json:"destination"`
	ProofHash   *domain.Hash      `json:"proofHash,omitempty"`
	BlockNumber *uint64           `json:"blockNumber,omitempty"`
	Payment     PaymentState      `json:"payment"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// NewDelivery validates invariants and constructs a pending delivery.
func NewDelivery(id domain.DeliveryID, driverID domain.DriverID, dest Destination, payment PaymentState, now time.Time) (*Delivery, error) {
	if id.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "delivery id is required")
	}
	if driverID.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "driver id is required")
	}
	if dest.Latitude < -90 || dest.Latitude > 90 || dest.Longitude < -180 || dest.Longitude > 180 {
		return nil, dErrors.New(dErrors.CodeValidation, "destination coordinates out of range")
	}
	if payment.RequiresPaymentOnDelivery {
		if err := payment.ValidateTerms(); err != nil {
			return nil, err
		}
	}
	payment.Status = PaymentPending
	return &Delivery{
		ID:          id,
		DriverID:    driverID,
		Status:      StatusPending,
		Destination: dest,
		Payment:     payment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ValidateTerms rejects unusable payment terms before any network call.
func (p PaymentState) ValidateTerms() error {
	if p.BuyerAddress.IsZero() || p.SellerAddress.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "buyer and seller addresses are required")
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return dErrors.New(dErrors.CodeValidation, "payment amount must be positive")
	}
	return nil
}

// MarkDelivered records the verified proof on the aggregate.
func (d *Delivery) MarkDelivered(proofHash domain.Hash, blockNumber uint64, now time.Time) {
	d.Status = StatusDelivered
	d.ProofHash = &proofHash
	if blockNumber > 0 {
		d.BlockNumber = &blockNumber
	}
	d.UpdatedAt = now
}

// AdvancePayment transitions the payment sub-state, enforcing the state
// machine. An illegal transition is an invariant violation.
func (d *Delivery) AdvancePayment(next PaymentStatus, now time.Time) error {
	if !d.Payment.Status.CanAdvanceTo(next) {
		return dErrors.Newf(dErrors.CodeInvariant,
			"illegal payment transition %s -> %s for delivery %s", d.Payment.Status, next, d.ID)
	}
	d.Payment.Status = next
	d.UpdatedAt = now
	return nil
}

// Clone returns a deep copy so store reads never alias store state.
func (d *Delivery) Clone() *Delivery {
	out := *d
	if d.ProofHash != nil {
		h := *d.ProofHash
		out.ProofHash = &h
	}
	if d.BlockNumber != nil {
		n := *d.BlockNumber
		out.BlockNumber = &n
	}
	if d.Payment.Amount != nil {
		out.Payment.Amount = new(big.Int).Set(d.Payment.Amount)
	}
	return &out
}
