// Package models defines the settlement audit trail events.
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
)

// EventType identifies what happened to a delivery's money.
type EventType string

const (
	EventEscrowDeposited  EventType = "escrow.deposited"
	EventEscrowReleased   EventType = "escrow.released"
	EventEscrowRefunded   EventType = "escrow.refunded"
	EventEscrowAutoRefund EventType = "escrow.auto_refunded"
	EventPaymentFailed    EventType = "payment.failed"
	EventDeliveryVerified EventType = "delivery.verified"
	EventSettlementDone   EventType = "settlement.completed"
)

// Event is one immutable audit record. Amount is carried as a decimal string
// because settlement amounts are 256-bit integers.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Type       EventType         `json:"type"`
	DeliveryID domain.DeliveryID `json:"deliveryId"`
	TxHash     domain.Hash       `json:"transactionHash,omitempty"`
	Amount     string            `json:"amount,omitempty"`
	Detail     string            `json:"detail,omitempty"`
	Mocked     bool              `json:"mocked"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// NewEvent stamps identity and time on an audit event.
func NewEvent(eventType EventType, deliveryID domain.DeliveryID, now time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		DeliveryID: deliveryID,
		OccurredAt: now,
	}
}
