// Package backend abstracts the settlement contract. Two implementations
// exist: Mock keeps full escrow semantics in memory for development and
// tests, Live submits transactions to the ledger and waits for confirmed
// receipts. The choice is made once at startup, never per call.
package backend

import (
	"context"
	"math/big"
	"time"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/escrow/models"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
)

// TxResult is the outcome of a settlement transaction. Live results are only
// returned after the receipt is confirmed; mocked results are instantaneous
// and flagged so callers can skip confirmation bookkeeping.
type TxResult struct {
	TxHash      domain.Hash
	BlockNumber uint64
	Mocked      bool
}

// Backend is the settlement contract surface the coordinator depends on.
// All state-changing calls are network round trips; callers must not hold
// locks across them. Reads return sentinel.ErrNotFound (wrapped) when no
// escrow exists for the key.
type Backend interface {
	Name() string

	// Deposit locks the buyer's funds for the delivery.
	Deposit(ctx context.Context, key domain.DeliveryKey, buyer, seller domain.Address, amount *big.Int) (*TxResult, error)

	// Release pays the seller. Fails with an invariant violation when the
	// escrow is missing or already settled.
	Release(ctx context.Context, key domain.DeliveryKey) (*TxResult, error)

	// Refund returns the funds to the buyer. Same preconditions as Release.
	Refund(ctx context.Context, key domain.DeliveryKey) (*TxResult, error)

	// AutoRefund is the permissionless deadline path: anyone may trigger it
	// once the release deadline has passed.
	AutoRefund(ctx context.Context, key domain.DeliveryKey) (*TxResult, error)

	// Escrow reads the current on-chain slot for the key.
	Escrow(ctx context.Context, key domain.DeliveryKey) (*models.Escrow, error)

	// CanAutoRefund reports whether the deadline path is open.
	CanAutoRefund(ctx context.Context, key domain.DeliveryKey, now time.Time) (bool, error)
}
