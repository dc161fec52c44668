// Package models defines the local mirror of on-chain escrow state.
package models

import (
	"math/big"
	"time"

	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
)

// Escrow mirrors one escrow slot on the settlement contract, keyed by the
// delivery key. The chain is authoritative; this struct is what a backend
// read returns and what reconciliation compares local payment state against.
type Escrow struct {
	Key             domain.DeliveryKey `json:"key"`
	Buyer           domain.Address     `json:"buyer"`
	Seller          domain.Address     `json:"seller"`
	Amount          *big.Int           `json:"amount"`
	Released        bool               `json:"released"`
	Refunded        bool               `json:"refunded"`
	CreatedAt       time.Time          `json:"createdAt"`
	ReleaseDeadline time.Time          `json:"releaseDeadline"`
}

// Settled reports whether the escrow reached a terminal state on chain.
func (e *Escrow) Settled() bool {
	return e.Released || e.Refunded
}
