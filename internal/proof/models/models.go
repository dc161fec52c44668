// Package models defines the location-proof domain types exchanged between
// the proof service, the ledger sources and the settlement orchestrator.
package models

import (
	"encoding/json"
	"time"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/chain"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
)

// ProofPayload is the witness payload a courier submits at the doorstep.
// Altitude, pressure and accelerometer readings are optional corroborating
// sensors; Metadata is free-form and passed through to the ledger unchanged.
type ProofPayload struct {
	DriverID   domain.DriverID   `json:"driverId"`
	DeliveryID domain.DeliveryID `json:"deliveryId"`
	Latitude   float64           `json:"latitude"`
	Longitude  float64           `json:"longitude"`
	Timestamp  time.Time         `json:"timestamp"`

	Altitude      *float64   `json:"altitude,omitempty"`
	Pressure      *float64   `json:"pressure,omitempty"`
	Accelerometer *[3]float64 `json:"accelerometer,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate rejects malformed payloads before any network call is attempted.
func (p ProofPayload) Validate() error {
	if p.DriverID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "driver id is required")
	}
	if p.DeliveryID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "delivery id is required")
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return dErrors.New(dErrors.CodeValidation, "latitude out of range")
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return dErrors.New(dErrors.CodeValidation, "longitude out of range")
	}
	if p.Timestamp.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "timestamp is required")
	}
	return nil
}

// ProofResult is what CreateLocationProof returns. Mocked results are
// structurally identical to real ones; the flag is the only distinction.
type ProofResult struct {
	ProofHash   domain.Hash          `json:"proofHash"`
	BlockNumber uint64               `json:"blockNumber"`
	RawWitness  *chain.WitnessRecord `json:"rawWitness,omitempty"`
	Mocked      bool                 `json:"mocked"`
}

// Verification is the outcome of a proof lookup. A failed lookup is a normal
// negative result: Valid=false with the per-source errors collected along the
// fallback chain.
type Verification struct {
	ProofHash   domain.Hash     `json:"proofHash"`
	Valid       bool            `json:"valid"`
	Source      string          `json:"source,omitempty"`
	BlockNumber uint64          `json:"blockNumber,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Errors      []string        `json:"errors,omitempty"`
}

// DivinerResult is a location consensus answer. When the consensus subsystem
// is disabled the service answers with a deterministic mock so downstream
// logic never special-cases an unavailable diviner.
type DivinerResult struct {
	Consensus    float64 `json:"consensus"`
	WitnessCount int     `json:"witnessCount"`
	Mocked       bool    `json:"mocked"`
}
