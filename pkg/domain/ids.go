// Package domain defines the typed identifiers shared across the settlement
// core. Typed IDs prevent cross-type assignment at compile time; parsing
// enforces format invariants at trust boundaries.
package domain

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	dErrors "github.com/xyo-geohacker/chaincheck-sub003/pkg/domain-errors"
)

// DeliveryID identifies a delivery aggregate.
type DeliveryID uuid.UUID

// DriverID identifies the courier who produced a location proof.
type DriverID uuid.UUID

func (id DeliveryID) String() string { return uuid.UUID(id).String() }
func (id DriverID) String() string   { return uuid.UUID(id).String() }

func (id DeliveryID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id DriverID) IsZero() bool   { return uuid.UUID(id) == uuid.Nil }

// NewDeliveryID mints a random delivery identifier.
func NewDeliveryID() DeliveryID { return DeliveryID(uuid.New()) }

// ParseDeliveryID parses and validates an external delivery identifier.
func ParseDeliveryID(s string) (DeliveryID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return DeliveryID{}, err
	}
	return DeliveryID(u), nil
}

// ParseDriverID parses and validates a driver identifier.
func ParseDriverID(s string) (DriverID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return DriverID{}, err
	}
	return DriverID(u), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "id must not be the nil UUID")
	}
	return u, nil
}

// Hash is a 0x-prefixed lowercase hex reference into the proof ledger. Proof
// hashes, transaction references and block hashes all share this shape.
type Hash string

// ParseHash validates a 32-byte hex hash.
func ParseHash(s string) (Hash, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	raw, ok := strings.CutPrefix(s, "0x")
	if !ok || len(raw) != 64 {
		return "", dErrors.New(dErrors.CodeValidation, "hash must be a 0x-prefixed 32-byte hex string")
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "hash must be valid hex")
	}
	return Hash(s), nil
}

func (h Hash) String() string { return string(h) }
func (h Hash) IsZero() bool   { return h == "" }

// Address is a 0x-prefixed 20-byte account address on the settlement chain.
type Address string

// ParseAddress validates the address format. Case is preserved so callers may
// carry checksummed addresses through unchanged.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	raw, ok := strings.CutPrefix(strings.ToLower(s), "0x")
	if !ok || len(raw) != 40 {
		return "", dErrors.New(dErrors.CodeValidation, "address must be a 0x-prefixed 20-byte hex string")
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "address must be valid hex")
	}
	return Address(s), nil
}

func (a Address) String() string { return string(a) }
func (a Address) IsZero() bool   { return a == "" }

// DeliveryKey is the deterministic 32-byte escrow lookup key derived from a
// delivery's external identifier. The same delivery always maps to the same
// on-chain escrow slot.
type DeliveryKey [32]byte

// KeyFor derives the escrow key as Keccak-256 over the canonical string form
// of the delivery identifier. Pure: identical input yields identical output.
func KeyFor(id DeliveryID) DeliveryKey {
	var key DeliveryKey
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(id.String()))
	copy(key[:], h.Sum(nil))
	return key
}

func (k DeliveryKey) Hex() string { return "0x" + hex.EncodeToString(k[:]) }

func (k DeliveryKey) String() string { return k.Hex() }
