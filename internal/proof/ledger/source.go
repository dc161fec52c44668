// Package ledger exposes the two alternative proof sources — the direct
// ledger path and the archival index — behind one interface. A source never
// falls back to its sibling; prioritization is the proof service's job.
package ledger

import (
	"context"
	"encoding/json"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/chain"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/proof/models"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/domain"
)

// InsertResult reports a successful proof submission.
type InsertResult struct {
	ProofHash   domain.Hash
	BlockNumber uint64
	Raw         *chain.WitnessRecord
}

// Validation reports whether a stored proof checks out, with per-check errors.
type Validation struct {
	Valid  bool
	Errors []string
}

// Source is one proof ledger access path. Fetch and Validate report a missing
// proof via chain.ErrNotFound; transient failures carry dErrors.CodeTransient.
type Source interface {
	Name() string
	Insert(ctx context.Context, payload models.ProofPayload) (*InsertResult, error)
	Fetch(ctx context.Context, hash domain.Hash) (json.RawMessage, error)
	Validate(ctx context.Context, hash domain.Hash) (*Validation, error)
}
